package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Operation describes a named FHIR operation such as $translate.
type Operation struct {
	Name          string `json:"name"`
	Definition    string `json:"definition"`
	Documentation string `json:"documentation,omitempty"`
}

// SearchParam describes a search parameter a resource endpoint accepts.
type SearchParam struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type resourceEntry struct {
	interactions []string
	searchParams []SearchParam
	operations   []Operation
}

// CapabilityBuilder accumulates the resources and operations that handlers
// register so /fhir/metadata reflects only what is actually served.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	name      string
	version   string
	baseURL   string
	resources map[string]*resourceEntry
	now       func() time.Time
}

// NewCapabilityBuilder creates a builder for a server at baseURL.
func NewCapabilityBuilder(name, version, baseURL string) *CapabilityBuilder {
	if name == "" {
		name = "NAMASTE Terminology Bridge"
	}
	return &CapabilityBuilder{
		name:      name,
		version:   version,
		baseURL:   baseURL,
		resources: make(map[string]*resourceEntry),
		now:       time.Now,
	}
}

func (b *CapabilityBuilder) entry(resourceType string) *resourceEntry {
	e, ok := b.resources[resourceType]
	if !ok {
		e = &resourceEntry{}
		b.resources[resourceType] = e
	}
	return e
}

// AddResource registers interactions and search parameters for a resource
// type. Repeated calls merge; duplicate interactions are ignored.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, params ...SearchParam) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(resourceType)
	for _, ia := range interactions {
		if !containsString(e.interactions, ia) {
			e.interactions = append(e.interactions, ia)
		}
	}
	e.searchParams = append(e.searchParams, params...)
}

// AddOperation registers a resource-level operation.
func (b *CapabilityBuilder) AddOperation(resourceType string, op Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(resourceType)
	e.operations = append(e.operations, op)
}

// ResourceTypes returns the registered resource types in sorted order.
func (b *CapabilityBuilder) ResourceTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// Build renders the CapabilityStatement.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	types := b.ResourceTypes()

	b.mu.RLock()
	defer b.mu.RUnlock()

	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		e := b.resources[rt]
		res := map[string]interface{}{"type": rt}

		if len(e.interactions) > 0 {
			ia := make([]map[string]string, len(e.interactions))
			for i, code := range e.interactions {
				ia[i] = map[string]string{"code": code}
			}
			res["interaction"] = ia
		}
		if len(e.searchParams) > 0 {
			res["searchParam"] = e.searchParams
		}
		if len(e.operations) > 0 {
			res["operation"] = e.operations
		}
		resources = append(resources, res)
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         b.now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"json"},
		"software": map[string]string{
			"name":    b.name,
			"version": b.version,
		},
		"implementation": map[string]string{
			"description": b.name,
			"url":         b.baseURL,
		},
		"rest": []map[string]interface{}{{
			"mode":     "server",
			"resource": resources,
		}},
	}
}

// RegisterRoutes serves the statement at GET /metadata on the FHIR group.
func (b *CapabilityBuilder) RegisterRoutes(g *echo.Group) {
	g.GET("/metadata", func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.Build())
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
