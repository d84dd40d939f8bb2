package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle is a FHIR Bundle. Entries carry pre-encoded resources so mixed
// resource types can share one bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

func (b *Bundle) GetResourceType() string { return b.ResourceType }
func (b *Bundle) GetID() string           { return b.ID }

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// newEntry encodes r and derives fullUrl as "{resourceType}/{id}". Values
// that cannot be encoded yield an entry with no resource.
func newEntry(r interface{}) BundleEntry {
	raw, ok := r.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(r); err != nil {
			return BundleEntry{}
		}
	}
	entry := BundleEntry{Resource: raw}
	if res, ok := r.(Resource); ok {
		entry.FullURL = referenceOrEmpty(res.GetResourceType(), res.GetID())
		return entry
	}
	var head struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	if json.Unmarshal(raw, &head) == nil {
		entry.FullURL = referenceOrEmpty(head.ResourceType, head.ID)
	}
	return entry
}

func referenceOrEmpty(resourceType, id string) string {
	if resourceType == "" || id == "" {
		return ""
	}
	return FormatReference(resourceType, id)
}

// SearchBundleParams describes the page a searchset bundle represents.
// QueryStr holds extra filters, already encoded, repeated on every link.
type SearchBundleParams struct {
	BaseURL  string
	QueryStr string
	Count    int
	Offset   int
	Total    int
}

func (p SearchBundleParams) link(relation string, offset int) BundleLink {
	prefix := p.BaseURL + "?"
	if p.QueryStr != "" {
		prefix += p.QueryStr + "&"
	}
	return BundleLink{Relation: relation, URL: fmt.Sprintf("%s_count=%d&_offset=%d", prefix, p.Count, offset)}
}

func (p SearchBundleParams) links() []BundleLink {
	out := []BundleLink{p.link("self", p.Offset)}
	if next := p.Offset + p.Count; p.Count > 0 && next < p.Total {
		out = append(out, p.link("next", next))
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Count
		if prev < 0 {
			prev = 0
		}
		out = append(out, p.link("previous", prev))
	}
	return out
}

// NewSearchBundleWithLinks builds a searchset Bundle for one page of
// results, with self/next/previous links.
func NewSearchBundleWithLinks(resources []interface{}, params SearchBundleParams) *Bundle {
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		entries[i] = newEntry(r)
		entries[i].Search = &BundleSearch{Mode: "match"}
	}
	now := time.Now().UTC()
	total := params.Total
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Timestamp:    &now,
		Total:        &total,
		Link:         params.links(),
		Entry:        entries,
	}
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}
