// Package fhir holds the FHIR R4 wire types and builders used by the
// terminology endpoints.
package fhir

import (
	"fmt"
	"time"
)

// Resource is the minimal shape shared by every generated resource.
type Resource interface {
	GetResourceType() string
	GetID() string
}

type Meta struct {
	VersionID   string     `json:"versionId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Version string `json:"version,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
	Time string `json:"time,omitempty"`
}

// OperationOutcome is the FHIR error body.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// NewOperationOutcome builds an outcome with a single issue.
func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        []OperationOutcomeIssue{{Severity: severity, Code: code, Diagnostics: diagnostics}},
	}
}

func errorIssue(code, diagnostics string) *OperationOutcome {
	return NewOperationOutcome("error", code, diagnostics)
}

func ErrorOutcome(diagnostics string) *OperationOutcome { return errorIssue("processing", diagnostics) }

func InvalidOutcome(diagnostics string) *OperationOutcome { return errorIssue("invalid", diagnostics) }

func RequiredOutcome(param string) *OperationOutcome {
	return errorIssue("required", fmt.Sprintf("Parameter '%s' is required", param))
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return errorIssue("not-found", FormatReference(resourceType, id)+" not found")
}
