package fhir

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidInput is returned when a generator is missing a required argument.
var ErrInvalidInput = errors.New("invalid input")

// Generator projects terminology records into FHIR R4 resources. It holds no
// mutable state; the clock and id source are swappable for tests.
type Generator struct {
	ns    Namespaces
	now   func() time.Time
	newID func() string
}

// NewGenerator creates a generator using the given namespace table.
func NewGenerator(ns Namespaces) *Generator {
	if ns == nil {
		ns = DefaultNamespaces()
	}
	return &Generator{ns: ns, now: time.Now, newID: uuid.NewString}
}

var defaultGenerator = NewGenerator(DefaultNamespaces())

// Namespaces returns the generator's namespace table.
func (g *Generator) Namespaces() Namespaces { return g.ns }

// NamasteConcept is the input shape for CodeSystem generation.
type NamasteConcept struct {
	Code        string
	Title       string
	Description string
	System      string
	Category    string
}

// MappingInput is the input shape for ConceptMap generation.
type MappingInput struct {
	SourceCode    string
	SourceDisplay string
	TargetCode    string
	TargetDisplay string
	MappingType   string
	Confidence    string
}

// ConditionOptions carries the optional parts of a dual-coded Condition.
type ConditionOptions struct {
	ClinicalStatus     string
	VerificationStatus string
	Category           string
	OnsetDateTime      *time.Time
	EncounterRef       string
	RecorderRef        string
	Note               string
}

// MapEquivalence converts a mapping type into a ConceptMap equivalence code.
// Unknown types fall back to "relatedto".
func MapEquivalence(mappingType string) string {
	switch mappingType {
	case "exact":
		return "equal"
	case "broader":
		return "wider"
	case "narrower":
		return "narrower"
	case "related":
		return "relatedto"
	case "equivalent":
		return "equivalent"
	default:
		return "relatedto"
	}
}

// GenerateCodeSystem builds the NAMASTE CodeSystem. One concept is emitted per
// input code, in input order.
func (g *Generator) GenerateCodeSystem(codes []NamasteConcept, version string) *CodeSystem {
	concepts := make([]CodeSystemConcept, 0, len(codes))
	for _, c := range codes {
		concepts = append(concepts, CodeSystemConcept{
			Code:       c.Code,
			Display:    c.Title,
			Definition: c.Description,
			Property: []ConceptProperty{
				{Code: "system", ValueCode: c.System},
				{Code: "category", ValueString: c.Category},
			},
		})
	}

	now := g.now().UTC()
	return &CodeSystem{
		ResourceType:     "CodeSystem",
		ID:               "namaste-terminology",
		Meta:             &Meta{LastUpdated: &now},
		URL:              g.ns.URI(SystemNamaste),
		Version:          version,
		Name:             "NAMASTETerminology",
		Title:            "NAMASTE Terminology for Ayurveda, Siddha and Unani",
		Status:           "active",
		Date:             now.Format(time.RFC3339),
		Publisher:        "Ministry of AYUSH, Government of India",
		Description:      "National AYUSH Morbidity and Standardized Terminologies Electronic (NAMASTE) codes",
		CaseSensitive:    true,
		HierarchyMeaning: "is-a",
		Content:          "complete",
		Count:            len(codes),
		Property: []CodeSystemProperty{
			{Code: "system", Description: "Traditional medicine system (AYU, SID, UNA)", Type: "code"},
			{Code: "category", Description: "Clinical category", Type: "string"},
		},
		Concept: concepts,
	}
}

// GenerateConceptMap builds a ConceptMap with one element per mapping. The
// caller is responsible for filtering and deduplicating mappings.
func (g *Generator) GenerateConceptMap(mappings []MappingInput, sourceSystem, targetSystem, version string) *ConceptMap {
	sourceURI := g.ns.URI(sourceSystem)
	targetURI := g.ns.URI(targetSystem)

	elements := make([]ConceptMapElement, 0, len(mappings))
	for _, m := range mappings {
		target := ConceptMapTarget{
			Code:        m.TargetCode,
			Display:     m.TargetDisplay,
			Equivalence: MapEquivalence(m.MappingType),
		}
		if m.Confidence != "" {
			target.Comment = "Confidence: " + m.Confidence
		}
		elements = append(elements, ConceptMapElement{
			Code:    m.SourceCode,
			Display: m.SourceDisplay,
			Target:  []ConceptMapTarget{target},
		})
	}

	id := ConceptMapID(sourceSystem, targetSystem)
	now := g.now().UTC()
	return &ConceptMap{
		ResourceType: "ConceptMap",
		ID:           id,
		Meta:         &Meta{LastUpdated: &now},
		URL:          "http://medisutra.in/fhir/ConceptMap/" + id,
		Version:      version,
		Name:         fmt.Sprintf("%sTo%s", compactName(sourceSystem), compactName(targetSystem)),
		Title:        fmt.Sprintf("%s to %s mapping", sourceSystem, targetSystem),
		Status:       "active",
		Date:         now.Format(time.RFC3339),
		Publisher:    "Ministry of AYUSH, Government of India",
		SourceURI:    sourceURI,
		TargetURI:    targetURI,
		Group: []ConceptMapGroup{
			{Source: sourceURI, Target: targetURI, Element: elements},
		},
	}
}

// GenerateCondition builds a dual-coded Condition. The primary coding always
// comes first, followed by the secondary codings in input order.
func (g *Generator) GenerateCondition(patientRef string, primary Coding, secondary []Coding, opts ConditionOptions) (*Condition, error) {
	if strings.TrimSpace(patientRef) == "" {
		return nil, fmt.Errorf("patient reference is required: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(primary.Code) == "" {
		return nil, fmt.Errorf("primary code is required: %w", ErrInvalidInput)
	}

	codings := make([]Coding, 0, 1+len(secondary))
	codings = append(codings, g.resolveCoding(primary))
	for _, s := range secondary {
		codings = append(codings, g.resolveCoding(s))
	}

	clinical := opts.ClinicalStatus
	if clinical == "" {
		clinical = "active"
	}
	verification := opts.VerificationStatus
	if verification == "" {
		verification = "confirmed"
	}

	now := g.now().UTC()
	onset := now
	if opts.OnsetDateTime != nil {
		onset = opts.OnsetDateTime.UTC()
	}

	cond := &Condition{
		ResourceType: "Condition",
		ID:           g.newID(),
		Meta:         &Meta{LastUpdated: &now},
		ClinicalStatus: CodeableConcept{
			Coding: []Coding{{System: URIConditionClinical, Code: clinical}},
		},
		VerificationStatus: CodeableConcept{
			Coding: []Coding{{System: URIConditionVerStat, Code: verification}},
		},
		Code:          CodeableConcept{Coding: codings, Text: primary.Display},
		Subject:       Reference{Reference: patientRef},
		OnsetDateTime: onset.Format(time.RFC3339),
		RecordedDate:  now.Format(time.RFC3339),
	}
	if opts.Category != "" {
		cond.Category = []CodeableConcept{{
			Coding: []Coding{{System: URIConditionCategory, Code: opts.Category}},
		}}
	}
	if opts.EncounterRef != "" {
		cond.Encounter = &Reference{Reference: opts.EncounterRef}
	}
	if opts.RecorderRef != "" {
		cond.Recorder = &Reference{Reference: opts.RecorderRef}
	}
	if opts.Note != "" {
		cond.Note = []Annotation{{Text: opts.Note, Time: now.Format(time.RFC3339)}}
	}
	return cond, nil
}

// GenerateBundle wraps resources in a Bundle. Every input resource yields
// exactly one entry; nothing is filtered or deduplicated.
func (g *Generator) GenerateBundle(resources []interface{}, bundleType string) *Bundle {
	if bundleType == "" {
		bundleType = "collection"
	}
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, newEntry(r))
	}
	now := g.now().UTC()
	total := len(resources)
	return &Bundle{
		ResourceType: "Bundle",
		ID:           g.newID(),
		Type:         bundleType,
		Timestamp:    &now,
		Total:        &total,
		Entry:        entries,
	}
}

// resolveCoding maps a logical system name through the namespace table.
func (g *Generator) resolveCoding(c Coding) Coding {
	c.System = g.ns.URI(c.System)
	return c
}

// ConceptMapID derives the stable ConceptMap id for a system pair,
// e.g. "namaste-to-icd-11".
func ConceptMapID(sourceSystem, targetSystem string) string {
	return strings.ToLower(sourceSystem) + "-to-" + strings.ToLower(targetSystem)
}

func compactName(system string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(system)
}

// Package-level shorthands backed by the default namespace table.

func GenerateCodeSystem(codes []NamasteConcept, version string) *CodeSystem {
	return defaultGenerator.GenerateCodeSystem(codes, version)
}

func GenerateConceptMap(mappings []MappingInput, sourceSystem, targetSystem, version string) *ConceptMap {
	return defaultGenerator.GenerateConceptMap(mappings, sourceSystem, targetSystem, version)
}

func GenerateCondition(patientRef string, primary Coding, secondary []Coding, opts ConditionOptions) (*Condition, error) {
	return defaultGenerator.GenerateCondition(patientRef, primary, secondary, opts)
}

func GenerateBundle(resources []interface{}, bundleType string) *Bundle {
	return defaultGenerator.GenerateBundle(resources, bundleType)
}
