package terminology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

// NamasteCodeSystem builds the NAMASTE CodeSystem from every stored NAMASTE code.
func (s *Service) NamasteCodeSystem(ctx context.Context, version string) (*fhir.CodeSystem, error) {
	codes, _, err := s.repo.ListNamaste(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list namaste codes: %w", err)
	}
	if version == "" {
		version = s.version
	}
	concepts := make([]fhir.NamasteConcept, 0, len(codes))
	for _, c := range codes {
		concepts = append(concepts, fhir.NamasteConcept{
			Code:        c.Code,
			Title:       c.Title,
			Description: c.Description,
			System:      c.System,
			Category:    c.Category,
		})
	}
	return s.gen.GenerateCodeSystem(concepts, version), nil
}

// ConceptMap builds a ConceptMap from the active mappings between two systems,
// one element per distinct (sourceCode, targetCode) pair.
func (s *Service) ConceptMap(ctx context.Context, sourceSystem, targetSystem, version string) (*fhir.ConceptMap, error) {
	srcKind, err := ParseKind(sourceSystem)
	if err != nil {
		return nil, err
	}
	tgtKind, err := ParseKind(targetSystem)
	if err != nil {
		return nil, err
	}
	sourceSystem, targetSystem = srcKind.System(), tgtKind.System()

	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{SourceSystem: sourceSystem, TargetSystem: targetSystem})
	if err != nil {
		return nil, fmt.Errorf("concept map mappings: %w", err)
	}
	if version == "" {
		version = s.version
	}

	seen := make(map[string]bool)
	titles := make(map[string]string)
	inputs := make([]fhir.MappingInput, 0, len(mappings))
	for _, m := range mappings {
		key := m.SourceCode + "|" + m.TargetCode
		if seen[key] {
			continue
		}
		seen[key] = true
		inputs = append(inputs, fhir.MappingInput{
			SourceCode:    m.SourceCode,
			SourceDisplay: s.cachedTitle(ctx, titles, m.SourceSystem, m.SourceCode),
			TargetCode:    m.TargetCode,
			TargetDisplay: s.cachedTitle(ctx, titles, m.TargetSystem, m.TargetCode),
			MappingType:   m.MappingType,
			Confidence:    m.Confidence,
		})
	}
	return s.gen.GenerateConceptMap(inputs, sourceSystem, targetSystem, version), nil
}

// ConceptMaps builds one ConceptMap per source/target system pair that has
// active mappings, ordered by the pair's first stored mapping. Pairs outside
// the three known systems are skipped.
func (s *Service) ConceptMaps(ctx context.Context, version string) ([]*fhir.ConceptMap, error) {
	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{})
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	seen := make(map[string]bool)
	var out []*fhir.ConceptMap
	for _, m := range mappings {
		pair := m.SourceSystem + "|" + m.TargetSystem
		if seen[pair] {
			continue
		}
		seen[pair] = true
		cm, err := s.ConceptMap(ctx, m.SourceSystem, m.TargetSystem, version)
		if errors.Is(err, ErrInvalidInput) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cm)
	}
	return out, nil
}

// DualCodeRequest describes a Condition to dual-code.
type DualCodeRequest struct {
	PatientRef         string        `json:"patientReference"`
	PrimarySystem      string        `json:"primarySystem"`
	PrimaryCode        string        `json:"primaryCode"`
	SecondaryCodes     []fhir.Coding `json:"secondaryCodes,omitempty"`
	ClinicalStatus     string        `json:"clinicalStatus,omitempty"`
	VerificationStatus string        `json:"verificationStatus,omitempty"`
	Category           string        `json:"category,omitempty"`
	OnsetDateTime      *time.Time    `json:"onsetDateTime,omitempty"`
	EncounterRef       string        `json:"encounterReference,omitempty"`
	RecorderRef        string        `json:"recorderReference,omitempty"`
	Note               string        `json:"note,omitempty"`
}

// DualCodedCondition builds a Condition for the primary code. When no
// secondary codes are given they are taken from the primary code's resolved
// mappings. Displays are filled from the repository where known.
func (s *Service) DualCodedCondition(ctx context.Context, req *DualCodeRequest) (*fhir.Condition, error) {
	primarySystem := req.PrimarySystem
	if primarySystem == "" {
		primarySystem = fhir.SystemNamaste
	}
	if k, err := ParseKind(primarySystem); err == nil {
		primarySystem = k.System()
	}
	primary := fhir.Coding{
		System:  primarySystem,
		Code:    req.PrimaryCode,
		Display: s.Title(ctx, primarySystem, req.PrimaryCode),
	}

	secondary := make([]fhir.Coding, 0, len(req.SecondaryCodes))
	for _, c := range req.SecondaryCodes {
		if c.Display == "" {
			c.Display = s.Title(ctx, c.System, c.Code)
		}
		secondary = append(secondary, c)
	}
	if len(secondary) == 0 && req.PrimaryCode != "" {
		resolved, err := s.ResolveMappings(ctx, primarySystem, req.PrimaryCode)
		if err != nil {
			return nil, err
		}
		for _, m := range resolved {
			secondary = append(secondary, fhir.Coding{System: m.TargetSystem, Code: m.TargetCode, Display: m.TargetTitle})
		}
	}

	cond, err := s.gen.GenerateCondition(req.PatientRef, primary, secondary, fhir.ConditionOptions{
		ClinicalStatus:     req.ClinicalStatus,
		VerificationStatus: req.VerificationStatus,
		Category:           req.Category,
		OnsetDateTime:      req.OnsetDateTime,
		EncounterRef:       req.EncounterRef,
		RecorderRef:        req.RecorderRef,
		Note:               req.Note,
	})
	if errors.Is(err, fhir.ErrInvalidInput) {
		return nil, fmt.Errorf("dual-code condition: %v: %w", err, ErrInvalidInput)
	}
	return cond, err
}

// TranslateMatches runs Translate for FHIR $translate. system and
// targetSystem may be logical names or namespace URIs.
func (s *Service) TranslateMatches(ctx context.Context, system, code, targetSystem string) ([]fhir.TranslateMatch, error) {
	ns := s.gen.Namespaces()
	src, tgt := ns.System(system), ns.System(targetSystem)
	if k, err := ParseKind(src); err == nil {
		src = k.System()
	}
	if k, err := ParseKind(tgt); err == nil {
		tgt = k.System()
	}

	mappings, err := s.TranslateEnriched(ctx, src, code, tgt)
	if err != nil {
		return nil, err
	}
	source := "http://medisutra.in/fhir/ConceptMap/" + fhir.ConceptMapID(src, tgt)
	out := make([]fhir.TranslateMatch, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, fhir.TranslateMatch{
			Equivalence: fhir.MapEquivalence(m.MappingType),
			System:      ns.URI(m.TargetSystem),
			Code:        m.TargetCode,
			Display:     m.TargetTitle,
			Source:      source,
		})
	}
	return out, nil
}
