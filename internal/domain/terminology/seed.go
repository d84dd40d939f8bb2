package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

func strPtr(s string) *string { return &s }

var seedICD = []*ICDCode{
	{Term: Term{Code: "1A00-1A9Z", Title: "Gastroenteritis or colitis of infectious origin"}, Chapter: "01", Category: "block",
		Children: []string{"1A00", "1A40"}},
	{Term: Term{Code: "1A00", Title: "Cholera", Description: "Acute diarrhoeal infection caused by Vibrio cholerae"}, Chapter: "01", Category: "category",
		ParentCode: strPtr("1A00-1A9Z")},
	{Term: Term{Code: "1A40", Title: "Gastroenteritis or colitis without specification of infectious agent"}, Chapter: "01", Category: "category",
		ParentCode: strPtr("1A00-1A9Z")},
	{Term: Term{Code: "5A10-5A1Z", Title: "Diabetes mellitus"}, Chapter: "05", Category: "block",
		Children: []string{"5A11"}},
	{Term: Term{Code: "5A11", Title: "Type 2 diabetes mellitus"}, Chapter: "05", Category: "category",
		ParentCode: strPtr("5A10-5A1Z")},
	{Term: Term{Code: "8A80", Title: "Migraine", Description: "Recurrent headache disorder with attacks lasting 4 to 72 hours"}, Chapter: "08", Category: "category"},
	{Term: Term{Code: "DD91.0", Title: "Irritable bowel syndrome"}, Chapter: "13", Category: "category"},
}

var seedNamaste = []*NamasteCode{
	{Term: Term{Code: "AYU-DIG-001", Title: "Grahani Roga", Description: "Disorder of the digestive fire affecting absorption and bowel habit",
		Metadata: Metadata{"synonyms": []string{"Grahani", "Sangrahani"}, "dosha": "Vata-Pitta"}},
		System: NamasteAyurveda, Category: "Digestive disorders"},
	{Term: Term{Code: "AYU-MET-001", Title: "Madhumeha", Description: "Sweet urine disorder, a subtype of Prameha",
		Metadata: Metadata{"synonyms": []string{"Prameha"}, "dosha": "Vata"}},
		System: NamasteAyurveda, Category: "Metabolic disorders"},
	{Term: Term{Code: "SID-DIG-001", Title: "Gunmam", Description: "Abdominal pain and bloating with altered bowel habit"},
		System: NamasteSiddha, Category: "Digestive disorders"},
	{Term: Term{Code: "UNA-NEU-001", Title: "Shaqeeqa", Description: "Unilateral paroxysmal headache",
		Metadata: Metadata{"synonyms": []string{"Hemicrania"}}},
		System: NamasteUnani, Category: "Neurological disorders"},
}

var seedTM2 = []*TM2Code{
	{Term: Term{Code: "TM-GI-001", Title: "Digestive fire impairment pattern"}, Pattern: "Agni dysfunction"},
	{Term: Term{Code: "TM-MET-001", Title: "Sweet urine pattern"}, Pattern: "Kapha-Medas accumulation"},
	{Term: Term{Code: "TM-NEU-001", Title: "Head wind pattern"}, Pattern: "Vata obstruction of the head"},
}

var seedMappings = []*CodeMapping{
	{SourceSystem: fhir.SystemNamaste, SourceCode: "AYU-DIG-001", TargetSystem: fhir.SystemICD11, TargetCode: "1A00-1A9Z", MappingType: MappingRelated, Confidence: ConfidenceMedium},
	{SourceSystem: fhir.SystemNamaste, SourceCode: "AYU-DIG-001", TargetSystem: fhir.SystemTM2, TargetCode: "TM-GI-001", MappingType: MappingExact, Confidence: ConfidenceHigh},
	{SourceSystem: fhir.SystemNamaste, SourceCode: "AYU-MET-001", TargetSystem: fhir.SystemICD11, TargetCode: "5A11", MappingType: MappingBroader, Confidence: ConfidenceMedium},
	{SourceSystem: fhir.SystemNamaste, SourceCode: "AYU-MET-001", TargetSystem: fhir.SystemTM2, TargetCode: "TM-MET-001", MappingType: MappingExact, Confidence: ConfidenceHigh},
	{SourceSystem: fhir.SystemNamaste, SourceCode: "SID-DIG-001", TargetSystem: fhir.SystemICD11, TargetCode: "DD91.0", MappingType: MappingRelated, Confidence: ConfidenceLow},
	{SourceSystem: fhir.SystemNamaste, SourceCode: "UNA-NEU-001", TargetSystem: fhir.SystemICD11, TargetCode: "8A80", MappingType: MappingEquivalent, Confidence: ConfidenceHigh},
	{SourceSystem: fhir.SystemNamaste, SourceCode: "UNA-NEU-001", TargetSystem: fhir.SystemTM2, TargetCode: "TM-NEU-001", MappingType: MappingExact, Confidence: ConfidenceHigh},
	{SourceSystem: fhir.SystemTM2, SourceCode: "TM-GI-001", TargetSystem: fhir.SystemICD11, TargetCode: "1A00-1A9Z", MappingType: MappingRelated, Confidence: ConfidenceMedium},
	{SourceSystem: fhir.SystemTM2, SourceCode: "TM-MET-001", TargetSystem: fhir.SystemICD11, TargetCode: "5A11", MappingType: MappingNarrower, Confidence: ConfidenceMedium},
	{SourceSystem: fhir.SystemTM2, SourceCode: "TM-NEU-001", TargetSystem: fhir.SystemICD11, TargetCode: "8A80", MappingType: MappingRelated, Confidence: ConfidenceMedium},
	// stored reverse records
	{SourceSystem: fhir.SystemICD11, SourceCode: "1A00-1A9Z", TargetSystem: fhir.SystemNamaste, TargetCode: "AYU-DIG-001", MappingType: MappingRelated, Confidence: ConfidenceMedium},
	{SourceSystem: fhir.SystemICD11, SourceCode: "5A11", TargetSystem: fhir.SystemNamaste, TargetCode: "AYU-MET-001", MappingType: MappingNarrower, Confidence: ConfidenceMedium},
	{SourceSystem: fhir.SystemTM2, SourceCode: "TM-GI-001", TargetSystem: fhir.SystemNamaste, TargetCode: "AYU-DIG-001", MappingType: MappingExact, Confidence: ConfidenceHigh},
}

// Seed loads the built-in sample data set, skipping every code and mapping
// the repository already holds. It returns the number of records written.
func Seed(ctx context.Context, repo Repository) (int, error) {
	n := 0
	steps := []func() (int, error){
		func() (int, error) {
			return seedCodes(ctx, KindICD, seedICD, func(c *ICDCode) string { return c.Code }, repo.GetICD, repo.PutICD)
		},
		func() (int, error) {
			return seedCodes(ctx, KindNamaste, seedNamaste, func(c *NamasteCode) string { return c.Code }, repo.GetNamaste, repo.PutNamaste)
		},
		func() (int, error) {
			return seedCodes(ctx, KindTM2, seedTM2, func(c *TM2Code) string { return c.Code }, repo.GetTM2, repo.PutTM2)
		},
		func() (int, error) { return seedMappingSet(ctx, repo) },
	}
	for _, step := range steps {
		written, err := step()
		n += written
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func seedCodes[T any](ctx context.Context, kind Kind, recs []*T, code func(*T) string,
	get func(context.Context, string) (*T, error), put func(context.Context, *T) (*T, error)) (int, error) {
	n := 0
	for _, rec := range recs {
		_, err := get(ctx, code(rec))
		switch {
		case err == nil:
			continue
		case !errors.Is(err, ErrNotFound):
			return n, fmt.Errorf("seed %s %s: %w", kind, code(rec), err)
		}
		if _, err := put(ctx, rec); err != nil {
			return n, fmt.Errorf("seed %s %s: %w", kind, code(rec), err)
		}
		n++
	}
	return n, nil
}

func seedMappingSet(ctx context.Context, repo Repository) (int, error) {
	n := 0
	for _, m := range seedMappings {
		existing, err := repo.QueryMappings(ctx, MappingQuery{
			SourceSystem: m.SourceSystem, SourceCode: m.SourceCode,
			TargetSystem: m.TargetSystem, TargetCode: m.TargetCode,
			IncludeInactive: true,
		})
		if err != nil {
			return n, fmt.Errorf("seed mapping %s -> %s: %w", m.SourceCode, m.TargetCode, err)
		}
		if len(existing) > 0 {
			continue
		}
		active := *m
		active.IsActive = true
		if _, err := repo.PutMapping(ctx, &active); err != nil {
			return n, fmt.Errorf("seed mapping %s -> %s: %w", m.SourceCode, m.TargetCode, err)
		}
		n++
	}
	return n, nil
}
