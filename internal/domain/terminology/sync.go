package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medisutra/bridge/internal/platform/fhir"
	"github.com/medisutra/bridge/internal/platform/whoicd"
)

// EntitySource resolves ICD-11 MMS codes to WHO entities.
type EntitySource interface {
	LookupCode(ctx context.Context, code string) (*whoicd.Entity, error)
}

// SyncResult summarizes one ICD synchronisation run.
type SyncResult struct {
	Fetched []string          `json:"fetched"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed"`
}

// SyncICD fetches each code that is not yet stored and saves it as an ICD
// record. Codes already present are skipped. A failed lookup is recorded
// against its code and does not stop the run; only a context error does.
func (s *Service) SyncICD(ctx context.Context, src EntitySource, codes []string) (*SyncResult, error) {
	res := &SyncResult{Fetched: []string{}, Skipped: []string{}, Failed: map[string]string{}}
	seen := make(map[string]bool, len(codes))

	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, err := s.repo.GetICD(ctx, code); err == nil {
			res.Skipped = append(res.Skipped, code)
			s.metrics.ICDSynced("skipped")
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return res, fmt.Errorf("check icd %s: %w", code, err)
		}

		entity, err := src.LookupCode(ctx, code)
		if err != nil {
			res.Failed[code] = err.Error()
			s.metrics.ICDSynced("failed")
			s.logger.Warn().Err(err).Str("code", code).Msg("icd lookup failed")
			continue
		}
		if _, err := s.repo.PutICD(ctx, icdFromEntity(code, entity)); err != nil {
			res.Failed[code] = err.Error()
			s.metrics.ICDSynced("failed")
			continue
		}
		res.Fetched = append(res.Fetched, code)
		s.metrics.ICDSynced("fetched")
	}

	s.logger.Info().
		Int("fetched", len(res.Fetched)).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Msg("icd sync finished")
	return res, nil
}

// SyncMissingICD syncs every ICD-11 code that an active mapping targets but
// the repository does not hold.
func (s *Service) SyncMissingICD(ctx context.Context, src EntitySource) (*SyncResult, error) {
	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{TargetSystem: fhir.SystemICD11})
	if err != nil {
		return nil, fmt.Errorf("list icd targets: %w", err)
	}
	var missing []string
	for _, m := range mappings {
		if _, err := s.repo.GetICD(ctx, m.TargetCode); errors.Is(err, ErrNotFound) {
			missing = append(missing, m.TargetCode)
		}
	}
	return s.SyncICD(ctx, src, missing)
}

func icdFromEntity(code string, e *whoicd.Entity) *ICDCode {
	title := e.Title
	if title == "" {
		title = code
	}
	md := Metadata{"source": "who-icd-api"}
	if e.URI != "" {
		md["who_uri"] = e.URI
	}
	if e.BrowserURL != "" {
		md["browserUrl"] = e.BrowserURL
	}
	if len(e.ParentURIs) > 0 {
		md["parentUris"] = e.ParentURIs
	}
	return &ICDCode{
		Term: Term{
			Code:        code,
			Title:       title,
			Description: e.Definition,
			Metadata:    md,
		},
		Category: e.ClassKind,
	}
}
