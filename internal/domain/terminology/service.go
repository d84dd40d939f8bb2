package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medisutra/bridge/internal/platform/fhir"
	"github.com/medisutra/bridge/internal/platform/metrics"
)

// DefaultSearchLimit caps each code system's results when a search gives no limit.
const DefaultSearchLimit = 50

// Service is the Mapping Resolver and Search Aggregator over a Repository.
type Service struct {
	repo     Repository
	activity ActivityRepository
	gen      *fhir.Generator
	version  string
	logger   zerolog.Logger
	metrics  *metrics.Collector
}

// NewService creates a terminology service. activity may be nil, in which
// case searches are not logged.
func NewService(repo Repository, activity ActivityRepository) *Service {
	return &Service{
		repo:     repo,
		activity: activity,
		gen:      fhir.NewGenerator(fhir.DefaultNamespaces()),
		version:  "1.0.0",
		logger:   zerolog.Nop(),
	}
}

func (s *Service) SetLogger(l zerolog.Logger)          { s.logger = l }
func (s *Service) SetMetrics(m *metrics.Collector)     { s.metrics = m }
func (s *Service) SetGenerator(g *fhir.Generator)      { s.gen = g }
func (s *Service) SetCodeSystemVersion(version string) { s.version = version }

// Generator returns the FHIR generator used for derived resources.
func (s *Service) Generator() *fhir.Generator { return s.gen }

// Repository returns the underlying repository.
func (s *Service) Repository() Repository { return s.repo }

// -- Writes --

func (s *Service) PutICD(ctx context.Context, c *ICDCode) (*ICDCode, error) {
	out, err := s.repo.PutICD(ctx, c)
	s.logPutError(err, KindICD, c.Code)
	return out, err
}

func (s *Service) PutNamaste(ctx context.Context, c *NamasteCode) (*NamasteCode, error) {
	out, err := s.repo.PutNamaste(ctx, c)
	s.logPutError(err, KindNamaste, c.Code)
	return out, err
}

func (s *Service) PutTM2(ctx context.Context, c *TM2Code) (*TM2Code, error) {
	out, err := s.repo.PutTM2(ctx, c)
	s.logPutError(err, KindTM2, c.Code)
	return out, err
}

func (s *Service) PutMapping(ctx context.Context, m *CodeMapping) (*CodeMapping, error) {
	return s.repo.PutMapping(ctx, m)
}

func (s *Service) logPutError(err error, kind Kind, code string) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrDuplicateCode) {
		s.logger.Warn().Str("kind", string(kind)).Str("code", code).Msg("duplicate code rejected")
	}
}

// -- Lookups --

// GetCode returns the record for (kind, code) with denormalized mapping
// fields filled in from the mapping table.
func (s *Service) GetCode(ctx context.Context, kind Kind, code string) (interface{}, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required: %w", ErrInvalidInput)
	}
	switch kind {
	case KindICD:
		return s.repo.GetICD(ctx, code)
	case KindNamaste:
		c, err := s.repo.GetNamaste(ctx, code)
		if err != nil {
			return nil, err
		}
		return c, s.refreshNamaste(ctx, c)
	case KindTM2:
		c, err := s.repo.GetTM2(ctx, code)
		if err != nil {
			return nil, err
		}
		return c, s.refreshTM2(ctx, c)
	}
	return nil, fmt.Errorf("unknown code kind %q: %w", kind, ErrInvalidInput)
}

// ListCodes returns one page of a kind's codes plus the total.
func (s *Service) ListCodes(ctx context.Context, kind Kind, limit, offset int) (interface{}, int, error) {
	switch kind {
	case KindICD:
		return s.repo.ListICD(ctx, limit, offset)
	case KindNamaste:
		return s.repo.ListNamaste(ctx, limit, offset)
	case KindTM2:
		return s.repo.ListTM2(ctx, limit, offset)
	}
	return nil, 0, fmt.Errorf("unknown code kind %q: %w", kind, ErrInvalidInput)
}

// CodesBySystem returns NAMASTE codes of one traditional medicine system.
func (s *Service) CodesBySystem(ctx context.Context, system string) ([]*NamasteCode, error) {
	system = strings.ToUpper(strings.TrimSpace(system))
	if !IsNamasteSystem(system) {
		return nil, fmt.Errorf("system must be one of %s: %w", strings.Join(NamasteSystems, ", "), ErrInvalidInput)
	}
	codes, err := s.repo.NamasteBySystem(ctx, system)
	if err != nil {
		return nil, err
	}
	for _, c := range codes {
		if err := s.refreshNamaste(ctx, c); err != nil {
			return nil, err
		}
	}
	return codes, nil
}

func (s *Service) HierarchyRoots(ctx context.Context) ([]*ICDCode, error) {
	return s.repo.ICDRoots(ctx)
}

func (s *Service) ICDByChapter(ctx context.Context, chapter string) ([]*ICDCode, error) {
	if chapter == "" {
		return nil, fmt.Errorf("chapter is required: %w", ErrInvalidInput)
	}
	return s.repo.ICDByChapter(ctx, chapter)
}

// ICDChildren returns the direct children of an ICD code. Children named in
// the parent's list come first in that order, followed by any other record
// that names the parent.
func (s *Service) ICDChildren(ctx context.Context, code string) ([]*ICDCode, error) {
	parent, err := s.repo.GetICD(ctx, code)
	if err != nil {
		return nil, err
	}
	linked, err := s.repo.ICDChildren(ctx, code)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*ICDCode, len(linked))
	for _, c := range linked {
		byCode[c.Code] = c
	}

	out := make([]*ICDCode, 0, len(linked))
	seen := make(map[string]bool)
	for _, childCode := range parent.Children {
		if c, ok := byCode[childCode]; ok {
			out = append(out, c)
			seen[childCode] = true
			continue
		}
		if c, err := s.repo.GetICD(ctx, childCode); err == nil {
			out = append(out, c)
			seen[childCode] = true
		}
	}
	for _, c := range linked {
		if !seen[c.Code] {
			out = append(out, c)
		}
	}
	return out, nil
}

// -- Mapping Resolver --

// ResolveMappings returns active mappings from (system, code), one per
// distinct target, with titles resolved for both ends. Unknown codes yield an
// empty list.
func (s *Service) ResolveMappings(ctx context.Context, system, code string) ([]*EnrichedMapping, error) {
	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{SourceSystem: system, SourceCode: code})
	if err != nil {
		return nil, fmt.Errorf("resolve mappings: %w", err)
	}
	s.metrics.MappingsResolved(system)
	return s.enrich(ctx, dedupByTarget(mappings)), nil
}

// Translate returns active mappings from (sourceSystem, sourceCode) into
// targetSystem, one per distinct target code.
func (s *Service) Translate(ctx context.Context, sourceSystem, sourceCode, targetSystem string) ([]*CodeMapping, error) {
	if sourceSystem == "" || sourceCode == "" || targetSystem == "" {
		return nil, fmt.Errorf("sourceSystem, sourceCode and targetSystem are required: %w", ErrInvalidInput)
	}
	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{
		SourceSystem: sourceSystem,
		SourceCode:   sourceCode,
		TargetSystem: targetSystem,
	})
	if err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	out := dedupByTarget(mappings)
	if out == nil {
		out = []*CodeMapping{}
	}
	return out, nil
}

// TranslateEnriched is Translate with titles resolved.
func (s *Service) TranslateEnriched(ctx context.Context, sourceSystem, sourceCode, targetSystem string) ([]*EnrichedMapping, error) {
	mappings, err := s.Translate(ctx, sourceSystem, sourceCode, targetSystem)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, mappings), nil
}

// ReverseMappings returns active mappings whose target is (system, code),
// one per distinct source. This is the derived inverse of the stored
// forward records.
func (s *Service) ReverseMappings(ctx context.Context, system, code string) ([]*EnrichedMapping, error) {
	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{TargetSystem: system, TargetCode: code})
	if err != nil {
		return nil, fmt.Errorf("reverse mappings: %w", err)
	}
	seen := make(map[string]bool)
	var out []*CodeMapping
	for _, m := range mappings {
		key := m.SourceSystem + "|" + m.SourceCode
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return s.enrich(ctx, out), nil
}

// dedupByTarget keeps the first mapping for each (targetSystem, targetCode).
func dedupByTarget(mappings []*CodeMapping) []*CodeMapping {
	seen := make(map[string]bool, len(mappings))
	var out []*CodeMapping
	for _, m := range mappings {
		key := m.TargetSystem + "|" + m.TargetCode
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func (s *Service) enrich(ctx context.Context, mappings []*CodeMapping) []*EnrichedMapping {
	titles := make(map[string]string)
	out := make([]*EnrichedMapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, &EnrichedMapping{
			CodeMapping: *m,
			SourceTitle: s.cachedTitle(ctx, titles, m.SourceSystem, m.SourceCode),
			TargetTitle: s.cachedTitle(ctx, titles, m.TargetSystem, m.TargetCode),
		})
	}
	return out
}

func (s *Service) cachedTitle(ctx context.Context, cache map[string]string, system, code string) string {
	key := system + "|" + code
	if t, ok := cache[key]; ok {
		return t
	}
	t := s.Title(ctx, system, code)
	cache[key] = t
	return t
}

// Title returns the display title of (system, code), or code itself when
// the system or code is unknown. system may also be a namespace URI.
func (s *Service) Title(ctx context.Context, system, code string) string {
	kind, err := ParseKind(s.gen.Namespaces().System(system))
	if err != nil {
		return code
	}
	var title string
	switch kind {
	case KindICD:
		if c, err := s.repo.GetICD(ctx, code); err == nil {
			title = c.Title
		}
	case KindNamaste:
		if c, err := s.repo.GetNamaste(ctx, code); err == nil {
			title = c.Title
		}
	case KindTM2:
		if c, err := s.repo.GetTM2(ctx, code); err == nil {
			title = c.Title
		}
	}
	if title == "" {
		return code
	}
	return title
}

// -- Denormalized fields --

func (s *Service) firstTarget(ctx context.Context, sourceSystem, sourceCode, targetSystem string) (string, error) {
	ms, err := s.repo.QueryMappings(ctx, MappingQuery{SourceSystem: sourceSystem, SourceCode: sourceCode, TargetSystem: targetSystem})
	if err != nil {
		return "", err
	}
	if len(ms) > 0 {
		return ms[0].TargetCode, nil
	}
	// fall back to the inverse of a stored forward mapping
	ms, err = s.repo.QueryMappings(ctx, MappingQuery{SourceSystem: targetSystem, TargetSystem: sourceSystem, TargetCode: sourceCode})
	if err != nil {
		return "", err
	}
	if len(ms) > 0 {
		return ms[0].SourceCode, nil
	}
	return "", nil
}

// refreshNamaste fills empty icdMapping/tm2Mapping from the mapping table.
func (s *Service) refreshNamaste(ctx context.Context, c *NamasteCode) error {
	var err error
	if c.ICDMapping == "" {
		if c.ICDMapping, err = s.firstTarget(ctx, fhir.SystemNamaste, c.Code, fhir.SystemICD11); err != nil {
			return err
		}
	}
	if c.TM2Mapping == "" {
		if c.TM2Mapping, err = s.firstTarget(ctx, fhir.SystemNamaste, c.Code, fhir.SystemTM2); err != nil {
			return err
		}
	}
	return nil
}

// refreshTM2 fills empty icdMapping/namasteMapping from the mapping table.
func (s *Service) refreshTM2(ctx context.Context, c *TM2Code) error {
	var err error
	if c.ICDMapping == "" {
		if c.ICDMapping, err = s.firstTarget(ctx, fhir.SystemTM2, c.Code, fhir.SystemICD11); err != nil {
			return err
		}
	}
	if c.NamasteMapping == "" {
		if c.NamasteMapping, err = s.firstTarget(ctx, fhir.SystemTM2, c.Code, fhir.SystemNamaste); err != nil {
			return err
		}
	}
	return nil
}

// -- Search Aggregator --

// SearchAll runs query against all three code kinds and logs the search.
func (s *Service) SearchAll(ctx context.Context, query string, limit int) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required: %w", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	icd, err := s.repo.SearchICD(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	namaste, err := s.repo.SearchNamaste(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	tm2, err := s.repo.SearchTM2(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	res := &SearchResults{ICDCodes: icd, NamasteCodes: namaste, TM2Codes: tm2}
	if res.ICDCodes == nil {
		res.ICDCodes = []*ICDCode{}
	}
	if res.NamasteCodes == nil {
		res.NamasteCodes = []*NamasteCode{}
	}
	if res.TM2Codes == nil {
		res.TM2Codes = []*TM2Code{}
	}

	s.metrics.SearchPerformed(res.Total())
	if s.activity != nil {
		if err := s.activity.LogSearch(ctx, &SearchActivity{Query: query, ResultCount: res.Total()}); err != nil {
			s.logger.Warn().Err(err).Str("query", query).Msg("failed to log search activity")
		}
	}
	return res, nil
}

// RecentActivity returns the most recent searches, newest first.
func (s *Service) RecentActivity(ctx context.Context, limit int) ([]*SearchActivity, error) {
	if s.activity == nil {
		return []*SearchActivity{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return s.activity.Recent(ctx, limit)
}

// -- Integrity and statistics --

// CheckHierarchy reports every violation of the ICD parent/child invariant.
// An empty result means the hierarchy is consistent and acyclic.
func (s *Service) CheckHierarchy(ctx context.Context) ([]HierarchyIssue, error) {
	all, _, err := s.repo.ListICD(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]*ICDCode, len(all))
	for _, c := range all {
		byCode[c.Code] = c
	}

	issues := []HierarchyIssue{}
	for _, c := range all {
		if c.ParentCode != nil && *c.ParentCode != "" {
			parent, ok := byCode[*c.ParentCode]
			switch {
			case !ok:
				issues = append(issues, HierarchyIssue{Code: c.Code, Related: *c.ParentCode, Problem: "parent does not exist"})
			case !containsString(parent.Children, c.Code):
				issues = append(issues, HierarchyIssue{Code: c.Code, Related: parent.Code, Problem: "parent does not list code as child"})
			}
		}
		for _, childCode := range c.Children {
			child, ok := byCode[childCode]
			switch {
			case !ok:
				issues = append(issues, HierarchyIssue{Code: c.Code, Related: childCode, Problem: "child does not exist"})
			case child.ParentCode == nil || *child.ParentCode != c.Code:
				issues = append(issues, HierarchyIssue{Code: c.Code, Related: childCode, Problem: "child does not list code as parent"})
			}
		}
	}

	// walk parent links; revisiting a code on one walk is a cycle
	reported := make(map[string]bool)
	for _, c := range all {
		visited := map[string]bool{c.Code: true}
		cur := c
		for cur.ParentCode != nil && *cur.ParentCode != "" {
			next, ok := byCode[*cur.ParentCode]
			if !ok {
				break
			}
			if visited[next.Code] {
				if !reported[next.Code] {
					reported[next.Code] = true
					issues = append(issues, HierarchyIssue{Code: next.Code, Related: cur.Code, Problem: "cycle in parent chain"})
				}
				break
			}
			visited[next.Code] = true
			cur = next
		}
	}
	return issues, nil
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Stats counts codes per kind, NAMASTE codes per system and active mappings
// per target system.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		Codes:          make(map[Kind]int),
		NamasteSystems: make(map[string]int),
		Mappings:       make(map[string]int),
	}
	for _, k := range Kinds {
		_, total, err := s.ListCodes(ctx, k, 1, 0)
		if err != nil {
			return nil, err
		}
		st.Codes[k] = total
	}
	for _, sys := range NamasteSystems {
		codes, err := s.repo.NamasteBySystem(ctx, sys)
		if err != nil {
			return nil, err
		}
		st.NamasteSystems[sys] = len(codes)
	}
	mappings, err := s.repo.QueryMappings(ctx, MappingQuery{})
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		st.Mappings[m.TargetSystem]++
	}
	st.TotalMappings = len(mappings)
	return st, nil
}
