package terminology

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medisutra/bridge/internal/platform/search"
)

// DuplicatePolicy decides what a put does with a code that already exists.
type DuplicatePolicy string

const (
	DuplicateReject  DuplicatePolicy = "reject"
	DuplicateReplace DuplicatePolicy = "replace"
)

// ParseDuplicatePolicy validates a configured policy name.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(s)) {
	case "", DuplicateReject:
		return DuplicateReject, nil
	case DuplicateReplace:
		return DuplicateReplace, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q: %w", s, ErrInvalidInput)
}

// table is one kind's record store with a secondary code index.
type table[T any] struct {
	kind   Kind
	byID   map[string]*T
	byCode map[string]string
	order  []string
	term   func(*T) *Term
	clone  func(*T) *T
}

func newTable[T any](kind Kind, term func(*T) *Term, clone func(*T) *T) *table[T] {
	return &table[T]{
		kind:   kind,
		byID:   make(map[string]*T),
		byCode: make(map[string]string),
		term:   term,
		clone:  clone,
	}
}

func (t *table[T]) put(rec *T, policy DuplicatePolicy) (stored *T, replacedID string, err error) {
	in := t.term(rec)
	if strings.TrimSpace(in.Code) == "" {
		return nil, "", fmt.Errorf("%s code is required: %w", t.kind, ErrInvalidInput)
	}

	stored = t.clone(rec)
	st := t.term(stored)
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	if oldID, exists := t.byCode[st.Code]; exists {
		if policy != DuplicateReplace {
			return nil, "", &DuplicateCodeError{Kind: t.kind, Code: st.Code}
		}
		// the replacement takes over the stored record's id and position
		st.ID = oldID
		replacedID = oldID
	} else {
		t.order = append(t.order, st.ID)
	}

	t.byID[st.ID] = stored
	t.byCode[st.Code] = st.ID
	return t.clone(stored), replacedID, nil
}

// existing returns the codes that are already stored or repeat earlier in
// the batch, in batch order.
func (t *table[T]) existing(recs []*T) []string {
	var dups []string
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		code := t.term(rec).Code
		if _, ok := t.byCode[code]; ok || seen[code] {
			dups = append(dups, code)
		}
		seen[code] = true
	}
	return dups
}

func (t *table[T]) get(code string) (*T, error) {
	id, ok := t.byCode[code]
	if !ok {
		return nil, notFound(t.kind, code)
	}
	return t.clone(t.byID[id]), nil
}

func (t *table[T]) filter(keep func(*T) bool) []*T {
	var out []*T
	for _, id := range t.order {
		rec := t.byID[id]
		if keep == nil || keep(rec) {
			out = append(out, t.clone(rec))
		}
	}
	return out
}

func (t *table[T]) page(limit, offset int) ([]*T, int) {
	total := len(t.order)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []*T{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]*T, 0, end-offset)
	for _, id := range t.order[offset:end] {
		out = append(out, t.clone(t.byID[id]))
	}
	return out, total
}

func (t *table[T]) byIDs(ids []string) []*T {
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		if rec, ok := t.byID[id]; ok {
			out = append(out, t.clone(rec))
		}
	}
	return out
}

func (t *table[T]) substring(query string, limit int) []*T {
	q := strings.ToLower(query)
	var out []*T
	for _, id := range t.order {
		rec := t.byID[id]
		tm := t.term(rec)
		if strings.Contains(strings.ToLower(tm.Code), q) ||
			strings.Contains(strings.ToLower(tm.Title), q) ||
			strings.Contains(strings.ToLower(tm.Description), q) {
			out = append(out, t.clone(rec))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// MemoryRepository is the in-memory Terminology Repository. A single lock
// serialises writers so the duplicate check and insert are atomic.
type MemoryRepository struct {
	mu       sync.RWMutex
	policy   DuplicatePolicy
	icd      *table[ICDCode]
	namaste  *table[NamasteCode]
	tm2      *table[TM2Code]
	mappings []*CodeMapping
	index    *search.Index
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository(policy DuplicatePolicy) *MemoryRepository {
	if policy == "" {
		policy = DuplicateReject
	}
	return &MemoryRepository{
		policy:  policy,
		icd:     newTable(KindICD, func(c *ICDCode) *Term { return &c.Term }, (*ICDCode).clone),
		namaste: newTable(KindNamaste, func(c *NamasteCode) *Term { return &c.Term }, (*NamasteCode).clone),
		tm2:     newTable(KindTM2, func(c *TM2Code) *Term { return &c.Term }, (*TM2Code).clone),
	}
}

// SetSearchIndex routes Search* calls through a full-text index. Codes put
// after this call are indexed; call it before loading data.
func (r *MemoryRepository) SetSearchIndex(idx *search.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = idx
}

func (r *MemoryRepository) reindex(doc search.Document, replacedID string) error {
	if r.index == nil {
		return nil
	}
	if replacedID != "" && replacedID != doc.ID {
		if err := r.index.Delete(replacedID); err != nil {
			return err
		}
	}
	return r.index.Put(doc)
}

func (r *MemoryRepository) PutICD(_ context.Context, c *ICDCode) (*ICDCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, replaced, err := r.icd.put(c, r.policy)
	if err != nil {
		return nil, err
	}
	if err := r.reindex(icdDocument(stored), replaced); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *MemoryRepository) PutNamaste(_ context.Context, c *NamasteCode) (*NamasteCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, replaced, err := r.namaste.put(c, r.policy)
	if err != nil {
		return nil, err
	}
	if err := r.reindex(namasteDocument(stored), replaced); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *MemoryRepository) PutTM2(_ context.Context, c *TM2Code) (*TM2Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, replaced, err := r.tm2.put(c, r.policy)
	if err != nil {
		return nil, err
	}
	if err := r.reindex(tm2Document(stored), replaced); err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *MemoryRepository) GetICD(_ context.Context, code string) (*ICDCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.icd.get(code)
}

func (r *MemoryRepository) GetNamaste(_ context.Context, code string) (*NamasteCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namaste.get(code)
}

func (r *MemoryRepository) GetTM2(_ context.Context, code string) (*TM2Code, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tm2.get(code)
}

func (r *MemoryRepository) ListICD(_ context.Context, limit, offset int) ([]*ICDCode, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, total := r.icd.page(limit, offset)
	return out, total, nil
}

func (r *MemoryRepository) ListNamaste(_ context.Context, limit, offset int) ([]*NamasteCode, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, total := r.namaste.page(limit, offset)
	return out, total, nil
}

func (r *MemoryRepository) ListTM2(_ context.Context, limit, offset int) ([]*TM2Code, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, total := r.tm2.page(limit, offset)
	return out, total, nil
}

func (r *MemoryRepository) NamasteBySystem(_ context.Context, system string) ([]*NamasteCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namaste.filter(func(c *NamasteCode) bool { return c.System == system }), nil
}

func (r *MemoryRepository) ICDRoots(_ context.Context) ([]*ICDCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.icd.filter(func(c *ICDCode) bool { return c.ParentCode == nil || *c.ParentCode == "" }), nil
}

func (r *MemoryRepository) ICDByChapter(_ context.Context, chapter string) ([]*ICDCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.icd.filter(func(c *ICDCode) bool { return c.Chapter == chapter }), nil
}

func (r *MemoryRepository) ICDChildren(_ context.Context, parentCode string) ([]*ICDCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.icd.filter(func(c *ICDCode) bool { return c.ParentCode != nil && *c.ParentCode == parentCode }), nil
}

func (r *MemoryRepository) SearchICD(_ context.Context, query string, limit int) ([]*ICDCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil {
		return r.icd.substring(query, limit), nil
	}
	ids, err := r.index.Search(string(KindICD), query, limit)
	if err != nil {
		return nil, fmt.Errorf("icd search: %w", err)
	}
	return r.icd.byIDs(ids), nil
}

func (r *MemoryRepository) SearchNamaste(_ context.Context, query string, limit int) ([]*NamasteCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil {
		return r.namaste.substring(query, limit), nil
	}
	ids, err := r.index.Search(string(KindNamaste), query, limit)
	if err != nil {
		return nil, fmt.Errorf("namaste search: %w", err)
	}
	return r.namaste.byIDs(ids), nil
}

func (r *MemoryRepository) SearchTM2(_ context.Context, query string, limit int) ([]*TM2Code, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil {
		return r.tm2.substring(query, limit), nil
	}
	ids, err := r.index.Search(string(KindTM2), query, limit)
	if err != nil {
		return nil, fmt.Errorf("tm2 search: %w", err)
	}
	return r.tm2.byIDs(ids), nil
}

// PutNamasteBatch stores codes and mappings under one write lock after
// checking every code, so a rejected batch leaves the repository untouched.
func (r *MemoryRepository) PutNamasteBatch(_ context.Context, codes []*NamasteCode, mappings []*CodeMapping) ([]*NamasteCode, []*CodeMapping, error) {
	for _, c := range codes {
		if strings.TrimSpace(c.Code) == "" {
			return nil, nil, fmt.Errorf("%s code is required: %w", KindNamaste, ErrInvalidInput)
		}
	}
	newMappings := make([]*CodeMapping, 0, len(mappings))
	for _, m := range mappings {
		rec, err := newMappingRecord(m)
		if err != nil {
			return nil, nil, err
		}
		newMappings = append(newMappings, rec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.policy != DuplicateReplace {
		if dups := r.namaste.existing(codes); len(dups) > 0 {
			return nil, nil, &BatchDuplicateError{Kind: KindNamaste, Codes: dups}
		}
	}

	storedCodes := make([]*NamasteCode, 0, len(codes))
	replaced := make([]string, 0, len(codes))
	for _, c := range codes {
		stored, replacedID, err := r.namaste.put(c, r.policy)
		if err != nil {
			return nil, nil, err
		}
		storedCodes = append(storedCodes, stored)
		replaced = append(replaced, replacedID)
	}
	storedMappings := make([]*CodeMapping, 0, len(newMappings))
	for _, m := range newMappings {
		r.mappings = append(r.mappings, m)
		storedMappings = append(storedMappings, m.clone())
	}

	for i, c := range storedCodes {
		if err := r.reindex(namasteDocument(c), replaced[i]); err != nil {
			return nil, nil, fmt.Errorf("index namaste %s: %w", c.Code, err)
		}
	}
	return storedCodes, storedMappings, nil
}

func (r *MemoryRepository) PutMapping(_ context.Context, m *CodeMapping) (*CodeMapping, error) {
	stored, err := newMappingRecord(m)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.mappings = append(r.mappings, stored)
	r.mu.Unlock()
	return stored.clone(), nil
}

func (r *MemoryRepository) QueryMappings(_ context.Context, q MappingQuery) ([]*CodeMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*CodeMapping
	for _, m := range r.mappings {
		if q.Matches(m) {
			out = append(out, m.clone())
		}
	}
	return out, nil
}

func validateMapping(m *CodeMapping) error {
	if m.SourceSystem == "" || m.SourceCode == "" || m.TargetSystem == "" || m.TargetCode == "" {
		return fmt.Errorf("mapping requires source and target system and code: %w", ErrInvalidInput)
	}
	return nil
}

// newMappingRecord validates m and returns a copy with id, createdAt and
// confidence defaulted.
func newMappingRecord(m *CodeMapping) (*CodeMapping, error) {
	if err := validateMapping(m); err != nil {
		return nil, err
	}
	out := m.clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	if out.Confidence == "" {
		out.Confidence = ConfidenceHigh
	}
	return out, nil
}

func icdDocument(c *ICDCode) search.Document {
	return search.Document{
		ID: c.ID, Kind: string(KindICD), Code: c.Code, Title: c.Title, Description: c.Description,
		Extra: []string{c.Chapter, c.Category},
	}
}

func namasteDocument(c *NamasteCode) search.Document {
	extra := []string{c.Category}
	extra = append(extra, metadataStrings(c.Metadata, "synonyms")...)
	return search.Document{
		ID: c.ID, Kind: string(KindNamaste), Code: c.Code, Title: c.Title, Description: c.Description,
		Extra: extra,
	}
}

func tm2Document(c *TM2Code) search.Document {
	return search.Document{
		ID: c.ID, Kind: string(KindTM2), Code: c.Code, Title: c.Title, Description: c.Description,
		Extra: []string{c.Pattern},
	}
}

// metadataStrings reads a string or string-list value from a metadata bag.
func metadataStrings(m Metadata, key string) []string {
	switch v := m[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
