// Package search provides an in-memory full-text index over terminology
// records. The index stores only ids; callers resolve ids against their own
// record store.
package search

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Indexed field names.
const (
	FieldKind        = "kind"
	FieldCode        = "code"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldExtra       = "extra"
)

// Document is one searchable record.
type Document struct {
	ID          string
	Kind        string
	Code        string
	Title       string
	Description string
	Extra       []string // e.g. category, pattern, synonyms
}

// Index wraps a memory-only bleve index.
type Index struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// NewIndexMapping creates the bleve mapping for terminology documents.
func NewIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// kind and code are matched exactly; code is lowercased before indexing
	kindField := bleve.NewTextFieldMapping()
	kindField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(FieldKind, kindField)

	codeField := bleve.NewTextFieldMapping()
	codeField.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(FieldCode, codeField)

	for _, name := range []string{FieldTitle, FieldDescription, FieldExtra} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = standard.Name
		docMapping.AddFieldMappingsAt(name, f)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// NewMemIndex creates an empty in-memory index.
func NewMemIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Put indexes or re-indexes a document.
func (i *Index) Put(doc Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	data := map[string]interface{}{
		FieldKind:        doc.Kind,
		FieldCode:        strings.ToLower(doc.Code),
		FieldTitle:       doc.Title,
		FieldDescription: doc.Description,
		FieldExtra:       strings.Join(doc.Extra, " "),
	}
	if err := i.idx.Index(doc.ID, data); err != nil {
		return fmt.Errorf("index %s: %w", doc.ID, err)
	}
	return nil
}

// Delete removes a document from the index.
func (i *Index) Delete(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.idx.Delete(id)
}

// Count returns the number of indexed documents.
func (i *Index) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.idx.DocCount()
}

// Search returns ids of documents of the given kind matching text, best
// match first. The code field matches on case-insensitive substring, the
// text fields on analyzed terms and term prefixes.
func (i *Index) Search(kind, text string, limit int) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	req := bleve.NewSearchRequest(buildQuery(kind, text))
	req.Size = limit

	i.mu.RLock()
	res, err := i.idx.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", text, err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func buildQuery(kind, text string) query.Query {
	lower := strings.ToLower(text)
	cleaned := strings.NewReplacer("*", "", "?", "", "\\", "").Replace(lower)

	codeQuery := bleve.NewWildcardQuery("*" + cleaned + "*")
	codeQuery.SetField(FieldCode)
	codeQuery.SetBoost(5.0)

	should := []query.Query{codeQuery}
	for _, field := range []string{FieldTitle, FieldDescription, FieldExtra} {
		m := bleve.NewMatchQuery(text)
		m.SetField(field)
		should = append(should, m)
	}
	// prefix match on the last typed token so partial words hit
	if fields := strings.Fields(cleaned); len(fields) > 0 {
		p := bleve.NewPrefixQuery(fields[len(fields)-1])
		p.SetField(FieldTitle)
		should = append(should, p)
	}

	textQuery := bleve.NewDisjunctionQuery(should...)
	if kind == "" {
		return textQuery
	}
	kindQuery := bleve.NewTermQuery(kind)
	kindQuery.SetField(FieldKind)
	return bleve.NewConjunctionQuery(textQuery, kindQuery)
}
