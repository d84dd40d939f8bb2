package terminology

import (
	"fmt"
	"strings"
	"time"

	"github.com/medisutra/bridge/internal/platform/fhir"
)

// Kind identifies one of the three code tables.
type Kind string

const (
	KindICD     Kind = "ICD"
	KindNamaste Kind = "NAMASTE"
	KindTM2     Kind = "TM2"
)

// Kinds lists every code kind in a stable order.
var Kinds = []Kind{KindICD, KindNamaste, KindTM2}

// System returns the logical mapping-system name for the kind.
func (k Kind) System() string {
	switch k {
	case KindICD:
		return fhir.SystemICD11
	case KindNamaste:
		return fhir.SystemNamaste
	case KindTM2:
		return fhir.SystemTM2
	}
	return string(k)
}

// ParseKind accepts a kind or mapping-system name in any case
// ("icd", "ICD-11", "namaste", "tm2").
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ICD", "ICD-11", "ICD11":
		return KindICD, nil
	case "NAMASTE":
		return KindNamaste, nil
	case "TM2":
		return KindTM2, nil
	}
	return "", fmt.Errorf("unknown code kind %q: %w", s, ErrInvalidInput)
}

// NormalizeSystem maps kind aliases onto mapping-system names and leaves
// anything else unchanged.
func NormalizeSystem(s string) string {
	if k, err := ParseKind(s); err == nil {
		return k.System()
	}
	return strings.TrimSpace(s)
}

// NAMASTE traditional medicine systems.
const (
	NamasteAyurveda = "AYU"
	NamasteSiddha   = "SID"
	NamasteUnani    = "UNA"
)

// NamasteSystems lists the accepted NAMASTE system values.
var NamasteSystems = []string{NamasteAyurveda, NamasteSiddha, NamasteUnani}

// IsNamasteSystem reports whether s (already upper-cased) is a NAMASTE system.
func IsNamasteSystem(s string) bool {
	for _, v := range NamasteSystems {
		if v == s {
			return true
		}
	}
	return false
}

// Mapping types.
const (
	MappingExact      = "exact"
	MappingBroader    = "broader"
	MappingNarrower   = "narrower"
	MappingRelated    = "related"
	MappingEquivalent = "equivalent"
)

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Metadata is an open key-value bag for system-specific extensions.
type Metadata map[string]interface{}

func (m Metadata) clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Term holds the fields shared by every code kind.
type Term struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ICDCode is an ICD-11 MMS entry. ParentCode is nil for hierarchy roots.
type ICDCode struct {
	Term
	Chapter    string   `json:"chapter,omitempty"`
	Category   string   `json:"category,omitempty"`
	ParentCode *string  `json:"parentCode"`
	Children   []string `json:"children,omitempty"`
}

func (c *ICDCode) clone() *ICDCode {
	out := *c
	out.Metadata = c.Metadata.clone()
	if c.ParentCode != nil {
		p := *c.ParentCode
		out.ParentCode = &p
	}
	if c.Children != nil {
		out.Children = append([]string(nil), c.Children...)
	}
	return &out
}

// NamasteCode is a NAMASTE Ayurveda/Siddha/Unani diagnosis code.
// ICDMapping and TM2Mapping are denormalized read caches of the mapping table.
type NamasteCode struct {
	Term
	System     string `json:"system"`
	Category   string `json:"category"`
	ICDMapping string `json:"icdMapping,omitempty"`
	TM2Mapping string `json:"tm2Mapping,omitempty"`
}

func (c *NamasteCode) clone() *NamasteCode {
	out := *c
	out.Metadata = c.Metadata.clone()
	return &out
}

// TM2Code is an ICD-11 Traditional Medicine Module 2 pattern code.
type TM2Code struct {
	Term
	Pattern        string `json:"pattern,omitempty"`
	ICDMapping     string `json:"icdMapping,omitempty"`
	NamasteMapping string `json:"namasteMapping,omitempty"`
}

func (c *TM2Code) clone() *TM2Code {
	out := *c
	out.Metadata = c.Metadata.clone()
	return &out
}

// CodeMapping is a directional link between two codes. MappingType values
// outside the known set are stored and returned unchanged.
type CodeMapping struct {
	ID           string    `json:"id"`
	SourceSystem string    `json:"sourceSystem"`
	SourceCode   string    `json:"sourceCode"`
	TargetSystem string    `json:"targetSystem"`
	TargetCode   string    `json:"targetCode"`
	MappingType  string    `json:"mappingType"`
	Confidence   string    `json:"confidence"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (m *CodeMapping) clone() *CodeMapping {
	out := *m
	return &out
}

// EnrichedMapping is a mapping with display titles resolved for both ends.
type EnrichedMapping struct {
	CodeMapping
	SourceTitle string `json:"sourceTitle"`
	TargetTitle string `json:"targetTitle"`
}

// MappingQuery selects mappings. Empty fields match anything; inactive
// mappings are skipped unless IncludeInactive is set.
type MappingQuery struct {
	SourceSystem    string
	SourceCode      string
	TargetSystem    string
	TargetCode      string
	IncludeInactive bool
}

// Matches reports whether m satisfies the query.
func (q MappingQuery) Matches(m *CodeMapping) bool {
	if !q.IncludeInactive && !m.IsActive {
		return false
	}
	if q.SourceSystem != "" && m.SourceSystem != q.SourceSystem {
		return false
	}
	if q.SourceCode != "" && m.SourceCode != q.SourceCode {
		return false
	}
	if q.TargetSystem != "" && m.TargetSystem != q.TargetSystem {
		return false
	}
	if q.TargetCode != "" && m.TargetCode != q.TargetCode {
		return false
	}
	return true
}

// SearchActivity is one logged search call.
type SearchActivity struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	ResultCount int       `json:"resultCount"`
	Timestamp   time.Time `json:"timestamp"`
}

// SearchResults is the unified result of a free-text search.
type SearchResults struct {
	ICDCodes     []*ICDCode     `json:"icdCodes"`
	NamasteCodes []*NamasteCode `json:"namasteCodes"`
	TM2Codes     []*TM2Code     `json:"tm2Codes"`
}

// Total returns the number of codes across all kinds.
func (r *SearchResults) Total() int {
	return len(r.ICDCodes) + len(r.NamasteCodes) + len(r.TM2Codes)
}

// HierarchyIssue describes one violation of the ICD parent/child invariant.
type HierarchyIssue struct {
	Code    string `json:"code"`
	Related string `json:"related,omitempty"`
	Problem string `json:"problem"`
}

// Stats summarises repository contents.
type Stats struct {
	Codes          map[Kind]int   `json:"codes"`
	NamasteSystems map[string]int `json:"namasteSystems"`
	Mappings       map[string]int `json:"mappingsByTarget"`
	TotalMappings  int            `json:"totalMappings"`
}
