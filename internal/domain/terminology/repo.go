package terminology

import "context"

// CodeRepository stores ICD, NAMASTE and TM2 codes. Put operations assign
// id and createdAt when absent; codes are unique per kind. Reads return
// copies. Get operations return ErrNotFound for unknown codes.
type CodeRepository interface {
	PutICD(ctx context.Context, c *ICDCode) (*ICDCode, error)
	PutNamaste(ctx context.Context, c *NamasteCode) (*NamasteCode, error)
	PutTM2(ctx context.Context, c *TM2Code) (*TM2Code, error)

	GetICD(ctx context.Context, code string) (*ICDCode, error)
	GetNamaste(ctx context.Context, code string) (*NamasteCode, error)
	GetTM2(ctx context.Context, code string) (*TM2Code, error)

	// List operations return one page in insertion order plus the total count.
	ListICD(ctx context.Context, limit, offset int) ([]*ICDCode, int, error)
	ListNamaste(ctx context.Context, limit, offset int) ([]*NamasteCode, int, error)
	ListTM2(ctx context.Context, limit, offset int) ([]*TM2Code, int, error)

	NamasteBySystem(ctx context.Context, system string) ([]*NamasteCode, error)
	ICDRoots(ctx context.Context) ([]*ICDCode, error)
	ICDByChapter(ctx context.Context, chapter string) ([]*ICDCode, error)
	ICDChildren(ctx context.Context, parentCode string) ([]*ICDCode, error)

	SearchICD(ctx context.Context, query string, limit int) ([]*ICDCode, error)
	SearchNamaste(ctx context.Context, query string, limit int) ([]*NamasteCode, error)
	SearchTM2(ctx context.Context, query string, limit int) ([]*TM2Code, error)
}

// MappingRepository stores directional code mappings. QueryMappings returns
// matches in insertion order.
type MappingRepository interface {
	PutMapping(ctx context.Context, m *CodeMapping) (*CodeMapping, error)
	QueryMappings(ctx context.Context, q MappingQuery) ([]*CodeMapping, error)
}

// BatchRepository writes an import batch as one unit: either every code
// and mapping is stored or none is. Under the reject policy existing codes
// fail the batch with a *BatchDuplicateError naming all of them.
type BatchRepository interface {
	PutNamasteBatch(ctx context.Context, codes []*NamasteCode, mappings []*CodeMapping) ([]*NamasteCode, []*CodeMapping, error)
}

// Repository is the full Terminology Repository.
type Repository interface {
	CodeRepository
	MappingRepository
	BatchRepository
}

// ActivityRepository is the append-only search activity log.
type ActivityRepository interface {
	LogSearch(ctx context.Context, a *SearchActivity) error
	Recent(ctx context.Context, limit int) ([]*SearchActivity, error)
}
