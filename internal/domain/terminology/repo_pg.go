package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const pgUniqueViolation = "23505"

// Schema holds the four terminology tables. Each code table has a unique
// code column; seq preserves insertion order.
const Schema = `
CREATE TABLE IF NOT EXISTS icd_codes (
    seq         BIGSERIAL,
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    chapter     TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    parent_code TEXT,
    children    TEXT[],
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_icd_codes_parent ON icd_codes (parent_code);
CREATE INDEX IF NOT EXISTS idx_icd_codes_chapter ON icd_codes (chapter);

CREATE TABLE IF NOT EXISTS namaste_codes (
    seq         BIGSERIAL,
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    system      TEXT NOT NULL,
    category    TEXT NOT NULL DEFAULT '',
    icd_mapping TEXT NOT NULL DEFAULT '',
    tm2_mapping TEXT NOT NULL DEFAULT '',
    metadata    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_namaste_codes_system ON namaste_codes (system);

CREATE TABLE IF NOT EXISTS tm2_codes (
    seq             BIGSERIAL,
    id              TEXT PRIMARY KEY,
    code            TEXT NOT NULL UNIQUE,
    title           TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    pattern         TEXT NOT NULL DEFAULT '',
    icd_mapping     TEXT NOT NULL DEFAULT '',
    namaste_mapping TEXT NOT NULL DEFAULT '',
    metadata        JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS code_mappings (
    seq           BIGSERIAL,
    id            TEXT PRIMARY KEY,
    source_system TEXT NOT NULL,
    source_code   TEXT NOT NULL,
    target_system TEXT NOT NULL,
    target_code   TEXT NOT NULL,
    mapping_type  TEXT NOT NULL,
    confidence    TEXT NOT NULL DEFAULT 'high',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_code_mappings_source ON code_mappings (source_system, source_code);
CREATE INDEX IF NOT EXISTS idx_code_mappings_target ON code_mappings (target_system, target_code);
`

// PGRepository is the Postgres-backed Terminology Repository.
type PGRepository struct {
	pool   *pgxpool.Pool
	policy DuplicatePolicy
}

func NewPGRepository(pool *pgxpool.Pool, policy DuplicatePolicy) *PGRepository {
	if policy == "" {
		policy = DuplicateReject
	}
	return &PGRepository{pool: pool, policy: policy}
}

func (r *PGRepository) conn(_ context.Context) queryable {
	return r.pool
}

// EnsureSchema creates the terminology tables if they do not exist.
func (r *PGRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.conn(ctx).Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure terminology schema: %w", err)
	}
	return nil
}

func prepareTerm(kind Kind, t *Term) error {
	if strings.TrimSpace(t.Code) == "" {
		return fmt.Errorf("%s code is required: %w", kind, ErrInvalidInput)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}

// conflictClause turns a put into an upsert under the replace policy.
func (r *PGRepository) conflictClause(cols ...string) string {
	if r.policy != DuplicateReplace {
		return ""
	}
	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return " ON CONFLICT (code) DO UPDATE SET " + strings.Join(sets, ", ")
}

// batchConflictClause is conflictClause for batch writes: under reject a
// conflicting row is skipped and returns no id.
func (r *PGRepository) batchConflictClause(cols ...string) string {
	if r.policy == DuplicateReplace {
		return r.conflictClause(cols...)
	}
	return " ON CONFLICT (code) DO NOTHING"
}

// likePattern matches query as a literal substring under ILIKE ... ESCAPE '\'.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func duplicateOr(err error, kind Kind, code, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &DuplicateCodeError{Kind: kind, Code: code}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func notFoundOr(err error, kind Kind, code, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, code)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullableLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

// =========== ICD ===========

const icdColumns = `id, code, title, description, chapter, category, parent_code, children, metadata, created_at`

// icdUpdateColumns are rewritten by a replace; id and code stay.
var icdUpdateColumns = []string{"title", "description", "chapter", "category", "parent_code", "children", "metadata", "created_at"}

func scanICD(row scanner) (*ICDCode, error) {
	var c ICDCode
	if err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.Chapter, &c.Category,
		&c.ParentCode, &c.Children, &c.Metadata, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepository) queryICD(ctx context.Context, op, where string, args ...interface{}) ([]*ICDCode, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+icdColumns+` FROM icd_codes `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []*ICDCode
	for rows.Next() {
		c, err := scanICD(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) PutICD(ctx context.Context, c *ICDCode) (*ICDCode, error) {
	out := c.clone()
	if err := prepareTerm(KindICD, &out.Term); err != nil {
		return nil, err
	}
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO icd_codes (`+icdColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`+
			r.conflictClause(icdUpdateColumns...)+
			` RETURNING id, created_at`,
		out.ID, out.Code, out.Title, out.Description, out.Chapter, out.Category,
		out.ParentCode, out.Children, out.Metadata, out.CreatedAt).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, duplicateOr(err, KindICD, out.Code, "icd put")
	}
	return out, nil
}

func (r *PGRepository) GetICD(ctx context.Context, code string) (*ICDCode, error) {
	c, err := scanICD(r.conn(ctx).QueryRow(ctx, `SELECT `+icdColumns+` FROM icd_codes WHERE code = $1`, code))
	if err != nil {
		return nil, notFoundOr(err, KindICD, code, "icd get")
	}
	return c, nil
}

func (r *PGRepository) ListICD(ctx context.Context, limit, offset int) ([]*ICDCode, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM icd_codes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("icd count: %w", err)
	}
	out, err := r.queryICD(ctx, "icd list", `ORDER BY seq LIMIT $1 OFFSET $2`, nullableLimit(limit), offset)
	return out, total, err
}

func (r *PGRepository) ICDRoots(ctx context.Context) ([]*ICDCode, error) {
	return r.queryICD(ctx, "icd roots", `WHERE parent_code IS NULL OR parent_code = '' ORDER BY seq`)
}

func (r *PGRepository) ICDByChapter(ctx context.Context, chapter string) ([]*ICDCode, error) {
	return r.queryICD(ctx, "icd chapter", `WHERE chapter = $1 ORDER BY seq`, chapter)
}

func (r *PGRepository) ICDChildren(ctx context.Context, parentCode string) ([]*ICDCode, error) {
	return r.queryICD(ctx, "icd children", `WHERE parent_code = $1 ORDER BY seq`, parentCode)
}

func (r *PGRepository) SearchICD(ctx context.Context, query string, limit int) ([]*ICDCode, error) {
	return r.queryICD(ctx, "icd search",
		`WHERE code ILIKE $1 ESCAPE '\' OR title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
		 ORDER BY seq LIMIT $2`,
		likePattern(query), nullableLimit(limit))
}

// =========== NAMASTE ===========

const namasteColumns = `id, code, title, description, system, category, icd_mapping, tm2_mapping, metadata, created_at`

var namasteUpdateColumns = []string{"title", "description", "system", "category", "icd_mapping", "tm2_mapping", "metadata", "created_at"}

func scanNamaste(row scanner) (*NamasteCode, error) {
	var c NamasteCode
	if err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.System, &c.Category,
		&c.ICDMapping, &c.TM2Mapping, &c.Metadata, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepository) queryNamaste(ctx context.Context, op, where string, args ...interface{}) ([]*NamasteCode, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+namasteColumns+` FROM namaste_codes `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []*NamasteCode
	for rows.Next() {
		c, err := scanNamaste(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertNamaste(ctx context.Context, q queryable, c *NamasteCode, onConflict string) error {
	return q.QueryRow(ctx,
		`INSERT INTO namaste_codes (`+namasteColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`+onConflict+` RETURNING id, created_at`,
		c.ID, c.Code, c.Title, c.Description, c.System, c.Category,
		c.ICDMapping, c.TM2Mapping, c.Metadata, c.CreatedAt).
		Scan(&c.ID, &c.CreatedAt)
}

func (r *PGRepository) PutNamaste(ctx context.Context, c *NamasteCode) (*NamasteCode, error) {
	out := c.clone()
	if err := prepareTerm(KindNamaste, &out.Term); err != nil {
		return nil, err
	}
	if err := insertNamaste(ctx, r.conn(ctx), out, r.conflictClause(namasteUpdateColumns...)); err != nil {
		return nil, duplicateOr(err, KindNamaste, out.Code, "namaste put")
	}
	return out, nil
}

// PutNamasteBatch writes codes and mappings in one transaction. Under the
// reject policy conflicting inserts are skipped so every existing code can
// be reported before the transaction rolls back.
func (r *PGRepository) PutNamasteBatch(ctx context.Context, codes []*NamasteCode, mappings []*CodeMapping) ([]*NamasteCode, []*CodeMapping, error) {
	outCodes := make([]*NamasteCode, 0, len(codes))
	for _, c := range codes {
		out := c.clone()
		if err := prepareTerm(KindNamaste, &out.Term); err != nil {
			return nil, nil, err
		}
		outCodes = append(outCodes, out)
	}
	outMappings := make([]*CodeMapping, 0, len(mappings))
	for _, m := range mappings {
		out, err := newMappingRecord(m)
		if err != nil {
			return nil, nil, err
		}
		outMappings = append(outMappings, out)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("namaste batch begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	onConflict := r.batchConflictClause(namasteUpdateColumns...)
	var dups []string
	for _, c := range outCodes {
		err := insertNamaste(ctx, tx, c, onConflict)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			dups = append(dups, c.Code)
		case err != nil:
			return nil, nil, duplicateOr(err, KindNamaste, c.Code, "namaste batch put")
		}
	}
	if len(dups) > 0 {
		return nil, nil, &BatchDuplicateError{Kind: KindNamaste, Codes: dups}
	}
	for _, m := range outMappings {
		if err := insertMapping(ctx, tx, m); err != nil {
			return nil, nil, fmt.Errorf("namaste batch mapping %s -> %s: %w", m.SourceCode, m.TargetCode, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("namaste batch commit: %w", err)
	}
	return outCodes, outMappings, nil
}

func (r *PGRepository) GetNamaste(ctx context.Context, code string) (*NamasteCode, error) {
	c, err := scanNamaste(r.conn(ctx).QueryRow(ctx, `SELECT `+namasteColumns+` FROM namaste_codes WHERE code = $1`, code))
	if err != nil {
		return nil, notFoundOr(err, KindNamaste, code, "namaste get")
	}
	return c, nil
}

func (r *PGRepository) ListNamaste(ctx context.Context, limit, offset int) ([]*NamasteCode, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM namaste_codes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("namaste count: %w", err)
	}
	out, err := r.queryNamaste(ctx, "namaste list", `ORDER BY seq LIMIT $1 OFFSET $2`, nullableLimit(limit), offset)
	return out, total, err
}

func (r *PGRepository) NamasteBySystem(ctx context.Context, system string) ([]*NamasteCode, error) {
	return r.queryNamaste(ctx, "namaste by system", `WHERE system = $1 ORDER BY seq`, system)
}

func (r *PGRepository) SearchNamaste(ctx context.Context, query string, limit int) ([]*NamasteCode, error) {
	return r.queryNamaste(ctx, "namaste search",
		`WHERE code ILIKE $1 ESCAPE '\' OR title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
		    OR category ILIKE $1 ESCAPE '\' ORDER BY seq LIMIT $2`,
		likePattern(query), nullableLimit(limit))
}

// =========== TM2 ===========

const tm2Columns = `id, code, title, description, pattern, icd_mapping, namaste_mapping, metadata, created_at`

var tm2UpdateColumns = []string{"title", "description", "pattern", "icd_mapping", "namaste_mapping", "metadata", "created_at"}

func scanTM2(row scanner) (*TM2Code, error) {
	var c TM2Code
	if err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.Pattern,
		&c.ICDMapping, &c.NamasteMapping, &c.Metadata, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PGRepository) queryTM2(ctx context.Context, op, where string, args ...interface{}) ([]*TM2Code, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+tm2Columns+` FROM tm2_codes `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var out []*TM2Code
	for rows.Next() {
		c, err := scanTM2(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) PutTM2(ctx context.Context, c *TM2Code) (*TM2Code, error) {
	out := c.clone()
	if err := prepareTerm(KindTM2, &out.Term); err != nil {
		return nil, err
	}
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO tm2_codes (`+tm2Columns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`+
			r.conflictClause(tm2UpdateColumns...)+
			` RETURNING id, created_at`,
		out.ID, out.Code, out.Title, out.Description, out.Pattern,
		out.ICDMapping, out.NamasteMapping, out.Metadata, out.CreatedAt).
		Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, duplicateOr(err, KindTM2, out.Code, "tm2 put")
	}
	return out, nil
}

func (r *PGRepository) GetTM2(ctx context.Context, code string) (*TM2Code, error) {
	c, err := scanTM2(r.conn(ctx).QueryRow(ctx, `SELECT `+tm2Columns+` FROM tm2_codes WHERE code = $1`, code))
	if err != nil {
		return nil, notFoundOr(err, KindTM2, code, "tm2 get")
	}
	return c, nil
}

func (r *PGRepository) ListTM2(ctx context.Context, limit, offset int) ([]*TM2Code, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM tm2_codes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("tm2 count: %w", err)
	}
	out, err := r.queryTM2(ctx, "tm2 list", `ORDER BY seq LIMIT $1 OFFSET $2`, nullableLimit(limit), offset)
	return out, total, err
}

func (r *PGRepository) SearchTM2(ctx context.Context, query string, limit int) ([]*TM2Code, error) {
	return r.queryTM2(ctx, "tm2 search",
		`WHERE code ILIKE $1 ESCAPE '\' OR title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
		    OR pattern ILIKE $1 ESCAPE '\' ORDER BY seq LIMIT $2`,
		likePattern(query), nullableLimit(limit))
}

// =========== Mappings ===========

func insertMapping(ctx context.Context, q queryable, m *CodeMapping) error {
	_, err := q.Exec(ctx,
		`INSERT INTO code_mappings (id, source_system, source_code, target_system, target_code,
		                            mapping_type, confidence, is_active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.SourceSystem, m.SourceCode, m.TargetSystem, m.TargetCode,
		m.MappingType, m.Confidence, m.IsActive, m.CreatedAt)
	return err
}

func (r *PGRepository) PutMapping(ctx context.Context, m *CodeMapping) (*CodeMapping, error) {
	out, err := newMappingRecord(m)
	if err != nil {
		return nil, err
	}
	if err := insertMapping(ctx, r.conn(ctx), out); err != nil {
		return nil, fmt.Errorf("mapping put: %w", err)
	}
	return out, nil
}

func (r *PGRepository) QueryMappings(ctx context.Context, q MappingQuery) ([]*CodeMapping, error) {
	where, args := mappingWhere(q)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, source_system, source_code, target_system, target_code,
		        mapping_type, confidence, is_active, created_at
		 FROM code_mappings`+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("mapping query: %w", err)
	}
	defer rows.Close()
	var out []*CodeMapping
	for rows.Next() {
		var m CodeMapping
		if err := rows.Scan(&m.ID, &m.SourceSystem, &m.SourceCode, &m.TargetSystem, &m.TargetCode,
			&m.MappingType, &m.Confidence, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("mapping scan: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func mappingWhere(q MappingQuery) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("source_system", q.SourceSystem)
	add("source_code", q.SourceCode)
	add("target_system", q.TargetSystem)
	add("target_code", q.TargetCode)
	if !q.IncludeInactive {
		conds = append(conds, "is_active")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
