package csvimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medisutra/bridge/internal/domain/terminology"
	"github.com/medisutra/bridge/internal/platform/metrics"
)

// Store is the part of the terminology repository an import writes to.
type Store interface {
	GetNamaste(ctx context.Context, code string) (*terminology.NamasteCode, error)
	PutNamasteBatch(ctx context.Context, codes []*terminology.NamasteCode, mappings []*terminology.CodeMapping) ([]*terminology.NamasteCode, []*terminology.CodeMapping, error)
}

// Importer validates row batches and persists them when every row is valid.
type Importer struct {
	store   Store
	policy  terminology.DuplicatePolicy
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func NewImporter(store Store, policy terminology.DuplicatePolicy) *Importer {
	return &Importer{store: store, policy: policy, logger: zerolog.Nop()}
}

func (im *Importer) SetLogger(l zerolog.Logger)      { im.logger = l }
func (im *Importer) SetMetrics(m *metrics.Collector) { im.metrics = m }

// ImportCSV parses content and runs Import over its rows.
func (im *Importer) ImportCSV(ctx context.Context, content []byte, validateOnly bool) (*ImportResult, error) {
	records, err := readRecords(content)
	if err != nil {
		return nil, err
	}
	return im.importRecords(ctx, records, validateOnly)
}

// ImportXLSX parses the first sheet of a workbook and runs Import over it.
func (im *Importer) ImportXLSX(ctx context.Context, content []byte, validateOnly bool) (*ImportResult, error) {
	records, err := readSheet(content)
	if err != nil {
		return nil, err
	}
	return im.importRecords(ctx, records, validateOnly)
}

func (im *Importer) importRecords(ctx context.Context, records [][]string, validateOnly bool) (*ImportResult, error) {
	rows, lines, err := rowsFromRecords(records)
	if err != nil {
		return nil, err
	}
	res, err := im.run(ctx, rows, lines, validateOnly)
	if err != nil {
		return res, err
	}
	res.Warnings = checkHeader(records[0]).Warnings
	return res, nil
}

// Import validates rows and, unless validateOnly is set, writes the codes
// and mappings once the whole batch is valid. Under the reject policy a
// code that already exists fails its row and nothing is written.
func (im *Importer) Import(ctx context.Context, rows []Row, validateOnly bool) (*ImportResult, error) {
	return im.run(ctx, rows, nil, validateOnly)
}

func (im *Importer) run(ctx context.Context, rows []Row, lines rowNumbers, validateOnly bool) (*ImportResult, error) {
	res := importRows(rows, lines)

	if res.Success && !validateOnly && im.policy == terminology.DuplicateReject {
		if err := im.rejectExisting(ctx, res, rows, lines); err != nil {
			return res, err
		}
	}

	if res.Success && !validateOnly {
		persisted, err := im.persist(ctx, res, rows, lines)
		if err != nil {
			im.logger.Error().Err(err).Int("total", res.TotalRows).Msg("import aborted")
			return res, err
		}
		res.Persisted = persisted
	}

	im.metrics.RowsImported(res.SuccessfulImports, res.FailedImports)
	im.logger.Info().
		Int("total", res.TotalRows).
		Int("ok", res.SuccessfulImports).
		Int("failed", res.FailedImports).
		Bool("validate_only", validateOnly).
		Bool("persisted", res.Persisted).
		Msg("namaste import")
	return res, nil
}

// rejectExisting turns rows whose code is already stored into row errors.
// It runs only on a fully valid batch, so Codes[i] belongs to rows[i].
func (im *Importer) rejectExisting(ctx context.Context, res *ImportResult, rows []Row, lines rowNumbers) error {
	existing := make(map[string]bool)
	for _, c := range res.Codes {
		_, err := im.store.GetNamaste(ctx, c.Code)
		switch {
		case err == nil:
			existing[c.Code] = true
		case errors.Is(err, terminology.ErrNotFound):
		default:
			return fmt.Errorf("check existing code %s: %w", c.Code, err)
		}
	}
	rejectCodes(res, rows, lines, existing)
	return nil
}

// rejectCodes fails every row whose code is in codes and drops its code and
// mappings from the result.
func rejectCodes(res *ImportResult, rows []Row, lines rowNumbers, codes map[string]bool) {
	if len(codes) == 0 {
		return
	}
	kept := []*terminology.NamasteCode{}
	for i, c := range res.Codes {
		if !codes[c.Code] {
			kept = append(kept, c)
			continue
		}
		dup := &terminology.DuplicateCodeError{Kind: terminology.KindNamaste, Code: c.Code}
		res.Errors = append(res.Errors, RowError{Row: lines.of(i), Error: dup.Error(), Data: rows[i]})
		res.FailedImports++
		res.SuccessfulImports--
	}
	mappings := []*terminology.CodeMapping{}
	for _, m := range res.Mappings {
		if !codes[m.SourceCode] {
			mappings = append(mappings, m)
		}
	}
	res.Codes = kept
	res.Mappings = mappings
	res.Success = false
}

// persist writes the batch in one repository call. A code that turned up
// between the existence check and the write fails its row like any other
// duplicate and nothing is stored.
func (im *Importer) persist(ctx context.Context, res *ImportResult, rows []Row, lines rowNumbers) (bool, error) {
	codes, mappings, err := im.store.PutNamasteBatch(ctx, res.Codes, res.Mappings)
	var dup *terminology.BatchDuplicateError
	switch {
	case errors.As(err, &dup):
		set := make(map[string]bool, len(dup.Codes))
		for _, code := range dup.Codes {
			set[code] = true
		}
		rejectCodes(res, rows, lines, set)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("store batch of %d codes: %w", len(res.Codes), err)
	}
	res.Codes = codes
	res.Mappings = mappings
	return true, nil
}
