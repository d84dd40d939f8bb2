package csvimport

import (
	"context"
	"errors"
	"testing"

	"github.com/medisutra/bridge/internal/domain/terminology"
	"github.com/medisutra/bridge/internal/platform/fhir"
)

type failingStore struct {
	*terminology.MemoryRepository
}

func (failingStore) PutNamasteBatch(context.Context, []*terminology.NamasteCode, []*terminology.CodeMapping) ([]*terminology.NamasteCode, []*terminology.CodeMapping, error) {
	return nil, nil, errors.New("connection reset")
}

// staleStore never reports an existing code, as if another writer stored
// it after the existence check.
type staleStore struct {
	*terminology.MemoryRepository
}

func (staleStore) GetNamaste(_ context.Context, code string) (*terminology.NamasteCode, error) {
	return nil, terminology.ErrNotFound
}

func mappingCount(t *testing.T, repo *terminology.MemoryRepository, code string) int {
	t.Helper()
	got, err := repo.QueryMappings(context.Background(), terminology.MappingQuery{SourceSystem: fhir.SystemNamaste, SourceCode: code})
	if err != nil {
		t.Fatal(err)
	}
	return len(got)
}

func TestImporter_PersistsValidBatch(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	im := NewImporter(repo, terminology.DuplicateReject)
	ctx := context.Background()

	res, err := im.ImportCSV(ctx, GenerateTemplate(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || !res.Persisted {
		t.Fatalf("expected persisted import, got %+v", res)
	}
	if res.Codes[0].ID == "" {
		t.Error("expected stored records with ids in the result")
	}
	got, err := repo.GetNamaste(ctx, "AYU-DIG-001")
	if err != nil || got.Title != "Grahani Roga" {
		t.Errorf("expected stored code, got %+v, %v", got, err)
	}
	if n := mappingCount(t, repo, "AYU-DIG-001"); n != 2 {
		t.Errorf("expected 2 stored mappings, got %d", n)
	}
}

func TestImporter_NothingStoredOnRowFailure(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	im := NewImporter(repo, terminology.DuplicateReject)
	ctx := context.Background()

	rows := []Row{validRow(), {Code: "X", Title: "Broken", System: "NOPE", Category: "c"}}
	res, err := im.Import(ctx, rows, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Persisted {
		t.Errorf("expected unsuccessful unpersisted import, got %+v", res)
	}
	if _, err := repo.GetNamaste(ctx, "AYU-DIG-001"); !errors.Is(err, terminology.ErrNotFound) {
		t.Errorf("expected nothing stored, got %v", err)
	}
}

func TestImporter_ValidateOnly(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	im := NewImporter(repo, terminology.DuplicateReject)

	res, err := im.Import(context.Background(), []Row{validRow()}, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.Persisted {
		t.Errorf("expected valid unpersisted result, got %+v", res)
	}
	if _, total, _ := repo.ListNamaste(context.Background(), 0, 0); total != 0 {
		t.Errorf("expected empty repository, got %d codes", total)
	}
}

func TestImporter_RejectsExistingCodes(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	ctx := context.Background()
	repo.PutNamaste(ctx, &terminology.NamasteCode{
		Term:   terminology.Term{Code: "SID-DIG-001", Title: "Existing"},
		System: terminology.NamasteSiddha, Category: "Digestive System",
	})
	im := NewImporter(repo, terminology.DuplicateReject)

	res, err := im.ImportCSV(ctx, GenerateTemplate(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Persisted {
		t.Fatalf("expected rejected import, got %+v", res)
	}
	if res.FailedImports != 1 || res.SuccessfulImports != 2 || res.Errors[0].Row != 2 {
		t.Errorf("unexpected counts %+v", res)
	}
	if len(res.Codes) != 2 || len(res.Mappings) != 4 {
		t.Errorf("expected the duplicate's records removed, got %d codes %d mappings", len(res.Codes), len(res.Mappings))
	}
	if _, err := repo.GetNamaste(ctx, "AYU-DIG-001"); !errors.Is(err, terminology.ErrNotFound) {
		t.Error("expected no partial write")
	}
}

func TestImporter_RejectedRowNumberCountsBlankRows(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	ctx := context.Background()
	repo.PutNamaste(ctx, &terminology.NamasteCode{
		Term:   terminology.Term{Code: "SID-1", Title: "Existing"},
		System: terminology.NamasteSiddha, Category: "Cat",
	})
	im := NewImporter(repo, terminology.DuplicateReject)

	content := "code,title,system,category\nAYU-1,One,AYU,Cat\n,,,\nSID-1,Two,SID,Cat\n"
	res, err := im.ImportCSV(ctx, []byte(content), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 3 {
		t.Errorf("expected row 3 rejected, got %+v", res.Errors)
	}
}

func TestImporter_ReplacePolicy(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReplace)
	ctx := context.Background()
	repo.PutNamaste(ctx, &terminology.NamasteCode{
		Term:   terminology.Term{Code: "AYU-DIG-001", Title: "Old"},
		System: terminology.NamasteAyurveda, Category: "Digestive System",
	})
	im := NewImporter(repo, terminology.DuplicateReplace)

	res, err := im.Import(ctx, []Row{validRow()}, false)
	if err != nil || !res.Persisted {
		t.Fatalf("expected persisted import, got %+v, %v", res, err)
	}
	got, _ := repo.GetNamaste(ctx, "AYU-DIG-001")
	if got.Title != "Grahani Roga" {
		t.Errorf("expected replaced title, got %q", got.Title)
	}
}

func TestImporter_StoreFailure(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	im := NewImporter(failingStore{repo}, terminology.DuplicateReject)
	ctx := context.Background()

	res, err := im.Import(ctx, []Row{validRow()}, false)
	if err == nil {
		t.Fatal("expected store error")
	}
	if res == nil || res.Persisted {
		t.Errorf("expected unpersisted result alongside the error, got %+v", res)
	}
	if _, err := repo.GetNamaste(ctx, "AYU-DIG-001"); !errors.Is(err, terminology.ErrNotFound) {
		t.Errorf("expected no stored code, got %v", err)
	}
	if n := mappingCount(t, repo, "AYU-DIG-001"); n != 0 {
		t.Errorf("expected no stored mappings, got %d", n)
	}
}

func TestImporter_DuplicateAtWriteTime(t *testing.T) {
	repo := terminology.NewMemoryRepository(terminology.DuplicateReject)
	ctx := context.Background()
	repo.PutNamaste(ctx, &terminology.NamasteCode{
		Term:   terminology.Term{Code: "SID-DIG-001", Title: "Existing"},
		System: terminology.NamasteSiddha, Category: "Digestive System",
	})
	im := NewImporter(staleStore{repo}, terminology.DuplicateReject)

	res, err := im.ImportCSV(ctx, GenerateTemplate(), false)
	if err != nil {
		t.Fatalf("expected row errors, not a store error: %v", err)
	}
	if res.Success || res.Persisted {
		t.Fatalf("expected rejected import, got %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 2 || res.FailedImports != 1 {
		t.Errorf("expected row 2 rejected, got %+v", res.Errors)
	}
	if _, err := repo.GetNamaste(ctx, "AYU-DIG-001"); !errors.Is(err, terminology.ErrNotFound) {
		t.Error("expected no partial write")
	}
	if n := mappingCount(t, repo, "AYU-DIG-001"); n != 0 {
		t.Errorf("expected no stored mappings, got %d", n)
	}
}

func TestImporter_MalformedCSV(t *testing.T) {
	im := NewImporter(terminology.NewMemoryRepository(terminology.DuplicateReject), terminology.DuplicateReject)
	res, err := im.ImportCSV(context.Background(), []byte(""), false)
	if !errors.Is(err, ErrEmptyFile) || res != nil {
		t.Errorf("expected ErrEmptyFile and no result, got %+v, %v", res, err)
	}
}
