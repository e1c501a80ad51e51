package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testReceipt(id, source string, needsReview bool) *model.Receipt {
	r := &model.Receipt{
		ID:                 id,
		ProcessedAt:        time.Date(2024, 6, 12, 9, 30, 0, 0, time.UTC),
		SourceFile:         source,
		FileExt:            ".xlsx",
		VendorCode:         "COSTCO",
		DetectedSourceType: "warehouse_receipt",
		LayoutName:         "Costco Warehouse Export",
		ParsedBy:           "costco_excel",
		ExtractionPath:     "bulk",
		Items: []model.LineItem{
			{
				Name: "ORGANIC LIMES 3LB", ItemNumber: "1001", Quantity: 2, UnitPrice: 4.5, TotalPrice: 9,
				RawSizeText: "3LB", RawUOMText: "LB", ParsedBy: "costco_excel",
				L1Code: "A10", L1Name: "Food Cost", L2Code: "C10", L2Name: "Produce - Fresh",
				CategorySource: "heuristics", RuleID: "heuristic_fresh_fruit", Confidence: 0.7,
				SourceLines: []string{"1001 ORGANIC LIMES 3LB 2 4.50 9.00"},
			},
			{
				Name: "MYSTERY ITEM", Quantity: 1, UnitPrice: 4.99, TotalPrice: 4.99,
				L1Code: "A99", L1Name: "Uncategorized", L2Code: "C99", L2Name: "Unknown",
				CategorySource: "fallback", RuleID: "fallback", Confidence: 0.2, NeedsCategoryReview: true,
				Hint: model.CategoryHint{Source: "instacart", Department: "Pantry"},
			},
		},
		Subtotal:  13.99,
		Tax:       0.55,
		Total:     14.54,
		ItemCount: 2,
	}
	if needsReview {
		r.AddReviewReason("no modern layout matched")
	}
	return r
}

func TestMigrate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	require.NoError(t, store.Migrate(ctx), "migrating twice is a no-op")

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name IN ('idx_line_items_l2', 'idx_receipts_review')
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 2, indexCount)
}

func TestSaveAndGetReceipt(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	want := testReceipt("r-1", "costco_june.xlsx", true)
	require.NoError(t, store.SaveReceipt(ctx, want))

	got, err := store.GetReceipt(ctx, "r-1")
	require.NoError(t, err)

	assert.Equal(t, want.SourceFile, got.SourceFile)
	assert.Equal(t, want.FileExt, got.FileExt)
	assert.Equal(t, want.VendorCode, got.VendorCode)
	assert.Equal(t, want.DetectedSourceType, got.DetectedSourceType)
	assert.Equal(t, want.LayoutName, got.LayoutName)
	assert.Equal(t, want.ParsedBy, got.ParsedBy)
	assert.Equal(t, want.ExtractionPath, got.ExtractionPath)
	assert.InDelta(t, want.Total, got.Total, 0.001)
	assert.Equal(t, 2, got.ItemCount)
	assert.True(t, got.NeedsReview)
	assert.Equal(t, []string{"no modern layout matched"}, got.ReviewReasons)
	assert.True(t, want.ProcessedAt.Equal(got.ProcessedAt))

	require.Len(t, got.Items, 2)
	assert.Equal(t, want.Items[0].Name, got.Items[0].Name)
	assert.Equal(t, want.Items[0].SourceLines, got.Items[0].SourceLines)
	assert.Equal(t, "C10", got.Items[0].L2Code)
	assert.Equal(t, "Produce - Fresh", got.Items[0].L2Name)
	assert.Equal(t, "3LB", got.Items[0].RawSizeText)
	assert.InDelta(t, 0.7, got.Items[0].Confidence, 0.0001)
	assert.False(t, got.Items[0].NeedsCategoryReview)
	assert.True(t, got.Items[1].NeedsCategoryReview)
	assert.Equal(t, "Pantry", got.Items[1].Hint.Department)
	assert.Empty(t, got.Items[1].SourceLines)
}

func TestGetReceiptNotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetReceipt(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveReceiptDuplicate(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReceipt(ctx, testReceipt("r-1", "costco_june.xlsx", false)))
	err := store.SaveReceipt(ctx, testReceipt("r-2", "costco_june.xlsx", false))
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	_, err = store.GetReceipt(ctx, "r-2")
	assert.ErrorIs(t, err, common.ErrNotFound, "failed save must not leave a partial receipt")
}

func TestSaveReceiptValidation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		mutate func(r *model.Receipt)
		name   string
	}{
		{name: "missing id", mutate: func(r *model.Receipt) { r.ID = "" }},
		{name: "missing source", mutate: func(r *model.Receipt) { r.SourceFile = " " }},
		{name: "missing provenance", mutate: func(r *model.Receipt) { r.ParsedBy = "" }},
		{name: "missing time", mutate: func(r *model.Receipt) { r.ProcessedAt = time.Time{} }},
		{name: "unnamed item", mutate: func(r *model.Receipt) { r.Items[1].Name = "" }},
		{name: "bad confidence", mutate: func(r *model.Receipt) { r.Items[0].Confidence = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testReceipt("r-1", "a.xlsx", false)
			tt.mutate(r)
			assert.ErrorIs(t, store.SaveReceipt(ctx, r), ErrInvalidReceipt)
		})
	}

	assert.ErrorIs(t, store.SaveReceipt(ctx, nil), ErrNilParameter)
}

func TestListReceiptsNeedingReview(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	flagged := testReceipt("r-flagged", "flagged.xlsx", true)
	itemOnly := testReceipt("r-item", "item.xlsx", false)
	itemOnly.ProcessedAt = itemOnly.ProcessedAt.Add(time.Hour)
	clean := testReceipt("r-clean", "clean.xlsx", false)
	clean.Items = clean.Items[:1]

	for _, r := range []*model.Receipt{flagged, itemOnly, clean} {
		require.NoError(t, store.SaveReceipt(ctx, r))
	}

	got, err := store.ListReceiptsNeedingReview(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r-item", got[0].ID)
	assert.Equal(t, "r-flagged", got[1].ID)
	assert.Len(t, got[0].Items, 2)

	limited, err := store.ListReceiptsNeedingReview(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCategoryTotals(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReceipt(ctx, testReceipt("r-1", "a.xlsx", false)))
	require.NoError(t, store.SaveReceipt(ctx, testReceipt("r-2", "b.xlsx", false)))

	totals, err := store.CategoryTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.Equal(t, "A10", totals[0].L1Code)
	assert.Equal(t, "C10", totals[0].L2Code)
	assert.Equal(t, 2, totals[0].Items)
	assert.InDelta(t, 18.0, totals[0].Total, 0.001)

	assert.Equal(t, "C99", totals[1].L2Code)
	assert.InDelta(t, 9.98, totals[1].Total, 0.001)
}

func TestConcurrentSaves(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := testReceipt(string(rune('a'+i)), string(rune('a'+i))+".xlsx", false)
			errs <- store.SaveReceipt(ctx, r)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	totals, err := store.CategoryTotals(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, totals)
	assert.Equal(t, 10, totals[0].Items)
}

func TestClassifyErrors(t *testing.T) {
	assert.NoError(t, classify(nil))
	plain := assert.AnError
	assert.Equal(t, plain, classify(plain))
}
