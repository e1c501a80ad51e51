package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const costcoCSV = `Item #,Description,Qty,Unit Price,Total
1001,ORGANIC LIMES 3LB,2,4.50,9.00
2002,KS WATER 40PK,1,4.99,4.99
,TAX,,,0.55
,TOTAL,,,14.54
`

func testConfig(t *testing.T, replace map[string]string) *config.Config {
	t.Helper()
	return &config.Config{
		Rules:      config.RulesConfig{Dir: testutil.WriteRules(t, replace)},
		Cache:      config.CacheConfig{Enabled: true, MaxEntries: 64},
		Extraction: config.ExtractionConfig{Bulk: true},
		Engine:     config.EngineConfig{Workers: 2},
		Storage:    config.StorageConfig{DBPath: filepath.Join(t.TempDir(), "receipts.db")},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunProcess(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, nil)
	receipt := writeFile(t, "costco_0614.csv", costcoCSV)
	unsupported := writeFile(t, "notes.pdf", "%PDF")

	var out bytes.Buffer
	err := runProcess(ctx, &out, cfg, processOptions{Stats: true}, []string{receipt, unsupported})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "notes.pdf")
	assert.Contains(t, text, "unsupported source format")
	assert.Contains(t, text, "costco_0614.csv")
	assert.Contains(t, text, "Costco Warehouse Export")
	assert.Contains(t, text, "Documents processed: 1")
	assert.Contains(t, text, "Column-map cache")

	t.Run("saved for reporting", func(t *testing.T) {
		db, openErr := storage.NewSQLiteStorage(cfg.Storage.DBPath)
		require.NoError(t, openErr)
		defer func() { _ = db.Close() }()

		var report bytes.Buffer
		require.NoError(t, runReport(ctx, &report, db))
		assert.Contains(t, report.String(), "A10 Food Cost")
		assert.Contains(t, report.String(), "C10")
	})

	t.Run("reprocessing is reported as duplicate", func(t *testing.T) {
		var again bytes.Buffer
		require.NoError(t, runProcess(ctx, &again, cfg, processOptions{}, []string{receipt}))
		assert.Contains(t, again.String(), "already recorded")
	})
}

func TestRunProcess_DryRunExports(t *testing.T) {
	cfg := testConfig(t, nil)
	receipt := writeFile(t, "costco_0614.csv", costcoCSV)
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "items.csv")
	metricsPath := filepath.Join(dir, "receipts.prom")

	var out bytes.Buffer
	err := runProcess(context.Background(), &out, cfg, processOptions{
		DryRun:      true,
		Verbose:     true,
		ExportPath:  exportPath,
		MetricsPath: metricsPath,
	}, []string{receipt})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "ORGANIC LIMES")
	assert.Contains(t, out.String(), "Exported items to")
	assert.NoFileExists(t, cfg.Storage.DBPath)

	exported, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(exported)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "receipt_id,"))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "receipts_documents_total")
	assert.Contains(t, string(metrics), "receipts_colmap_hits_total")
}

func TestRunProcess_Errors(t *testing.T) {
	t.Run("no readable documents", func(t *testing.T) {
		cfg := testConfig(t, nil)
		var out bytes.Buffer
		err := runProcess(context.Background(), &out, cfg, processOptions{DryRun: true},
			[]string{filepath.Join(t.TempDir(), "missing.csv")})

		var userErr *common.UserError
		require.ErrorAs(t, err, &userErr)
		assert.Equal(t, "no readable documents", userErr.UserMessage)
	})

	t.Run("invalid rules", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"shared.yaml": "shared: [unclosed\n"})
		receipt := writeFile(t, "costco_0614.csv", costcoCSV)

		var out bytes.Buffer
		err := runProcess(context.Background(), &out, cfg, processOptions{DryRun: true}, []string{receipt})
		require.Error(t, err)
		assert.True(t, common.IsConfigError(err))
	})
}

func TestRunRules(t *testing.T) {
	t.Run("validate", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runRulesValidate(&out, testConfig(t, nil)))
		assert.Contains(t, out.String(), "are valid")
	})

	t.Run("validate reports broken layouts", func(t *testing.T) {
		cfg := testConfig(t, map[string]string{"20_costco_layout.yaml": "layouts: {\n"})
		var out bytes.Buffer
		err := runRulesValidate(&out, cfg)
		var userErr *common.UserError
		require.True(t, errors.As(err, &userErr))
		assert.Empty(t, out.String())
	})

	t.Run("layouts for every vendor", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runRulesLayouts(&out, testConfig(t, nil), ""))
		text := out.String()
		assert.Contains(t, text, "COSTCO layouts")
		assert.Contains(t, text, "INSTACART layouts")
		assert.Less(t, strings.Index(text, "COSTCO layouts"), strings.Index(text, "INSTACART layouts"))
	})

	t.Run("layouts for one vendor", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runRulesLayouts(&out, testConfig(t, nil), "ACME"))
		assert.Contains(t, out.String(), "No layouts configured for ACME")
	})
}

func TestRunReview(t *testing.T) {
	db := testutil.SetupTestDB(t)
	var out bytes.Buffer
	require.NoError(t, runReview(context.Background(), &out, db, 10))
	assert.Contains(t, out.String(), "Nothing needs review")

	out.Reset()
	require.NoError(t, runReport(context.Background(), &out, db))
	assert.Contains(t, out.String(), "No receipts recorded yet")
}
