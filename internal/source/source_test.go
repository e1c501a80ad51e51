package source_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/engine"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/Veraticus/the-receipts-must-flow/internal/source"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadFileCSV(t *testing.T) {
	path := writeFile(t, "Instacart_Order.csv", "\ufeffProduct, Quantity,Price\n"+
		"\"Limes, organic\",2,3.98\n"+
		",,\n"+
		"Whole Milk,1\n")

	doc, err := source.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Instacart_Order.csv", doc.SourceFile)
	assert.Equal(t, ".csv", doc.FileExt)
	assert.Equal(t, []string{"Product", "Quantity", "Price"}, doc.Header)
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, []string{"Limes, organic", "2", "3.98"}, doc.Rows[0])
	assert.Equal(t, []string{"Whole Milk", "1"}, doc.Rows[1])
	assert.Empty(t, doc.Lines)
}

func TestReadFileTSV(t *testing.T) {
	path := writeFile(t, "export.tsv", "Item #\tDescription\tTotal\n1001\tLIMES\t4.50\n")

	doc, err := source.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Item #", "Description", "Total"}, doc.Header)
	assert.Equal(t, [][]string{{"1001", "LIMES", "4.50"}}, doc.Rows)
}

func TestReadFileXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "costco.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Item #", "Description", "Qty", "Total"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"1001", "ORGANIC LIMES", "2", "9.00"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"", "TOTAL", "", "9.00"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	doc, err := source.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", doc.FileExt)
	assert.Equal(t, []string{"Item #", "Description", "Qty", "Total"}, doc.Header)
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, "ORGANIC LIMES", doc.Rows[0][1])
	assert.Equal(t, "TOTAL", doc.Rows[1][1])
}

func TestReadFileText(t *testing.T) {
	path := writeFile(t, "rd_0612.txt", "Restaurant Depot\r\n123456 LIMES 2 4.50 9.00\r\nTOTAL 9.00\r\n")

	doc, err := source.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, doc.Header)
	assert.Equal(t, []string{"Restaurant Depot", "123456 LIMES 2 4.50 9.00", "TOTAL 9.00"}, doc.Lines)
}

func TestReadFileErrors(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		_, err := source.ReadFile(writeFile(t, "scan.pdf", "%PDF"))
		assert.ErrorIs(t, err, common.ErrUnsupportedSource)
	})
	t.Run("empty table", func(t *testing.T) {
		_, err := source.ReadFile(writeFile(t, "empty.csv", "\n,,\n"))
		assert.ErrorIs(t, err, common.ErrNoRows)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := source.ReadFile(filepath.Join(t.TempDir(), "nope.csv"))
		assert.Error(t, err)
	})
}

func TestReadDelimitedQuotes(t *testing.T) {
	header, rows, err := source.ReadDelimited(strings.NewReader(`name,price
"12"" SUB ROLLS",4.00
`), ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, header)
	assert.Equal(t, [][]string{{`12" SUB ROLLS`, "4.00"}}, rows)
}

func TestDetector(t *testing.T) {
	store, err := rules.NewStore(testutil.WriteRules(t, nil))
	require.NoError(t, err)
	cfg, err := store.VendorDetection()
	require.NoError(t, err)
	det, err := source.NewDetector(cfg)
	require.NoError(t, err)

	tests := []struct {
		name     string
		file     string
		text     string
		wantCode string
		wantType string
		wantOK   bool
	}{
		{name: "filename", file: "Costco_June.xlsx", wantCode: "COSTCO", wantType: "warehouse_receipt", wantOK: true},
		{name: "anchored filename", file: "rd_0612.txt", wantCode: "RESTAURANT_DEPOT", wantType: "warehouse_receipt", wantOK: true},
		{name: "text", file: "scan_0001.txt", text: "Thank you for shopping at\nRESTAURANT DEPOT #12", wantCode: "RESTAURANT_DEPOT", wantOK: true, wantType: "warehouse_receipt"},
		{name: "filename wins over text", file: "instacart.csv", text: "COSTCO WHOLESALE", wantCode: "INSTACART", wantType: "marketplace_order", wantOK: true},
		{name: "unknown", file: "acme.txt", text: "ACME SUPPLY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := det.Detect(tt.file, tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantType, got.SourceType)
		})
	}
}

func TestDetectorApplyKeepsUpstream(t *testing.T) {
	det, err := source.NewDetector(rules.VendorDetectionConfig{Vendors: []rules.VendorRule{
		{Code: "COSTCO", SourceType: "warehouse_receipt", FilenamePatterns: []string{"costco"}},
	}})
	require.NoError(t, err)

	doc := &engine.Document{SourceFile: "costco.csv", VendorCode: "SAMS"}
	assert.True(t, det.Apply(doc))
	assert.Equal(t, "SAMS", doc.VendorCode)
	assert.Empty(t, doc.SourceType)

	doc = &engine.Document{SourceFile: "costco.csv", SourceType: "upload"}
	assert.True(t, det.Apply(doc))
	assert.Equal(t, "COSTCO", doc.VendorCode)
	assert.Equal(t, "upload", doc.SourceType)
}

func TestNewDetectorBadPattern(t *testing.T) {
	_, err := source.NewDetector(rules.VendorDetectionConfig{Vendors: []rules.VendorRule{
		{Code: "BAD", TextPatterns: []string{"("}},
	}})
	require.Error(t, err)
	assert.True(t, common.IsConfigError(err))
}
