// Package source acquires vendor documents from files and detects their vendor.
package source

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/engine"
	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

const utf8BOM = "\ufeff"

// ReadFile reads a CSV, TSV, XLSX or plain-text document. Vendor fields are
// left empty for the caller or a Detector to fill.
func ReadFile(path string) (*engine.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	doc := &engine.Document{
		SourceFile: filepath.Base(path),
		FileExt:    ext,
	}

	var err error
	switch ext {
	case ".csv":
		doc.Header, doc.Rows, err = readDelimited(path, ',')
	case ".tsv":
		doc.Header, doc.Rows, err = readDelimited(path, '\t')
	case ".xlsx", ".xlsm":
		doc.Header, doc.Rows, err = readWorkbook(path)
	case ".txt", ".text", "":
		doc.Lines, err = readLines(path)
	default:
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedSource, ext)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func readDelimited(path string, comma rune) ([]string, [][]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return ReadDelimited(f, comma)
}

// ReadDelimited reads a delimited table. The first non-blank record is the
// header; blank records are dropped and rows may be ragged.
func ReadDelimited(r io.Reader, comma rune) ([]string, [][]string, error) {
	reader := gocsv.LazyCSVReader(r)
	if cr, ok := reader.(*csv.Reader); ok {
		cr.Comma = comma
		cr.FieldsPerRecord = -1
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read delimited file: %w", err)
	}
	return splitTable(records)
}

func readWorkbook(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get rows from %s: %w", sheet, err)
		}
		if header, body, err := splitTable(rows); err == nil {
			return header, body, nil
		}
	}
	return nil, nil, common.ErrNoRows
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(lines) > 0 {
		lines[0] = strings.TrimPrefix(lines[0], utf8BOM)
	}
	return lines, nil
}

func splitTable(records [][]string) ([]string, [][]string, error) {
	var header []string
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		if header == nil {
			header = trimCells(rec)
			header[0] = strings.TrimPrefix(header[0], utf8BOM)
			continue
		}
		rows = append(rows, rec)
	}
	if header == nil {
		return nil, nil, common.ErrNoRows
	}
	return header, rows, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimCells(rec []string) []string {
	out := make([]string, len(rec))
	for i, c := range rec {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
