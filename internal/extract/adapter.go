package extract

import (
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/colmap"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

// CanonicalRow is a raw row after column mapping and value cleanup. Business
// logic only sees this type, never header text.
type CanonicalRow struct {
	Name         string
	ItemNumber   string
	UPC          string
	Size         string
	UOM          string
	CategoryCode string
	Department   string
	Aisle        string
	CategoryPath string
	Line         string
	Cells        []string
	Quantity     decimal.NullDecimal
	UnitPrice    decimal.NullDecimal
	TotalPrice   decimal.NullDecimal
}

// Adapter converts raw cells into canonical rows for one header.
type Adapter struct {
	index map[model.CanonicalField]int
	norm  model.Normalization
}

// Adapt resolves fm against header.
func Adapt(header []string, fm colmap.FieldMap, norm model.Normalization) Adapter {
	return Adapter{index: fm.Index(header), norm: norm}
}

// Has reports whether the header supplies field.
func (a Adapter) Has(field model.CanonicalField) bool {
	_, ok := a.index[field]
	return ok
}

// Row builds the canonical form of one raw row. Missing cells read as empty.
func (a Adapter) Row(cells []string) CanonicalRow {
	text := func(f model.CanonicalField) string {
		i, ok := a.index[f]
		if !ok || i >= len(cells) {
			return ""
		}
		return normalizeText(cells[i], a.norm)
	}
	return CanonicalRow{
		Name:         text(model.FieldProductName),
		ItemNumber:   text(model.FieldItemNumber),
		UPC:          text(model.FieldUPC),
		Size:         text(model.FieldSize),
		UOM:          text(model.FieldUOM),
		CategoryCode: text(model.FieldCategoryCode),
		Department:   text(model.FieldDepartment),
		Aisle:        text(model.FieldAisle),
		CategoryPath: text(model.FieldCategoryPath),
		Quantity:     parseNull(text(model.FieldQuantity)),
		UnitPrice:    parseNull(text(model.FieldUnitPrice)),
		TotalPrice:   parseNull(text(model.FieldTotalPrice)),
		Line:         joinLine(cells, a.norm),
		Cells:        cells,
	}
}

func joinLine(cells []string, norm model.Normalization) string {
	parts := make([]string, 0, len(cells))
	for _, c := range cells {
		if t := normalizeText(c, norm); strings.TrimSpace(t) != "" {
			parts = append(parts, strings.TrimSpace(t))
		}
	}
	return strings.Join(parts, " ")
}

// primaryText is what control and skip patterns are matched against.
func (r CanonicalRow) primaryText() string {
	if r.Name != "" {
		return r.Name
	}
	return firstNonEmpty(r.Cells)
}

// controlValue is the total column, else the last amount on the row.
func (r CanonicalRow) controlValue() (decimal.Decimal, bool) {
	if r.TotalPrice.Valid {
		return r.TotalPrice.Decimal, true
	}
	return lastAmount(r.Cells)
}

// item assembles a line item; the caller has already ruled out control and skip rows.
func (r CanonicalRow) item(parsedBy, hintSource string, hasSize bool) model.LineItem {
	qty, unit, total := derive(r.Quantity, r.UnitPrice, r.TotalPrice)
	li := model.LineItem{
		Name:          r.Name,
		ItemNumber:    r.ItemNumber,
		UPC:           r.UPC,
		ParsedBy:      parsedBy,
		SizeColumn:    r.Size,
		UnitColumn:    r.UOM,
		HasSizeColumn: hasSize,
		Quantity:      qty.InexactFloat64(),
		UnitPrice:     unit.InexactFloat64(),
		TotalPrice:    total.InexactFloat64(),
	}
	if r.Line != "" {
		li.SourceLines = []string{r.Line}
	}
	li.Hint = model.CategoryHint{
		Source:       hintSource,
		Code:         r.CategoryCode,
		Department:   r.Department,
		Aisle:        r.Aisle,
		CategoryPath: r.CategoryPath,
	}
	return li
}
