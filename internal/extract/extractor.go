// Package extract converts matched tabular rows and text lines into line items,
// routing control lines into a per-document Context.
package extract

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Veraticus/the-receipts-must-flow/internal/colmap"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

// Path records which extraction strategy produced a result.
type Path string

// Extraction paths.
const (
	PathBulk        Path = "bulk"
	PathRowFallback Path = "row_fallback"
	PathRowOnly     Path = "row_only"
	PathText        Path = "text"
)

var (
	// ErrLayoutShape is returned when a layout cannot read the document's shape.
	ErrLayoutShape = errors.New("layout does not fit document shape")

	errRaggedFrame = errors.New("rows do not match header width")
)

// RawRows is an acquired table.
type RawRows struct {
	Header []string
	Rows   [][]string
}

// Result is the outcome of one extraction call.
type Result struct {
	Path           Path
	FallbackReason string
	Items          []model.LineItem
}

// Extractor turns tables into line items.
type Extractor struct {
	cache *colmap.Cache
	// bulkHook runs at the start of every bulk pass; tests use it to inject failures.
	bulkHook func()
	bulk     bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBulk enables or disables the column-wise path.
func WithBulk(enabled bool) Option {
	return func(e *Extractor) {
		e.bulk = enabled
	}
}

// New creates an extractor backed by cache.
func New(cache *colmap.Cache, opts ...Option) *Extractor {
	if cache == nil {
		cache = colmap.New()
	}
	e := &Extractor{cache: cache, bulk: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract converts rows using layout l. Control values are written to ctx.
func (e *Extractor) Extract(vendor string, rows RawRows, l *model.Layout, ctx *Context) (*Result, error) {
	if l == nil || !l.IsTabular() {
		return nil, ErrLayoutShape
	}
	if ctx == nil {
		return nil, errors.New("extract: nil context")
	}

	entry, err := e.cache.Get(vendor, l, rows.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve column mapping: %w", err)
	}
	adapter := Adapt(rows.Header, entry.FieldMap, l.Normalization)
	plan := rowPlan{
		adapter:    adapter,
		skip:       entry.SkipMatcher,
		parsedBy:   l.Provenance(),
		hintSource: l.HintSource,
		hasSize:    adapter.Has(model.FieldSize) || adapter.Has(model.FieldUOM),
	}

	if !e.bulk {
		return &Result{Path: PathRowOnly, Items: plan.rowWise(rows.Rows, ctx)}, nil
	}

	items, controls, err := e.runBulk(plan, rows)
	switch {
	case err != nil:
		common.LogDebug("Bulk extraction failed, falling back to row path", common.Fields{
			"layout": l.Name,
			"vendor": vendor,
			"error":  err.Error(),
		})
		return &Result{
			Path:           PathRowFallback,
			FallbackReason: err.Error(),
			Items:          plan.rowWise(rows.Rows, ctx),
		}, nil
	case len(items) == 0 && len(rows.Rows) > 0:
		common.LogDebug("Bulk extraction produced no items, falling back to row path", common.Fields{
			"layout": l.Name,
			"vendor": vendor,
			"rows":   len(rows.Rows),
		})
		return &Result{
			Path:           PathRowFallback,
			FallbackReason: "bulk path produced no items",
			Items:          plan.rowWise(rows.Rows, ctx),
		}, nil
	}

	for _, c := range controls {
		ctx.record(c.kind, c.text, c.value, c.ok)
	}
	return &Result{Path: PathBulk, Items: items}, nil
}

type rowPlan struct {
	skip       *regexp.Regexp
	adapter    Adapter
	parsedBy   string
	hintSource string
	hasSize    bool
}

type control struct {
	text  string
	value decimal.Decimal
	kind  controlKind
	ok    bool
}

// route decides what a canonical row is. Control lines are separated before
// skip filtering so a skip pattern like ^TOTAL cannot hide the grand total.
func (p rowPlan) route(r CanonicalRow) (model.LineItem, *control, bool) {
	text := r.primaryText()
	if kind := classifyControl(text); kind != controlNone {
		v, ok := r.controlValue()
		return model.LineItem{}, &control{kind: kind, text: text, value: v, ok: ok}, false
	}
	if r.Name == "" {
		return model.LineItem{}, nil, false
	}
	if p.skip != nil && p.skip.MatchString(text) {
		return model.LineItem{}, nil, false
	}
	return r.item(p.parsedBy, p.hintSource, p.hasSize), nil, true
}

func (p rowPlan) rowWise(rows [][]string, ctx *Context) []model.LineItem {
	items := make([]model.LineItem, 0, len(rows))
	for _, cells := range rows {
		li, c, ok := p.route(p.adapter.Row(cells))
		if c != nil {
			ctx.record(c.kind, c.text, c.value, c.ok)
		}
		if ok {
			items = append(items, li)
		}
	}
	return items
}

// runBulk converts the table column by column. Control values are returned
// rather than recorded so a failed pass leaves the context untouched.
func (e *Extractor) runBulk(p rowPlan, rows RawRows) (items []model.LineItem, controls []control, err error) {
	defer func() {
		if r := recover(); r != nil {
			items, controls = nil, nil
			err = fmt.Errorf("bulk extraction panicked: %v", r)
		}
	}()
	if e.bulkHook != nil {
		e.bulkHook()
	}

	width := len(rows.Header)
	for i, row := range rows.Rows {
		if len(row) != width {
			return nil, nil, fmt.Errorf("%w: row %d has %d cells, header has %d", errRaggedFrame, i, len(row), width)
		}
	}

	n := len(rows.Rows)
	text := make(map[model.CanonicalField][]string, len(p.adapter.index))
	for field, col := range p.adapter.index {
		values := make([]string, n)
		for r := range rows.Rows {
			values[r] = normalizeText(rows.Rows[r][col], p.adapter.norm)
		}
		text[field] = values
	}
	column := func(f model.CanonicalField, r int) string {
		if values, ok := text[f]; ok {
			return values[r]
		}
		return ""
	}
	numeric := func(f model.CanonicalField) []decimal.NullDecimal {
		out := make([]decimal.NullDecimal, n)
		if values, ok := text[f]; ok {
			for r, v := range values {
				out[r] = parseNull(v)
			}
		}
		return out
	}
	qty := numeric(model.FieldQuantity)
	unit := numeric(model.FieldUnitPrice)
	total := numeric(model.FieldTotalPrice)

	canonical := make([]CanonicalRow, n)
	for r, cells := range rows.Rows {
		canonical[r] = CanonicalRow{
			Name:         column(model.FieldProductName, r),
			ItemNumber:   column(model.FieldItemNumber, r),
			UPC:          column(model.FieldUPC, r),
			Size:         column(model.FieldSize, r),
			UOM:          column(model.FieldUOM, r),
			CategoryCode: column(model.FieldCategoryCode, r),
			Department:   column(model.FieldDepartment, r),
			Aisle:        column(model.FieldAisle, r),
			CategoryPath: column(model.FieldCategoryPath, r),
			Quantity:     qty[r],
			UnitPrice:    unit[r],
			TotalPrice:   total[r],
			Line:         joinLine(cells, p.adapter.norm),
			Cells:        cells,
		}
	}

	items = make([]model.LineItem, 0, n)
	for _, r := range canonical {
		li, c, ok := p.route(r)
		if c != nil {
			controls = append(controls, *c)
		}
		if ok {
			items = append(items, li)
		}
	}
	return items, controls, nil
}
