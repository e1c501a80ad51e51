package extract

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/colmap"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var costcoHeader = []string{"Item #", "Description", "Qty", "Unit Price", "Total"}

func costcoLayout() *model.Layout {
	return &model.Layout{
		Name:     "Costco Warehouse Export",
		ParsedBy: "costco_excel",
		ColumnMappings: map[model.CanonicalField]model.Aliases{
			model.FieldItemNumber:  {"Item #"},
			model.FieldProductName: {"Description"},
			model.FieldQuantity:    {"Qty"},
			model.FieldUnitPrice:   {"Unit Price"},
			model.FieldTotalPrice:  {"Total"},
		},
		SkipPatterns:  []string{"^TOTAL", "member savings"},
		Normalization: model.Normalization{CleanCitations: true},
	}
}

func TestExtract_SingleProductRow(t *testing.T) {
	ctx := NewContext()
	res, err := New(colmap.New()).Extract("COSTCO", RawRows{
		Header: costcoHeader,
		Rows:   [][]string{{"3923", "LIMES 3 LB", "1", "6.49", "6.49"}},
	}, costcoLayout(), ctx)
	require.NoError(t, err)

	assert.Equal(t, PathBulk, res.Path)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "LIMES 3 LB", item.Name)
	assert.Equal(t, "3923", item.ItemNumber)
	assert.InDelta(t, 1.0, item.Quantity, 0.0001)
	assert.InDelta(t, 6.49, item.UnitPrice, 0.0001)
	assert.InDelta(t, 6.49, item.TotalPrice, 0.0001)
	assert.Equal(t, "costco_excel", item.ParsedBy)
	assert.Empty(t, ctx.ControlLines)
	assert.Nil(t, ctx.TaxTotal)
}

func TestExtract_TaxRowIsControlLine(t *testing.T) {
	ctx := NewContext()
	res, err := New(colmap.New()).Extract("COSTCO", RawRows{
		Header: costcoHeader,
		Rows: [][]string{
			{"3923", "LIMES 3 LB", "1", "6.49", "6.49"},
			{"", "TAX", "", "", "0.11"},
		},
	}, costcoLayout(), ctx)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "LIMES 3 LB", res.Items[0].Name)
	require.NotNil(t, ctx.TaxTotal)
	assert.Equal(t, "0.11", ctx.TaxTotal.String())
}

func TestExtract_ControlBeforeSkip(t *testing.T) {
	ctx := NewContext()
	res, err := New(colmap.New()).Extract("COSTCO", RawRows{
		Header: costcoHeader,
		Rows: [][]string{
			{"1", "KS WATER 40PK [cite: 7]", "2", "3.99", ""},
			{"", "Member Savings", "", "", "-1.00"},
			{"", "SUBTOTAL", "", "", "7.98"},
			{"", "TAX", "", "", "0.40"},
			{"", "SALES TAX", "", "", "0.10"},
			{"", "TOTAL", "", "", "$8.48"},
			{"", "ITEMS SOLD", "", "", "2"},
		},
	}, costcoLayout(), ctx)
	require.NoError(t, err)

	require.Len(t, res.Items, 1)
	assert.Equal(t, "KS WATER 40PK", res.Items[0].Name)
	assert.InDelta(t, 7.98, res.Items[0].TotalPrice, 0.0001)

	require.NotNil(t, ctx.Subtotal)
	require.NotNil(t, ctx.TaxTotal)
	require.NotNil(t, ctx.GrandTotal)
	require.NotNil(t, ctx.ItemsSold)
	assert.Equal(t, "7.98", ctx.Subtotal.String())
	assert.Equal(t, "0.5", ctx.TaxTotal.String())
	assert.Equal(t, "8.48", ctx.GrandTotal.String())
	assert.Equal(t, "2", ctx.ItemsSold.String())
	assert.Len(t, ctx.ControlLines, 5)
}

func TestExtract_Paths(t *testing.T) {
	t.Run("bulk disabled", func(t *testing.T) {
		ctx := NewContext()
		res, err := New(colmap.New(), WithBulk(false)).Extract("COSTCO", RawRows{
			Header: costcoHeader,
			Rows:   [][]string{{"1", "FLOUR 50 LB", "1", "18.99", "18.99"}},
		}, costcoLayout(), ctx)
		require.NoError(t, err)
		assert.Equal(t, PathRowOnly, res.Path)
		assert.Len(t, res.Items, 1)
	})

	t.Run("panic recovered", func(t *testing.T) {
		e := New(colmap.New())
		e.bulkHook = func() { panic("column type mismatch") }
		ctx := NewContext()
		res, err := e.Extract("COSTCO", RawRows{
			Header: costcoHeader,
			Rows: [][]string{
				{"1", "FLOUR 50 LB", "1", "18.99", "18.99"},
				{"", "TAX", "", "", "0.11"},
			},
		}, costcoLayout(), ctx)
		require.NoError(t, err)
		assert.Equal(t, PathRowFallback, res.Path)
		assert.Contains(t, res.FallbackReason, "column type mismatch")
		assert.Len(t, res.Items, 1)
		assert.Equal(t, "0.11", ctx.TaxTotal.String())
	})

	t.Run("ragged rows", func(t *testing.T) {
		ctx := NewContext()
		res, err := New(colmap.New()).Extract("COSTCO", RawRows{
			Header: costcoHeader,
			Rows:   [][]string{{"1", "FLOUR 50 LB", "1", "18.99", "18.99"}, {"2", "SUGAR"}},
		}, costcoLayout(), ctx)
		require.NoError(t, err)
		assert.Equal(t, PathRowFallback, res.Path)
		assert.Contains(t, res.FallbackReason, "header width")
		require.Len(t, res.Items, 2)
		assert.Equal(t, "SUGAR", res.Items[1].Name)
		assert.InDelta(t, 0.0, res.Items[1].TotalPrice, 0.0001)
	})

	t.Run("zero items from non-empty input", func(t *testing.T) {
		ctx := NewContext()
		res, err := New(colmap.New()).Extract("COSTCO", RawRows{
			Header: costcoHeader,
			Rows:   [][]string{{"", "TAX", "", "", "0.11"}},
		}, costcoLayout(), ctx)
		require.NoError(t, err)
		assert.Equal(t, PathRowFallback, res.Path)
		assert.Empty(t, res.Items)
		assert.Equal(t, "0.11", ctx.TaxTotal.String(), "control value recorded once")
	})

	t.Run("text layout rejected", func(t *testing.T) {
		_, err := New(nil).Extract("RD", RawRows{}, &model.Layout{Name: "text"}, NewContext())
		assert.ErrorIs(t, err, ErrLayoutShape)
	})
}

func TestExtract_HintsAndSize(t *testing.T) {
	l := &model.Layout{
		Name:       "Instacart Order Export",
		HintSource: "instacart",
		ColumnMappings: map[model.CanonicalField]model.Aliases{
			model.FieldProductName: {"Product"},
			model.FieldQuantity:    {"Quantity"},
			model.FieldTotalPrice:  {"Price"},
			model.FieldSize:        {"Size"},
			model.FieldDepartment:  {"Department"},
		},
	}
	res, err := New(colmap.New()).Extract("INSTACART", RawRows{
		Header: []string{"Product", "Size", "Quantity", "Price", "Department"},
		Rows: [][]string{
			{"Organic Bananas", "2 lb", "2", "3.00", "Produce"},
			{"Sparkling Water", "", "1", "4.50", ""},
		},
	}, l, NewContext())
	require.NoError(t, err)
	require.Len(t, res.Items, 2)

	first := res.Items[0]
	assert.Equal(t, "layout_instacart_order_export", first.ParsedBy)
	assert.Equal(t, model.CategoryHint{Source: "instacart", Department: "Produce"}, first.Hint)
	assert.True(t, first.HasSizeColumn)
	assert.Equal(t, "2 lb", first.SizeColumn)
	assert.InDelta(t, 1.5, first.UnitPrice, 0.0001)
	assert.Equal(t, []string{"Organic Bananas 2 lb 2 3.00 Produce"}, first.SourceLines)

	assert.True(t, res.Items[1].Hint.IsEmpty())
	assert.Equal(t, "instacart", res.Items[1].Hint.Source)
}

func TestExtract_BulkMatchesRowPath(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	names := []string{
		"LIMES 3 LB", "KS WATER 40PK", "FLOUR 50 LB", "Member Savings", "TAX", "SUBTOTAL",
		"TOTAL", "ITEMS SOLD", "", "  Whipped Topping [cite: 3] ", "Sales Tax", "Total Items",
		"grand total", "NAPKINS 500CT", "Grocery Tax",
	}
	amounts := []string{"", "1", "2.5", "$1,024.00", "(3.00)", "4.10-", "nan", "N/A", "0", "-", " 7.25 "}

	cell := func(pool []string) string { return pool[rng.Intn(len(pool))] }

	for round := 0; round < 200; round++ {
		n := rng.Intn(12)
		rows := make([][]string, n)
		for i := range rows {
			rows[i] = []string{fmt.Sprint(rng.Intn(9999)), cell(names), cell(amounts), cell(amounts), cell(amounts)}
		}
		input := RawRows{Header: costcoHeader, Rows: rows}
		cache := colmap.New()

		bulkCtx, rowCtx := NewContext(), NewContext()
		bulk, err := New(cache).Extract("COSTCO", input, costcoLayout(), bulkCtx)
		require.NoError(t, err)
		row, err := New(cache, WithBulk(false)).Extract("COSTCO", input, costcoLayout(), rowCtx)
		require.NoError(t, err)

		assert.Equal(t, row.Items, bulk.Items, "round %d", round)
		assert.Equal(t, summarize(rowCtx), summarize(bulkCtx), "round %d", round)
	}
}

func summarize(c *Context) string {
	var b strings.Builder
	for _, f := range []struct {
		v    *decimal.Decimal
		name string
	}{
		{c.Subtotal, "subtotal"}, {c.TaxTotal, "tax"}, {c.GrandTotal, "grand"}, {c.ItemsSold, "items"},
	} {
		if f.v != nil {
			fmt.Fprintf(&b, "%s=%s;", f.name, f.v.String())
		}
	}
	fmt.Fprintf(&b, "lines=%q", c.ControlLines)
	return b.String()
}

func TestExtractText(t *testing.T) {
	l := &model.Layout{
		Name:     "Restaurant Depot Receipt Text",
		ParsedBy: "rd_text",
		LinePatterns: []model.LinePattern{
			{Kind: model.LinePatternSkip, Compiled: regexp.MustCompile(`^-{3,}`)},
			{Kind: model.LinePatternItem, Compiled: regexp.MustCompile(
				`^(?P<item_number>\d{4,})\s+(?P<product_name>.+?)\s+(?P<quantity>\d+(?:\.\d+)?)\s+(?P<unit_price>\d+\.\d{2})\s+(?P<total_price>-?\d+\.\d{2})$`)},
		},
	}
	lines := []string{
		"Restaurant Depot #12",
		"--------------------",
		"123456 LIMES 40 LB 1 32.50 32.50",
		"CASE OF 4",
		"7890 CLAMSHELL 9X9 2 18.00 36.00",
		"SUBTOTAL 68.50",
		"TAX 1.20",
		"TOTAL 69.70",
		"THANK YOU",
	}

	ctx := NewContext()
	res, err := ExtractText(lines, l, ctx)
	require.NoError(t, err)
	assert.Equal(t, PathText, res.Path)
	require.Len(t, res.Items, 2)

	limes := res.Items[0]
	assert.Equal(t, "LIMES 40 LB", limes.Name)
	assert.Equal(t, "123456", limes.ItemNumber)
	assert.Equal(t, "rd_text", limes.ParsedBy)
	assert.Equal(t, []string{"123456 LIMES 40 LB 1 32.50 32.50", "CASE OF 4"}, limes.SourceLines)

	clam := res.Items[1]
	assert.InDelta(t, 2.0, clam.Quantity, 0.0001)
	assert.InDelta(t, 36.0, clam.TotalPrice, 0.0001)
	assert.Len(t, clam.SourceLines, 1, "lines after a control line are not attached")

	assert.Equal(t, "68.5", ctx.Subtotal.String())
	assert.Equal(t, "1.2", ctx.TaxTotal.String())
	assert.Equal(t, "69.7", ctx.GrandTotal.String())

	_, err = ExtractText(lines, costcoLayout(), ctx)
	assert.ErrorIs(t, err, ErrLayoutShape)
}
