package uom

import (
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureExtractor(t *testing.T) *Extractor {
	t.Helper()
	store, err := rules.NewStore(testutil.WriteRules(t, nil))
	require.NoError(t, err)
	cfg, err := store.UoM()
	require.NoError(t, err)
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestExtract_Priority(t *testing.T) {
	e := fixtureExtractor(t)

	tests := []struct {
		name string
		in   Input
		want Result
	}{
		{
			name: "explicit column",
			in:   Input{Name: "Organic Bananas 3 LB", HasSizeColumn: true, SizeColumn: " 2 lb "},
			want: Result{RawSizeText: "2 lb", RawUOMText: "lb", Strategy: StrategyExplicitColumn},
		},
		{
			name: "explicit unit column",
			in:   Input{Name: "Milk", HasSizeColumn: true, SizeColumn: "1", UnitColumn: "GAL"},
			want: Result{RawSizeText: "1", RawUOMText: "GAL", Strategy: StrategyExplicitColumn},
		},
		{
			name: "empty column falls through to name",
			in:   Input{Name: "LIMES 3 LB", HasSizeColumn: true},
			want: Result{RawSizeText: "3 LB", RawUOMText: "LB", Strategy: StrategyProductName},
		},
		{
			name: "pack pattern before plain quantity",
			in:   Input{Name: "CHICKEN BREAST 4/10 LB"},
			want: Result{RawSizeText: "4/10 LB", RawUOMText: "LB", Strategy: StrategyProductName},
		},
		{
			name: "trailing size in name wins",
			in:   Input{Name: "3 PK LIMES 2 LB"},
			want: Result{RawSizeText: "2 LB", RawUOMText: "LB", Strategy: StrategyProductName},
		},
		{
			name: "adjacent line",
			in: Input{
				Name:        "CLAMSHELL HINGED",
				SourceLines: []string{"7890 CLAMSHELL HINGED 2 18.00 36.00", "CASE 200 CT"},
			},
			want: Result{RawSizeText: "200 CT", RawUOMText: "CT", Strategy: StrategyAdjacentLine},
		},
		{
			name: "full line text",
			in: Input{
				Name:        "SYRUP",
				SourceLines: []string{"4455 SYRUP 1 GAL 12.99"},
			},
			want: Result{RawSizeText: "1 GAL", RawUOMText: "GAL", Strategy: StrategyQtyUnit},
		},
		{
			name: "nothing found",
			in:   Input{Name: "MYSTERY ITEM", SourceLines: []string{"MYSTERY ITEM 1.00"}},
			want: Result{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract(tt.in))
		})
	}
}

func TestExtract_ConfiguredOrder(t *testing.T) {
	e, err := New(rules.UoMConfig{Priority: []string{"qty_unit_pattern", "product_name"}})
	require.NoError(t, err)

	got := e.Extract(Input{Name: "RICE 25 LB", SourceLines: []string{"RICE 25 LB 2 CT"}})
	assert.Equal(t, StrategyQtyUnit, got.Strategy)
	assert.Equal(t, "25 LB", got.RawSizeText)

	got = e.Extract(Input{Name: "RICE", HasSizeColumn: true, SizeColumn: "25 lb"})
	assert.Equal(t, Result{}, got, "explicit column not in priority list")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(rules.UoMConfig{Priority: []string{"product_name", "barcode_lookup"}})
	require.Error(t, err)
	assert.True(t, common.IsConfigError(err))
	assert.Contains(t, err.Error(), rules.UoMDocument)

	_, err = New(rules.UoMConfig{ProductNamePatterns: []string{"(?P<unit>oz"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestApply(t *testing.T) {
	e := fixtureExtractor(t)
	items := []model.LineItem{
		{Name: "LIMES 3 LB"},
		{Name: "NAPKINS", SourceLines: []string{"NAPKINS", "500 CT"}},
		{Name: "GIFT CARD"},
	}
	e.Apply(items)

	assert.Equal(t, "3 LB", items[0].RawSizeText)
	assert.Equal(t, "LB", items[0].RawUOMText)
	assert.Equal(t, "500 CT", items[1].RawSizeText)
	assert.Empty(t, items[2].RawSizeText)
	assert.Empty(t, items[2].RawUOMText)
}
