package layout

import (
	"errors"
	"testing"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/Veraticus/the-receipts-must-flow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string][]*model.Layout

func (s staticSource) Layouts(vendor string) ([]*model.Layout, error) {
	return s[vendor], nil
}

type failingSource struct{ err error }

func (f failingSource) Layouts(string) ([]*model.Layout, error) {
	return nil, f.err
}

func TestResolve_Predicates(t *testing.T) {
	specific := &model.Layout{
		Name: "specific",
		AppliesTo: model.AppliesTo{
			VendorCodes:    []string{"COSTCO"},
			FileExts:       []string{".xlsx"},
			HeaderContains: []string{"Item #", "Description"},
		},
	}
	textual := &model.Layout{
		Name: "textual",
		AppliesTo: model.AppliesTo{
			VendorCodes:  []string{"COSTCO"},
			TextContains: []string{"Costco Wholesale"},
		},
	}
	pattern := &model.Layout{
		Name: "pattern",
		AppliesTo: model.AppliesTo{
			VendorCodes:  []string{"INSTACART"},
			TextContains: []string{`order\s+#\d+`},
		},
	}
	broken := &model.Layout{
		Name: "broken",
		AppliesTo: model.AppliesTo{
			VendorCodes:  []string{"LIDL"},
			TextContains: []string{"receipt ("},
		},
	}
	empty := &model.Layout{Name: "empty"}
	src := staticSource{
		"COSTCO":    {empty, specific, textual},
		"INSTACART": {pattern},
		"LIDL":      {broken},
	}

	tests := []struct {
		name  string
		want  string
		hints Hints
	}{
		{
			name:  "headers and extension",
			hints: Hints{VendorCode: "COSTCO", FileExt: "XLSX", HeaderTokens: []string{"ITEM  #", "description", "Qty"}},
			want:  "specific",
		},
		{
			name:  "punctuation insensitive header",
			hints: Hints{VendorCode: "COSTCO", FileExt: ".xlsx", HeaderTokens: []string{"Item#", "Item Description"}},
			want:  "specific",
		},
		{
			name:  "wrong extension falls through to text",
			hints: Hints{VendorCode: "COSTCO", FileExt: ".pdf", HeaderTokens: []string{"Item #", "Description"}, TextSample: "COSTCO WHOLESALE #123"},
			want:  "textual",
		},
		{
			name:  "missing header token",
			hints: Hints{VendorCode: "COSTCO", FileExt: ".xlsx", HeaderTokens: []string{"Item #", "Qty"}},
			want:  "",
		},
		{
			name:  "declared predicate without input",
			hints: Hints{VendorCode: "COSTCO", HeaderTokens: []string{"Item #", "Description"}},
			want:  "",
		},
		{
			name:  "unknown vendor",
			hints: Hints{VendorCode: "ALDI", FileExt: ".xlsx", HeaderTokens: []string{"Item #", "Description"}},
			want:  "",
		},
		{
			name:  "text fragment as regular expression",
			hints: Hints{VendorCode: "INSTACART", TextSample: "Your ORDER  #40417 was delivered"},
			want:  "pattern",
		},
		{
			name:  "regular expression without match",
			hints: Hints{VendorCode: "INSTACART", TextSample: "Order number pending"},
			want:  "",
		},
		{
			name:  "invalid expression matches only as substring",
			hints: Hints{VendorCode: "LIDL", TextSample: "LIDL RECEIPT (COPY)"},
			want:  "broken",
		},
		{
			name:  "invalid expression without substring",
			hints: Hints{VendorCode: "LIDL", TextSample: "LIDL RECEIPT"},
			want:  "",
		},
		{
			name:  "no vendor",
			hints: Hints{FileExt: ".xlsx", TextSample: "Costco Wholesale"},
			want:  "",
		},
	}

	r := NewResolver(src)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.hints)
			require.NoError(t, err)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	general := &model.Layout{Name: "general", AppliesTo: model.AppliesTo{VendorCodes: []string{"COSTCO"}}}
	specific := &model.Layout{Name: "specific", AppliesTo: model.AppliesTo{
		VendorCodes:    []string{"COSTCO"},
		HeaderContains: []string{"Description"},
	}}
	hints := Hints{VendorCode: "COSTCO", HeaderTokens: []string{"Description", "Total"}}

	got, err := NewResolver(staticSource{"COSTCO": {specific, general}}).Resolve(hints)
	require.NoError(t, err)
	assert.Same(t, specific, got)

	got, err = NewResolver(staticSource{"COSTCO": {general, specific}}).Resolve(hints)
	require.NoError(t, err)
	assert.Same(t, general, got, "declaration order decides, not specificity")
}

func TestResolve_Deterministic(t *testing.T) {
	store, err := rules.NewStore(testutil.WriteRules(t, nil))
	require.NoError(t, err)
	r := NewResolver(store)

	hints := Hints{
		VendorCode:   "COSTCO",
		FileExt:      ".csv",
		HeaderTokens: []string{"Item #", "Description", "Qty", "Unit Price", "Total"},
	}

	first, err := r.Resolve(hints)
	require.NoError(t, err)
	require.NotNil(t, first)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(hints)
		require.NoError(t, err)
		assert.Same(t, first, again)
	}
	assert.Equal(t, "Costco Warehouse Export", first.Name)

	hints.FileExt = ".pdf"
	fallback, err := r.Resolve(hints)
	require.NoError(t, err)
	require.NotNil(t, fallback)
	assert.Equal(t, "Costco Generic", fallback.Name)
}

func TestResolve_SourceError(t *testing.T) {
	boom := errors.New("broken layout document")
	_, err := NewResolver(failingSource{err: boom}).Resolve(Hints{VendorCode: "COSTCO"})
	assert.ErrorIs(t, err, boom)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "unit price", NormalizeHeader("  Unit\tPRICE "))
	assert.Equal(t, "item", StripPunct("item #"))
}
