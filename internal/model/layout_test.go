package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAliasesUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Aliases
		wantErr bool
	}{
		{name: "scalar", input: "total_price: Amount\n", want: Aliases{"Amount"}},
		{name: "sequence", input: "total_price: [Total, Amount]\n", want: Aliases{"Total", "Amount"}},
		{name: "mapping rejected", input: "total_price: {a: b}\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[CanonicalField]Aliases
			err := yaml.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "column mapping must be a string or list")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got[FieldTotalPrice])
		})
	}
}

func TestParseCanonicalField(t *testing.T) {
	f, err := ParseCanonicalField(" Product_Name ")
	require.NoError(t, err)
	assert.Equal(t, FieldProductName, f)

	_, err = ParseCanonicalField("sku")
	assert.Error(t, err)
}

func TestLayoutShapeAndProvenance(t *testing.T) {
	tabular := &Layout{
		Name:           "Costco Generic",
		ColumnMappings: map[CanonicalField]Aliases{FieldProductName: {"Description"}},
	}
	assert.True(t, tabular.IsTabular())
	assert.False(t, tabular.IsText())
	assert.Equal(t, "layout_costco_generic", tabular.Provenance())

	text := &Layout{
		Name:         "RD Invoice (text)",
		ParsedBy:     "rd_text",
		LinePatterns: []LinePattern{{Kind: LinePatternItem, Regex: `^(?P<product_name>.+)$`}},
	}
	assert.True(t, text.IsText())
	assert.Equal(t, "rd_text", text.Provenance())
}

func TestNormalizationDefaults(t *testing.T) {
	var n Normalization
	assert.True(t, n.Trim())
	assert.True(t, n.KeepCase())

	off := false
	n = Normalization{TrimWhitespace: &off, PreserveCase: &off}
	assert.False(t, n.Trim())
	assert.False(t, n.KeepCase())
}
