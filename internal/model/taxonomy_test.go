package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaxonomy(t *testing.T) {
	l1 := []Category{{ID: "A10", Name: "Food Cost"}, {ID: "A99", Name: "Uncategorized"}}
	l2 := []Category{{ID: "C10", Name: "Produce - Fresh"}, {ID: "C99", Name: "Other"}}

	tests := []struct {
		l2ToL1  map[string]string
		name    string
		errMsg  string
		l1      []Category
		l2      []Category
		wantErr bool
	}{
		{
			name:   "complete mapping",
			l1:     l1,
			l2:     l2,
			l2ToL1: map[string]string{"C10": "A10", "C99": "A99"},
		},
		{
			name:    "unmapped level-2",
			l1:      l1,
			l2:      l2,
			l2ToL1:  map[string]string{"C10": "A10"},
			wantErr: true,
			errMsg:  "without a level-1 mapping: [C99]",
		},
		{
			name:    "unknown level-1 target",
			l1:      l1,
			l2:      l2,
			l2ToL1:  map[string]string{"C10": "A10", "C99": "A50"},
			wantErr: true,
			errMsg:  `unknown level-1 category "A50"`,
		},
		{
			name:    "unknown level-2 source",
			l1:      l1,
			l2:      l2,
			l2ToL1:  map[string]string{"C10": "A10", "C99": "A99", "C42": "A10"},
			wantErr: true,
			errMsg:  `unknown level-2 category "C42"`,
		},
		{
			name:    "duplicate level-2",
			l1:      l1,
			l2:      append([]Category{{ID: "C10", Name: "Again"}}, l2...),
			l2ToL1:  map[string]string{"C10": "A10", "C99": "A99"},
			wantErr: true,
			errMsg:  `duplicate level-2 category "C10"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tax, err := NewTaxonomy(tt.l1, tt.l2, tt.l2ToL1)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"C10", "C99"}, tax.L2Codes())
		})
	}
}

func TestTaxonomyLookups(t *testing.T) {
	tax, err := NewTaxonomy(
		[]Category{{ID: "A10", Name: "Food Cost"}},
		[]Category{{ID: "C10", Name: "Produce - Fresh"}},
		map[string]string{"C10": "A10"},
	)
	require.NoError(t, err)

	assert.True(t, tax.HasL2("C10"))
	assert.False(t, tax.HasL2("C11"))

	c, ok := tax.L2("C10")
	require.True(t, ok)
	assert.Equal(t, "Produce - Fresh", c.Name)

	parent, ok := tax.Level1For("C10")
	require.True(t, ok)
	assert.Equal(t, Category{ID: "A10", Name: "Food Cost"}, parent)

	_, ok = tax.Level1For("C11")
	assert.False(t, ok)
}
