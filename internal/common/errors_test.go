package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		name     string
		document string
		wantMsg  string
	}{
		{
			name:     "plain error becomes invalid config",
			document: "59_category_keywords.yaml",
			err:      errors.New("bad regex"),
			sentinel: ErrInvalidConfig,
			wantMsg:  "rule document 59_category_keywords.yaml: invalid configuration: bad regex",
		},
		{
			name:     "missing config kept",
			document: "shared.yaml",
			err:      fmt.Errorf("%w: open shared.yaml", ErrMissingConfig),
			sentinel: ErrMissingConfig,
			wantMsg:  "rule document shared.yaml: missing configuration: open shared.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfigError(tt.document, tt.err)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, IsConfigError(err))
			assert.Equal(t, tt.wantMsg, err.Error())

			var ce *ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.document, ce.Document)
		})
	}
}

func TestUserError(t *testing.T) {
	inner := errors.New("permission denied")
	err := NewUserError("could not open receipt", inner)

	assert.Equal(t, "could not open receipt: permission denied", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.False(t, IsConfigError(err))
}
