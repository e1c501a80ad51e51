package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		format func(string) string
		name   string
		icon   string
	}{
		{name: "success", format: FormatSuccess, icon: SuccessIcon},
		{name: "error", format: FormatError, icon: ErrorIcon},
		{name: "warning", format: FormatWarning, icon: WarningIcon},
		{name: "info", format: FormatInfo, icon: InfoIcon},
		{name: "title", format: FormatTitle, icon: ReceiptIcon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.format("3 receipts saved")
			assert.Contains(t, out, tt.icon+" 3 receipts saved")
		})
	}
}

func TestRenderBox(t *testing.T) {
	out := RenderBox("Summary", "Documents processed: 2")
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "Documents processed: 2")
	assert.Contains(t, out, "╭")
}
