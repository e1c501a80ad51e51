// Package legacy is the escape hatch for documents no modern layout matches.
// Its output has the modern shape but is always flagged for review.
package legacy

import (
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/extract"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Review reasons recorded by Apply.
const (
	ReasonNoLayout       = "no modern layout matched"
	ReasonLegacyDisabled = "no modern layout matched and legacy parsers disabled"
	ReasonLegacyFailed   = "legacy parser failed"
)

// Input is the acquired document content.
type Input struct {
	Header []string
	Rows   [][]string
	Lines  []string
}

// IsTabular reports whether the document has a table.
func (in Input) IsTabular() bool {
	return len(in.Header) > 0 || len(in.Rows) > 0
}

// Processor parses a document without a layout. It returns the provenance
// sentinel it used even when it fails.
type Processor interface {
	Process(in Input, ctx *extract.Context) ([]model.LineItem, string, error)
}

// Apply runs the legacy path for r. Upstream fields on r are left as they are.
// The returned context holds any control values the processor found.
func Apply(r *model.Receipt, enabled bool, p Processor, in Input) *extract.Context {
	ctx := extract.NewContext()

	if !enabled || p == nil {
		r.ParsedBy = model.ParsedByNone
		r.Items = nil
		r.AddReviewReason(ReasonLegacyDisabled)
		return ctx
	}

	items, parsedBy, err := p.Process(in, ctx)
	r.ParsedBy = parsedBy
	r.AddReviewReason(ReasonNoLayout)
	if err != nil {
		common.LogWarn("Legacy parser failed", common.Fields{
			"source_file": r.SourceFile,
			"vendor":      r.VendorCode,
			"error":       err.Error(),
		})
		r.AddReviewReason(ReasonLegacyFailed + ": " + err.Error())
		r.Items = nil
		return ctx
	}

	for i := range items {
		items[i].ParsedBy = parsedBy
	}
	r.Items = items
	return ctx
}
