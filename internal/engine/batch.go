package engine

import (
	"context"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result for the document at Index in a batch.
type Outcome struct {
	Err      error
	Receipt  *model.Receipt
	Source   string
	Index    int
	Duration time.Duration
}

// ProcessBatch processes docs with at most Workers in flight. Outcomes are
// indexed by input position. A failing document is recorded in its Outcome and
// never cancels the others; only ctx stops scheduling. The first configuration
// error among the outcomes is also returned, so callers can abort. onDone, when
// set, is called once per finished document and may be called concurrently.
func (e *Engine) ProcessBatch(ctx context.Context, docs []*Document, onDone func(Outcome)) ([]Outcome, error) {
	outcomes := make([]Outcome, len(docs))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)

	for i, doc := range docs {
		outcomes[i] = Outcome{Index: i}
		if doc != nil {
			outcomes[i].Source = doc.SourceFile
		}
		if err := ctx.Err(); err != nil {
			outcomes[i].Err = err
			continue
		}

		g.Go(func() error {
			start := time.Now()
			r, err := e.Process(ctx, doc)
			out := Outcome{
				Index:    i,
				Source:   outcomes[i].Source,
				Receipt:  r,
				Err:      err,
				Duration: time.Since(start),
			}
			outcomes[i] = out

			if err != nil {
				common.LogError(err, "Document failed", common.Fields{"source_file": out.Source})
			}
			if onDone != nil {
				onDone(out)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		if common.IsConfigError(out.Err) {
			return outcomes, out.Err
		}
	}
	return outcomes, ctx.Err()
}
