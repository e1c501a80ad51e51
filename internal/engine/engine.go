// Package engine orchestrates per-document processing: layout resolution,
// extraction, unit-of-measure capture, classification and totals.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/the-receipts-must-flow/internal/colmap"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/config"
	"github.com/Veraticus/the-receipts-must-flow/internal/extract"
	"github.com/Veraticus/the-receipts-must-flow/internal/layout"
	"github.com/Veraticus/the-receipts-must-flow/internal/legacy"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// PathLegacy is the extraction path recorded when no modern layout read the document.
const PathLegacy = "legacy"

// sampleRows bounds how much of a table feeds the text_contains predicate.
const sampleRows = 50

// Document is one acquired vendor document.
type Document struct {
	SourceFile string
	FileExt    string
	VendorCode string
	SourceType string
	Header     []string
	Rows       [][]string
	Lines      []string
}

// IsTabular reports whether the document was acquired as a table.
func (d *Document) IsTabular() bool {
	return len(d.Header) > 0
}

// Ext returns the declared extension, or the source file's.
func (d *Document) Ext() string {
	if d.FileExt != "" {
		return d.FileExt
	}
	return strings.ToLower(filepath.Ext(d.SourceFile))
}

// TextSample returns the text the layout text predicates are matched against.
func (d *Document) TextSample() string {
	if len(d.Lines) > 0 {
		return strings.Join(d.Lines, "\n")
	}
	var b strings.Builder
	b.WriteString(strings.Join(d.Header, " "))
	for i, row := range d.Rows {
		if i == sampleRows {
			break
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(row, " "))
	}
	return b.String()
}

// Config holds engine configuration.
type Config struct {
	Workers         int
	CacheMaxEntries int
	ReviewThreshold float64
	CacheEnabled    bool
	Bulk            bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		CacheMaxEntries: colmap.DefaultMaxEntries,
		CacheEnabled:    true,
		Bulk:            true,
	}
}

// ConfigFrom maps loaded application configuration onto engine configuration.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Workers:         c.Engine.Workers,
		CacheMaxEntries: c.Cache.MaxEntries,
		CacheEnabled:    c.Cache.Enabled,
		Bulk:            c.Extraction.Bulk,
		ReviewThreshold: c.Classification.ReviewThreshold,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegisterer registers engine and cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithLegacyProcessor replaces the default legacy processor.
func WithLegacyProcessor(p legacy.Processor) Option {
	return func(e *Engine) {
		e.legacy = p
	}
}

// Engine processes vendor documents. It is safe for concurrent use.
type Engine struct {
	registerer prometheus.Registerer
	legacy     legacy.Processor
	store      *rules.Store
	resolver   *layout.Resolver
	cache      *colmap.Cache
	extractor  *extract.Extractor
	metrics    *metrics
	rs         atomic.Pointer[ruleset]
	cfg        Config
	mu         sync.Mutex
}

// New creates an engine over store. Every referenced rule document is loaded
// and validated; configuration errors are returned here.
func New(store *rules.Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: rule store is required", common.ErrMissingConfig)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	e := &Engine{
		store:  store,
		cfg:    cfg,
		legacy: legacy.HeuristicProcessor{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.metrics = newMetrics(e.registerer)
	e.resolver = layout.NewResolver(store)
	e.cache = colmap.New(
		colmap.WithEnabled(cfg.CacheEnabled),
		colmap.WithMaxEntries(cfg.CacheMaxEntries),
		colmap.WithRegisterer(e.registerer),
	)
	e.extractor = extract.New(e.cache, extract.WithBulk(cfg.Bulk))

	if err := store.ValidateAll(); err != nil {
		return nil, err
	}
	if _, err := e.rules(); err != nil {
		return nil, err
	}

	common.LogInfo("Engine ready", common.Fields{
		"rules_dir":  store.Dir(),
		"hot_reload": store.HotReload(),
		"cache":      cfg.CacheEnabled,
		"bulk":       cfg.Bulk,
		"workers":    cfg.Workers,
	})
	return e, nil
}

// CacheStats returns column-mapping cache statistics.
func (e *Engine) CacheStats() colmap.Stats {
	return e.cache.Stats()
}

// Workers returns the batch concurrency limit.
func (e *Engine) Workers() int {
	return e.cfg.Workers
}

// Process turns one document into a receipt. Documents no layout can read go
// through the legacy path and are flagged for review; only configuration
// problems and cancellation are returned as errors.
func (e *Engine) Process(ctx context.Context, doc *Document) (*model.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("document is required")
	}

	rs, err := e.rules()
	if err != nil {
		return nil, err
	}

	r := &model.Receipt{
		ID:                 uuid.NewString(),
		ProcessedAt:        time.Now(),
		SourceFile:         doc.SourceFile,
		FileExt:            doc.Ext(),
		VendorCode:         doc.VendorCode,
		DetectedSourceType: doc.SourceType,
	}

	l, err := e.resolver.Resolve(layout.Hints{
		VendorCode:   doc.VendorCode,
		FileExt:      r.FileExt,
		TextSample:   doc.TextSample(),
		HeaderTokens: doc.Header,
	})
	if err != nil {
		return nil, err
	}

	xctx, err := e.extract(r, doc, l, rs)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", doc.SourceFile, err)
	}

	rs.uom.Apply(r.Items)
	rs.pipeline.ClassifyAll(r.Items, doc.VendorCode)

	totals := extract.Finalize(r.Items, xctx, rs.shared.IsTaxExempt(doc.VendorCode))
	r.Subtotal = totals.Subtotal
	r.Tax = totals.Tax
	r.Total = totals.Total
	r.ItemCount = totals.ItemCount
	for _, reason := range totals.ReviewReasons {
		r.AddReviewReason(reason)
	}

	e.metrics.observe(r)
	common.LogDebug("Processed document", common.Fields{
		"source_file":     r.SourceFile,
		"vendor":          r.VendorCode,
		"layout":          r.LayoutName,
		"path":            r.ExtractionPath,
		"items":           len(r.Items),
		"items_to_review": r.ItemsNeedingReview(),
		"needs_review":    r.NeedsReview,
	})
	return r, nil
}

// extract fills r's items from the resolved layout, or from the legacy path
// when the layout is missing or cannot read the document's shape.
func (e *Engine) extract(r *model.Receipt, doc *Document, l *model.Layout, rs *ruleset) (*extract.Context, error) {
	xctx := extract.NewContext()

	var (
		res *extract.Result
		err error
	)
	switch {
	case l != nil && l.IsTabular() && doc.IsTabular():
		res, err = e.extractor.Extract(doc.VendorCode, extract.RawRows{Header: doc.Header, Rows: doc.Rows}, l, xctx)
	case l != nil && l.IsText() && len(doc.Lines) > 0:
		res, err = extract.ExtractText(doc.Lines, l, xctx)
	default:
		if l != nil {
			common.LogWarn("Resolved layout does not fit document shape", common.Fields{
				"source_file": doc.SourceFile,
				"layout":      l.Name,
				"tabular":     doc.IsTabular(),
			})
		}
		r.ExtractionPath = PathLegacy
		return legacy.Apply(r, rs.shared.LegacyEnabled(), e.legacy, legacy.Input{
			Header: doc.Header,
			Rows:   doc.Rows,
			Lines:  doc.Lines,
		}), nil
	}
	if err != nil {
		return nil, err
	}

	if res.FallbackReason != "" {
		common.LogDebug("Row fallback used", common.Fields{
			"source_file": doc.SourceFile,
			"layout":      l.Name,
			"reason":      res.FallbackReason,
		})
	}
	r.LayoutName = l.Name
	r.ParsedBy = l.Provenance()
	r.ExtractionPath = string(res.Path)
	r.Items = res.Items
	return xctx, nil
}
