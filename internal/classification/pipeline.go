package classification

import (
	"fmt"
	"sort"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
)

// Pipeline classifies line items. It is immutable after construction and safe
// for concurrent use.
type Pipeline struct {
	taxonomy   *model.Taxonomy
	confidence map[StageKind]float64
	overrides  *overrideStage
	fallbackL2 string
	stages     []Stage
	threshold  float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReviewThreshold replaces the document's review threshold when t > 0.
func WithReviewThreshold(t float64) Option {
	return func(p *Pipeline) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// NewPipeline builds the stage sequence and verifies every category the rules
// can produce resolves through the taxonomy.
func NewPipeline(
	tax *model.Taxonomy,
	kw rules.KeywordConfig,
	maps rules.SourceMapConfig,
	vendors rules.VendorOverrideConfig,
	opts ...Option,
) (*Pipeline, error) {
	if tax == nil {
		return nil, common.NewConfigError(rules.CategoriesL1Document, fmt.Errorf("taxonomy is required"))
	}
	kwErr := func(err error) error { return common.NewConfigError(rules.CategoryKeywordsDocument, err) }

	p := &Pipeline{
		taxonomy:   tax,
		confidence: make(map[StageKind]float64, len(DefaultConfidence)),
		fallbackL2: kw.FallbackL2,
		threshold:  kw.ReviewThreshold,
	}
	if p.fallbackL2 == "" {
		p.fallbackL2 = DefaultFallbackL2
	}
	if p.threshold <= 0 {
		p.threshold = DefaultReviewThreshold
	}
	for k, v := range DefaultConfidence {
		p.confidence[k] = v
	}
	for name, v := range kw.DefaultConfidence {
		kind, err := ParseStageKind(name)
		if err != nil {
			return nil, kwErr(fmt.Errorf("default_confidence: %w", err))
		}
		p.confidence[kind] = v
	}
	for _, opt := range opts {
		opt(p)
	}

	order, err := stageOrder(kw.PipelineOrder)
	if err != nil {
		return nil, kwErr(err)
	}

	sourceMaps, err := newSourceMapStage(maps, tax.HasL2)
	if err != nil {
		return nil, common.NewConfigError(rules.CategoryMapsDocument, err)
	}
	keywords, err := newKeywordStage(kw.Rules)
	if err != nil {
		return nil, kwErr(err)
	}
	heuristics, err := newHeuristicStage(kw.Heuristics)
	if err != nil {
		return nil, kwErr(err)
	}
	if p.overrides, err = newOverrideStage(kw.Overrides); err != nil {
		return nil, kwErr(err)
	}

	byKind := map[StageKind]Stage{
		StageSourceMap:      sourceMaps,
		StageVendorOverride: newVendorOverrideStage(vendors),
		StageKeywords:       keywords,
		StageHeuristics:     heuristics,
	}
	for _, kind := range order {
		p.stages = append(p.stages, byKind[kind])
	}

	if err := p.checkTotality(sourceMaps, keywords, heuristics, vendors); err != nil {
		return nil, err
	}
	return p, nil
}

// stageOrder resolves the configured order of the content stages. Overrides
// always run first and fallback always last, so when listed they must sit in
// those positions.
func stageOrder(names []string) ([]StageKind, error) {
	if len(names) == 0 {
		return []StageKind{StageSourceMap, StageVendorOverride, StageKeywords, StageHeuristics}, nil
	}
	seen := make(map[StageKind]bool, len(names))
	order := make([]StageKind, 0, len(names))
	for i, name := range names {
		kind, err := ParseStageKind(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline_order: %w", err)
		}
		if seen[kind] {
			return nil, fmt.Errorf("pipeline_order: stage %q listed twice", kind)
		}
		seen[kind] = true
		switch {
		case kind == StageOverrides && i != 0:
			return nil, fmt.Errorf("pipeline_order: %q must be listed first", kind)
		case kind == StageFallback && i != len(names)-1:
			return nil, fmt.Errorf("pipeline_order: %q must be listed last", kind)
		case kind == StageOverrides || kind == StageFallback:
			continue
		}
		order = append(order, kind)
	}
	return order, nil
}

func (p *Pipeline) checkTotality(
	sm *sourceMapStage,
	kw *keywordStage,
	hs *heuristicStage,
	vendors rules.VendorOverrideConfig,
) error {
	check := func(doc, owner, code string) error {
		if !p.taxonomy.HasL2(code) {
			return common.NewConfigError(doc, fmt.Errorf("%s references unknown level-2 category %q", owner, code))
		}
		if _, ok := p.taxonomy.Level1For(code); !ok {
			return common.NewConfigError(doc, fmt.Errorf("%s: level-2 category %q has no level-1 category", owner, code))
		}
		return nil
	}

	if err := check(rules.CategoryKeywordsDocument, "fallback_l2", p.fallbackL2); err != nil {
		return err
	}
	for _, r := range kw.rules {
		if err := check(rules.CategoryKeywordsDocument, "keyword rule "+r.id, r.l2); err != nil {
			return err
		}
	}
	for _, h := range hs.battery {
		if err := check(rules.CategoryKeywordsDocument, "heuristic "+h.kind, h.l2); err != nil {
			return err
		}
		if h.l2Alt == "" {
			continue
		}
		if err := check(rules.CategoryKeywordsDocument, "heuristic "+h.kind, h.l2Alt); err != nil {
			return err
		}
	}
	for _, o := range p.overrides.overrides {
		if err := check(rules.CategoryKeywordsDocument, "override "+o.kind, o.l2); err != nil {
			return err
		}
	}

	sources := make([]string, 0, len(sm.rules))
	for source := range sm.rules {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		for _, r := range sm.rules[source] {
			if err := check(rules.CategoryMapsDocument, "source map rule "+r.id, r.l2); err != nil {
				return err
			}
		}
	}

	vendorCodes := make([]string, 0, len(vendors))
	for v := range vendors {
		vendorCodes = append(vendorCodes, v)
	}
	sort.Strings(vendorCodes)
	for _, v := range vendorCodes {
		for _, r := range vendors[v] {
			if err := check(rules.CategoriesL2Document, "vendor override for "+v, r.MapToL2); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stages returns the configured content stage kinds in evaluation order.
func (p *Pipeline) Stages() []StageKind {
	kinds := make([]StageKind, 0, len(p.stages)+2)
	kinds = append(kinds, StageOverrides)
	for _, s := range p.stages {
		kinds = append(kinds, s.Kind())
	}
	return append(kinds, StageFallback)
}

// ReviewThreshold returns the confidence below which items need review.
func (p *Pipeline) ReviewThreshold() float64 {
	return p.threshold
}

// Classify assigns a category to one item. Exactly one stage fires.
func (p *Pipeline) Classify(li *model.LineItem, vendor string) {
	in := &Input{
		Text:   NormalizeText(li.Name),
		Name:   li.Name,
		Vendor: vendor,
		Hint:   li.Hint,
	}

	kind, m := p.evaluate(in)

	source := m.Source
	if source == "" {
		source = string(kind)
	}
	li.L2Code = m.L2Code
	li.RuleID = m.RuleID
	li.CategorySource = source
	li.Confidence = p.confidence[kind]
	if c, ok := p.taxonomy.L2(m.L2Code); ok {
		li.L2Name = c.Name
	}
	if c, ok := p.taxonomy.Level1For(m.L2Code); ok {
		li.L1Code = c.ID
		li.L1Name = c.Name
	}
	li.NeedsCategoryReview = m.L2Code == p.fallbackL2 || li.Confidence < p.threshold
}

func (p *Pipeline) evaluate(in *Input) (StageKind, Match) {
	if m, ok := p.overrides.Apply(in); ok {
		return StageOverrides, m
	}
	for _, s := range p.stages {
		if m, ok := s.Apply(in); ok {
			return s.Kind(), m
		}
	}
	return StageFallback, Match{L2Code: p.fallbackL2, RuleID: string(StageFallback)}
}

// ClassifyAll classifies items in place.
func (p *Pipeline) ClassifyAll(items []model.LineItem, vendor string) {
	for i := range items {
		p.Classify(&items[i], vendor)
	}
}
