package classification

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
	"github.com/cloudflare/ahocorasick"
)

// RuleIDSourceCode tags a source-map hit on an upstream taxonomy code.
const RuleIDSourceCode = "source_code"

type sourceMapRule struct {
	title        *regexp.Regexp
	id           string
	l2           string
	department   []string
	aisle        []string
	categoryPath []string
	textContains []string
	isDefault    bool
}

func (r *sourceMapRule) declared() bool {
	return r.title != nil || len(r.department) > 0 || len(r.aisle) > 0 ||
		len(r.categoryPath) > 0 || len(r.textContains) > 0
}

// matches requires every declared criterion to hold; within one criterion any
// listed fragment is enough.
func (r *sourceMapRule) matches(in *Input) bool {
	if !r.declared() {
		return false
	}
	if len(r.department) > 0 && !containsAny(in.Hint.Department, r.department) {
		return false
	}
	if len(r.aisle) > 0 && !containsAny(in.Hint.Aisle, r.aisle) {
		return false
	}
	if len(r.categoryPath) > 0 && !containsAny(in.Hint.CategoryPath, r.categoryPath) {
		return false
	}
	if len(r.textContains) > 0 && !containsAny(in.Text, r.textContains) {
		return false
	}
	if r.title != nil && !r.title.MatchString(in.Name) {
		return false
	}
	return true
}

func containsAny(value string, fragments []string) bool {
	if value == "" {
		return false
	}
	v := strings.ToLower(value)
	for _, f := range fragments {
		if f != "" && strings.Contains(v, f) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

type sourceMapStage struct {
	hasL2 func(string) bool
	rules map[string][]*sourceMapRule
}

func newSourceMapStage(cfg rules.SourceMapConfig, hasL2 func(string) bool) (*sourceMapStage, error) {
	s := &sourceMapStage{hasL2: hasL2, rules: make(map[string][]*sourceMapRule, len(cfg))}
	for source, list := range cfg {
		key := strings.ToLower(strings.TrimSpace(source))
		for i, r := range list {
			id := r.ID
			if id == "" {
				id = fmt.Sprintf("%s_rule_%d", key, i)
			}
			compiled := &sourceMapRule{
				id:           id,
				l2:           r.MapToL2,
				department:   lowerAll(r.Department),
				aisle:        lowerAll(r.Aisle),
				categoryPath: lowerAll(r.CategoryPath),
				textContains: lowerAll(r.TextContains),
				isDefault:    r.Default,
			}
			if r.TitleRegex != "" {
				re, err := common.CompileFold(r.TitleRegex)
				if err != nil {
					return nil, fmt.Errorf("source map rule %s: invalid title_regex: %w", id, err)
				}
				compiled.title = re
			}
			s.rules[key] = append(s.rules[key], compiled)
		}
	}
	return s, nil
}

func (s *sourceMapStage) Kind() StageKind { return StageSourceMap }

func (s *sourceMapStage) Apply(in *Input) (Match, bool) {
	if code := strings.ToUpper(strings.TrimSpace(in.Hint.Code)); code != "" && s.hasL2(code) {
		return Match{L2Code: code, RuleID: RuleIDSourceCode}, true
	}

	list := s.rules[strings.ToLower(strings.TrimSpace(in.Hint.Source))]
	if len(list) == 0 {
		return Match{}, false
	}
	var fallback *sourceMapRule
	for _, r := range list {
		if r.isDefault {
			if fallback == nil {
				fallback = r
			}
			continue
		}
		if r.matches(in) {
			return Match{L2Code: r.l2, RuleID: r.id}, true
		}
	}
	if fallback != nil {
		return Match{L2Code: fallback.l2, RuleID: fallback.id}, true
	}
	return Match{}, false
}

type vendorOverrideRule struct {
	id    string
	l2    string
	texts map[string]bool
}

type vendorOverrideStage struct {
	rules map[string][]vendorOverrideRule
}

func newVendorOverrideStage(cfg rules.VendorOverrideConfig) *vendorOverrideStage {
	s := &vendorOverrideStage{rules: make(map[string][]vendorOverrideRule, len(cfg))}
	for vendor, list := range cfg {
		key := strings.ToUpper(strings.TrimSpace(vendor))
		for i, r := range list {
			id := r.ID
			if id == "" {
				id = fmt.Sprintf("vendor_%s_%d", strings.ToLower(key), i)
			}
			texts := make(map[string]bool, len(r.Exact)+len(r.Aliases))
			for _, t := range append(append([]string{}, r.Exact...), r.Aliases...) {
				if n := NormalizeText(t); n != "" {
					texts[n] = true
				}
			}
			s.rules[key] = append(s.rules[key], vendorOverrideRule{id: id, l2: r.MapToL2, texts: texts})
		}
	}
	return s
}

func (s *vendorOverrideStage) Kind() StageKind { return StageVendorOverride }

func (s *vendorOverrideStage) Apply(in *Input) (Match, bool) {
	for _, r := range s.rules[strings.ToUpper(strings.TrimSpace(in.Vendor))] {
		if r.texts[in.Text] {
			return Match{L2Code: r.l2, RuleID: r.id}, true
		}
	}
	return Match{}, false
}

type keywordRule struct {
	include  *regexp.Regexp
	exclude  *regexp.Regexp
	id       string
	l2       string
	priority int
}

type keywordStage struct {
	rules []keywordRule
}

func newKeywordStage(cfg []rules.KeywordRule) (*keywordStage, error) {
	s := &keywordStage{rules: make([]keywordRule, 0, len(cfg))}
	for i, r := range cfg {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("keyword_rule_%d", i)
		}
		include, err := common.CompileFold(r.IncludeRegex)
		if err != nil {
			return nil, fmt.Errorf("keyword rule %s: invalid include_regex: %w", id, err)
		}
		rule := keywordRule{include: include, id: id, l2: r.MapToL2, priority: r.Priority}
		if r.ExcludeRegex != "" {
			if rule.exclude, err = common.CompileFold(r.ExcludeRegex); err != nil {
				return nil, fmt.Errorf("keyword rule %s: invalid exclude_regex: %w", id, err)
			}
		}
		s.rules = append(s.rules, rule)
	}
	sort.SliceStable(s.rules, func(i, j int) bool {
		return s.rules[i].priority > s.rules[j].priority
	})
	return s, nil
}

func (s *keywordStage) Kind() StageKind { return StageKeywords }

func (s *keywordStage) Apply(in *Input) (Match, bool) {
	for _, r := range s.rules {
		if !r.include.MatchString(in.Text) {
			continue
		}
		if r.exclude != nil && r.exclude.MatchString(in.Text) {
			continue
		}
		return Match{L2Code: r.l2, RuleID: r.id}, true
	}
	return Match{}, false
}

// Heuristic kinds, in the order they are tried.
const (
	HeuristicTopping    = "topping"
	HeuristicFreshFruit = "fresh_fruit"
	HeuristicDairy      = "dairy"
	HeuristicPackaging  = "packaging"
	HeuristicCleaning   = "cleaning"
)

var heuristicBattery = []string{HeuristicTopping, HeuristicFreshFruit, HeuristicDairy, HeuristicPackaging, HeuristicCleaning}

// tokenSet matches whole-word prefixes: a token hits where a word starts with it.
type tokenSet struct {
	matcher *ahocorasick.Matcher
	// The matcher keeps per-call state, so calls are serialized.
	mu sync.Mutex
}

func newTokenSet(tokens []string) *tokenSet {
	dict := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if n := NormalizeText(t); n != "" {
			dict = append(dict, []byte(" "+n))
		}
	}
	if len(dict) == 0 {
		return nil
	}
	return &tokenSet{matcher: ahocorasick.NewMatcher(dict)}
}

func (ts *tokenSet) hit(text string) bool {
	if ts == nil || text == "" {
		return false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.matcher.Match([]byte(" "+text))) > 0
}

type heuristic struct {
	tokens  *tokenSet
	freezer *tokenSet
	kind    string
	l2      string
	l2Alt   string
}

type heuristicStage struct {
	battery []*heuristic
}

func newHeuristicStage(cfg map[string]rules.HeuristicRule) (*heuristicStage, error) {
	for kind := range cfg {
		known := false
		for _, k := range heuristicBattery {
			if kind == k {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown heuristic %q", kind)
		}
	}

	s := &heuristicStage{}
	for _, kind := range heuristicBattery {
		r, ok := cfg[kind]
		if !ok {
			continue
		}
		h := &heuristic{kind: kind, tokens: newTokenSet(r.Tokens), l2: r.MapToL2}
		if kind == HeuristicFreshFruit {
			if r.MapToL2Fresh != "" {
				h.l2 = r.MapToL2Fresh
			}
			h.l2Alt = r.MapToL2Frozen
			if h.l2Alt == "" {
				h.l2Alt = h.l2
			}
			h.freezer = newTokenSet(r.FreezerMarkers)
		}
		if h.l2 == "" {
			return nil, fmt.Errorf("heuristic %s has no target category", kind)
		}
		if h.tokens == nil {
			return nil, fmt.Errorf("heuristic %s has no tokens", kind)
		}
		s.battery = append(s.battery, h)
	}
	return s, nil
}

func (s *heuristicStage) Kind() StageKind { return StageHeuristics }

func (s *heuristicStage) Apply(in *Input) (Match, bool) {
	for _, h := range s.battery {
		if !h.tokens.hit(in.Text) {
			continue
		}
		if h.freezer.hit(in.Text) {
			return Match{L2Code: h.l2Alt, RuleID: "heuristic_" + h.kind + "_frozen"}, true
		}
		return Match{L2Code: h.l2, RuleID: "heuristic_" + h.kind}, true
	}
	return Match{}, false
}

// Structural override kinds, in the order they are tried.
const (
	OverrideTax      = "tax"
	OverrideDiscount = "discount"
	OverrideTip      = "tip"
	OverrideShipping = "shipping"
)

var overrideOrder = []string{OverrideTax, OverrideDiscount, OverrideTip, OverrideShipping}

type override struct {
	pattern *regexp.Regexp
	kind    string
	l2      string
}

type overrideStage struct {
	overrides []override
}

func newOverrideStage(cfg map[string]rules.OverrideRule) (*overrideStage, error) {
	for kind := range cfg {
		if _, ok := DefaultOverrides[kind]; !ok {
			return nil, fmt.Errorf("unknown override %q", kind)
		}
	}

	s := &overrideStage{}
	for _, kind := range overrideOrder {
		def := DefaultOverrides[kind]
		r := cfg[kind]
		l2 := r.MapToL2
		if l2 == "" {
			l2 = def.MapToL2
		}
		patterns := r.Patterns
		if len(patterns) == 0 {
			patterns = def.Patterns
		}
		re := common.CompileAlternation(patterns)
		if re == nil {
			return nil, fmt.Errorf("override %s has no patterns", kind)
		}
		s.overrides = append(s.overrides, override{pattern: re, kind: kind, l2: l2})
	}
	return s, nil
}

func (s *overrideStage) Kind() StageKind { return StageOverrides }

func (s *overrideStage) Apply(in *Input) (Match, bool) {
	for _, o := range s.overrides {
		if o.pattern.MatchString(in.Text) {
			tag := "override_" + o.kind
			return Match{L2Code: o.l2, RuleID: tag, Source: tag}, true
		}
	}
	return Match{}, false
}
