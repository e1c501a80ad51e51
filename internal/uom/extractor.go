// Package uom derives raw size and unit-of-measure text for line items.
package uom

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
)

// Strategy is one way of finding size text.
type Strategy string

// Strategies in their default priority.
const (
	StrategyExplicitColumn Strategy = "explicit_column"
	StrategyProductName    Strategy = "product_name"
	StrategyAdjacentLine   Strategy = "adjacent_line"
	StrategyQtyUnit        Strategy = "qty_unit_pattern"
	StrategyNone           Strategy = ""
)

// DefaultPriority is used when the rule document lists none.
var DefaultPriority = []Strategy{StrategyExplicitColumn, StrategyProductName, StrategyAdjacentLine, StrategyQtyUnit}

const unitAlternation = `lbs?|fl\s*oz|oz|gal|qt|pt|kg|g|ml|l|ct|pc|pcs|pkg|pk|ea|each|dz|doz|units?`

var (
	defaultPackPattern = `(?i)\b(?P<count>\d+)\s*/\s*(?P<qty>\d+(?:\.\d+)?)\s*(?P<unit>` + unitAlternation + `)\b`
	defaultQtyPattern  = `(?i)\b(?P<qty>\d+(?:\.\d+)?)\s*(?P<unit>` + unitAlternation + `)\b`
)

// ParseStrategy converts a rule-document strategy name.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StrategyExplicitColumn, StrategyProductName, StrategyAdjacentLine, StrategyQtyUnit:
		return st, nil
	default:
		return StrategyNone, fmt.Errorf("unknown uom strategy %q", s)
	}
}

// Input is everything the extractor may look at for one item.
type Input struct {
	Name          string
	SizeColumn    string
	UnitColumn    string
	SourceLines   []string
	HasSizeColumn bool
}

// Result is the extracted text. Empty fields mean nothing was found.
type Result struct {
	RawUOMText  string
	RawSizeText string
	Strategy    Strategy
}

// Extractor applies strategies in priority order.
type Extractor struct {
	priority    []Strategy
	productName []*regexp.Regexp
	adjacent    []*regexp.Regexp
	qtyUnit     []*regexp.Regexp
}

// New compiles cfg. Missing pattern lists fall back to built-in patterns.
func New(cfg rules.UoMConfig) (*Extractor, error) {
	e := &Extractor{}

	if len(cfg.Priority) == 0 {
		e.priority = append(e.priority, DefaultPriority...)
	}
	for _, name := range cfg.Priority {
		st, err := ParseStrategy(name)
		if err != nil {
			return nil, common.NewConfigError(rules.UoMDocument, err)
		}
		e.priority = append(e.priority, st)
	}

	var err error
	if e.productName, err = compileAll(cfg.ProductNamePatterns, defaultPackPattern, defaultQtyPattern); err != nil {
		return nil, err
	}
	if e.adjacent, err = compileAll(cfg.AdjacentLinePatterns, defaultQtyPattern); err != nil {
		return nil, err
	}
	if e.qtyUnit, err = compileAll(cfg.QtyUnitPatterns, defaultQtyPattern); err != nil {
		return nil, err
	}
	return e, nil
}

func compileAll(patterns []string, defaults ...string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		patterns = defaults
	}
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, common.NewConfigError(rules.UoMDocument, fmt.Errorf("invalid pattern %q: %w", p, err))
		}
		out = append(out, re)
	}
	return out, nil
}

// Extract runs the strategies in priority order; the first success wins.
func (e *Extractor) Extract(in Input) Result {
	for _, st := range e.priority {
		if r, ok := e.try(st, in); ok {
			r.Strategy = st
			return r
		}
	}
	return Result{}
}

func (e *Extractor) try(st Strategy, in Input) (Result, bool) {
	switch st {
	case StrategyExplicitColumn:
		if !in.HasSizeColumn {
			return Result{}, false
		}
		size := strings.TrimSpace(in.SizeColumn)
		unit := strings.TrimSpace(in.UnitColumn)
		if size == "" && unit == "" {
			return Result{}, false
		}
		if unit == "" {
			if r, ok := matchLast(e.productName, size); ok {
				unit = r.RawUOMText
			}
		}
		return Result{RawSizeText: size, RawUOMText: unit}, true
	case StrategyProductName:
		return matchLast(e.productName, in.Name)
	case StrategyAdjacentLine:
		if len(in.SourceLines) < 2 {
			return Result{}, false
		}
		for _, line := range in.SourceLines[1:] {
			if r, ok := match(e.adjacent, line); ok {
				return r, true
			}
		}
		return Result{}, false
	case StrategyQtyUnit:
		if len(in.SourceLines) == 0 {
			return Result{}, false
		}
		return match(e.qtyUnit, in.SourceLines[0])
	case StrategyNone:
	}
	return Result{}, false
}

func match(patterns []*regexp.Regexp, text string) (Result, bool) {
	return find(patterns, text, func(re *regexp.Regexp) []string {
		return re.FindStringSubmatch(text)
	})
}

// matchLast prefers the trailing hit of each pattern, since sizes follow the
// product in item names ("3 PK LIMES 2 LB").
func matchLast(patterns []*regexp.Regexp, text string) (Result, bool) {
	return find(patterns, text, func(re *regexp.Regexp) []string {
		all := re.FindAllStringSubmatch(text, -1)
		if len(all) == 0 {
			return nil
		}
		return all[len(all)-1]
	})
}

func find(patterns []*regexp.Regexp, text string, submatch func(*regexp.Regexp) []string) (Result, bool) {
	if strings.TrimSpace(text) == "" {
		return Result{}, false
	}
	for _, re := range patterns {
		m := submatch(re)
		if m == nil {
			continue
		}
		r := Result{RawSizeText: strings.TrimSpace(m[0])}
		if i := re.SubexpIndex("unit"); i > 0 {
			r.RawUOMText = strings.TrimSpace(m[i])
		}
		if r.RawSizeText != "" {
			return r, true
		}
	}
	return Result{}, false
}

// InputFor builds the extractor input for a line item.
func InputFor(li *model.LineItem) Input {
	return Input{
		Name:          li.Name,
		SizeColumn:    li.SizeColumn,
		UnitColumn:    li.UnitColumn,
		SourceLines:   li.SourceLines,
		HasSizeColumn: li.HasSizeColumn,
	}
}

// Apply fills the raw size and unit text of every item in place.
func (e *Extractor) Apply(items []model.LineItem) {
	for i := range items {
		r := e.Extract(InputFor(&items[i]))
		items[i].RawSizeText = r.RawSizeText
		items[i].RawUOMText = r.RawUOMText
	}
}
