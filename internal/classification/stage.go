// Package classification assigns two-level categories to line items through an
// ordered sequence of rule-driven stages.
package classification

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// StageKind identifies one classification stage.
type StageKind string

// Stage kinds. The set is closed; anything else in a rule document is a
// configuration error.
const (
	StageSourceMap      StageKind = "source_map"
	StageVendorOverride StageKind = "vendor_override"
	StageKeywords       StageKind = "keywords"
	StageHeuristics     StageKind = "heuristics"
	StageOverrides      StageKind = "overrides"
	StageFallback       StageKind = "fallback"
)

// StageKinds lists every kind in default pipeline order.
var StageKinds = []StageKind{
	StageSourceMap, StageVendorOverride, StageKeywords, StageHeuristics, StageOverrides, StageFallback,
}

// ParseStageKind converts a rule-document stage name.
func ParseStageKind(s string) (StageKind, error) {
	k := StageKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range StageKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown classification stage %q", s)
}

// Input is the item view every stage matches against.
type Input struct {
	Hint model.CategoryHint
	// Text is the normalized item name.
	Text   string
	Name   string
	Vendor string
}

// Match is a fired stage's verdict.
type Match struct {
	L2Code string
	RuleID string
	// Source overrides the stage kind as the category source tag.
	Source string
}

// Stage is one step of the pipeline.
type Stage interface {
	Kind() StageKind
	Apply(in *Input) (Match, bool)
}
