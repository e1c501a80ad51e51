package colmap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/layout"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FieldMap maps a canonical field to the normalized header name it reads from.
// Header names rather than positions keep a mapping valid for any column order.
type FieldMap map[model.CanonicalField]string

// Index resolves the field map against a concrete header row.
func (fm FieldMap) Index(header []string) map[model.CanonicalField]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		n := layout.NormalizeHeader(h)
		if _, seen := positions[n]; !seen {
			positions[n] = i
		}
	}

	idx := make(map[model.CanonicalField]int, len(fm))
	for field, name := range fm {
		if pos, ok := positions[name]; ok {
			idx[field] = pos
		}
	}
	return idx
}

type matchPass int

const (
	passEqual matchPass = iota
	passRegex
	passStripped
	passFuzzy
)

var passes = []matchPass{passEqual, passRegex, passStripped, passFuzzy}

// BuildFieldMap matches header text to the layout's canonical fields. All
// approximate matching of header spellings happens here.
func BuildFieldMap(l *model.Layout, header []string) FieldMap {
	headers := NormalizedHeaderSet(header)
	claimed := make(map[string]bool, len(headers))
	fm := make(FieldMap, len(l.ColumnMappings))
	fields := l.MappedFields()

	// Strong passes resolve every field before any fuzzy guess can claim a header.
	for _, pass := range passes {
		for _, field := range fields {
			if _, done := fm[field]; done {
				continue
			}
			if name, ok := matchField(pass, l.ColumnMappings[field], headers, claimed); ok {
				fm[field] = name
				claimed[name] = true
			}
		}
	}
	return fm
}

func matchField(pass matchPass, aliases model.Aliases, headers []string, claimed map[string]bool) (string, bool) {
	available := make([]string, 0, len(headers))
	for _, h := range headers {
		if !claimed[h] {
			available = append(available, h)
		}
	}
	if len(available) == 0 {
		return "", false
	}

	for _, alias := range aliases {
		norm := layout.NormalizeHeader(alias)
		if norm == "" {
			continue
		}
		switch pass {
		case passEqual:
			for _, h := range available {
				if h == norm {
					return h, true
				}
			}
		case passRegex:
			if !common.LooksLikeRegex(alias) {
				continue
			}
			re, err := regexp.Compile("(?i)" + alias)
			if err != nil {
				continue
			}
			for _, h := range available {
				if re.MatchString(h) {
					return h, true
				}
			}
		case passStripped:
			stripped := layout.StripPunct(norm)
			if stripped == "" {
				continue
			}
			for _, h := range available {
				if layout.StripPunct(h) == stripped {
					return h, true
				}
			}
		case passFuzzy:
			if common.LooksLikeRegex(alias) || len(norm) < 3 {
				continue
			}
			if h, ok := fuzzyBest(norm, available); ok {
				return h, true
			}
		}
	}
	return "", false
}

func fuzzyBest(alias string, headers []string) (string, bool) {
	ranks := fuzzy.RankFindNormalizedFold(alias, headers)
	if len(ranks) == 0 {
		return "", false
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].OriginalIndex < ranks[j].OriginalIndex
	})
	return ranks[0].Target, true
}

// CompileSkipMatcher compiles the layout's skip patterns; nil means skip nothing.
func CompileSkipMatcher(l *model.Layout) *regexp.Regexp {
	return common.CompileAlternation(l.SkipPatterns)
}

// NormalizedHeaderSet returns the distinct normalized headers in sorted order.
func NormalizedHeaderSet(header []string) []string {
	seen := make(map[string]bool, len(header))
	out := make([]string, 0, len(header))
	for _, h := range header {
		n := layout.NormalizeHeader(h)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// LayoutSignature fingerprints the layout fields that affect a mapping, so an
// edited layout never reuses a stale entry.
func LayoutSignature(l *model.Layout) string {
	mappings := make(map[string][]string, len(l.ColumnMappings))
	for field, aliases := range l.ColumnMappings {
		mappings[string(field)] = aliases
	}
	payload, _ := json.Marshal(struct {
		Mappings map[string][]string `json:"column_mappings"`
		Name     string              `json:"name"`
		Skip     []string            `json:"skip_patterns"`
	}{
		Name:     l.Name,
		Mappings: mappings,
		Skip:     l.SkipPatterns,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

// Key builds the cache key for a vendor, layout and header row.
func Key(vendor string, l *model.Layout, header []string) string {
	return strings.ToUpper(strings.TrimSpace(vendor)) + "|" + LayoutSignature(l) + "|" +
		strings.Join(NormalizedHeaderSet(header), "\x1f")
}
