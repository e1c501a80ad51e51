// Package layout selects the extraction layout for a document from its origin hints.
package layout

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

// Source supplies the ordered layouts declared for a vendor.
type Source interface {
	Layouts(vendor string) ([]*model.Layout, error)
}

// Hints are the predicate-relevant attributes of a document.
type Hints struct {
	VendorCode   string
	FileExt      string
	TextSample   string
	HeaderTokens []string
}

// Resolver picks the first matching layout in declared order.
type Resolver struct {
	source Source
}

// NewResolver creates a resolver over source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the first layout whose declared predicates all hold, or nil
// when none does. Errors are configuration errors from loading layouts.
func (r *Resolver) Resolve(h Hints) (*model.Layout, error) {
	if strings.TrimSpace(h.VendorCode) == "" {
		return nil, nil //nolint:nilnil // no vendor means no candidate layouts
	}

	layouts, err := r.source.Layouts(h.VendorCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load layouts for %s: %w", h.VendorCode, err)
	}

	headers := normalizeHeaders(h.HeaderTokens)
	text := strings.ToLower(h.TextSample)

	for _, l := range layouts {
		if Matches(l, h, headers, text) {
			return l, nil
		}
	}
	return nil, nil //nolint:nilnil // no match is a valid result
}

// Matches reports whether every predicate category declared by l is satisfied.
// headers and text are the normalized header tokens and lower-cased text sample.
func Matches(l *model.Layout, h Hints, headers []string, text string) bool {
	a := l.AppliesTo
	if a.IsEmpty() {
		return false
	}

	if len(a.VendorCodes) > 0 && !containsFold(a.VendorCodes, h.VendorCode) {
		return false
	}

	if len(a.FileExts) > 0 {
		ext := normalizeExt(h.FileExt)
		if ext == "" {
			return false
		}
		found := false
		for _, allowed := range a.FileExts {
			if normalizeExt(allowed) == ext {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(a.HeaderContains) > 0 {
		if len(headers) == 0 {
			return false
		}
		for _, token := range a.HeaderContains {
			if !headerPresent(NormalizeHeader(token), headers) {
				return false
			}
		}
	}

	if len(a.TextContains) > 0 {
		if text == "" {
			return false
		}
		for _, fragment := range a.TextContains {
			if !textPresent(fragment, text) {
				return false
			}
		}
	}

	return true
}

// textPresent checks fragment as a case-insensitive substring, then as a
// case-insensitive regular expression. Fragments that do not compile only
// match as substrings.
func textPresent(fragment, text string) bool {
	if strings.Contains(text, strings.ToLower(fragment)) {
		return true
	}
	re, err := common.CompileFold(fragment)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

// NormalizeHeader lower-cases a header and collapses internal whitespace.
func NormalizeHeader(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// StripPunct removes everything but letters and digits.
func StripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func normalizeHeaders(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if n := NormalizeHeader(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func headerPresent(token string, headers []string) bool {
	if token == "" {
		return true
	}
	stripped := StripPunct(token)
	for _, h := range headers {
		if h == token || strings.Contains(h, token) {
			return true
		}
		if stripped != "" && StripPunct(h) == stripped {
			return true
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	return strings.TrimPrefix(ext, ".")
}
