package common

import (
	"fmt"
	"regexp"
	"strings"
)

// CompileFold compiles pattern case-insensitively unless it already carries flags.
func CompileFold(pattern string) (*regexp.Regexp, error) {
	if !strings.HasPrefix(pattern, "(?") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}
	return re, nil
}

// LooksLikeRegex reports whether s contains regex metacharacters.
func LooksLikeRegex(s string) bool {
	return strings.ContainsAny(s, `^$*+?()[]{}|\`)
}

// CompileAlternation joins patterns into one case-insensitive alternation.
// Patterns that do not compile on their own are matched literally.
// It returns nil when patterns is empty.
func CompileAlternation(patterns []string) *regexp.Regexp {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			p = regexp.QuoteMeta(p)
		}
		parts = append(parts, "(?:"+p+")")
	}
	if len(parts) == 0 {
		return nil
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}
