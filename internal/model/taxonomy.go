package model

import (
	"fmt"
	"sort"
)

// Category is one taxonomy entry.
type Category struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Taxonomy is the closed two-level category set. Every level-2 code maps to
// exactly one level-1 code.
type Taxonomy struct {
	l1     map[string]Category
	l2     map[string]Category
	l2ToL1 map[string]string
}

// NewTaxonomy builds a taxonomy and verifies the level-2 to level-1 mapping is total.
func NewTaxonomy(l1, l2 []Category, l2ToL1 map[string]string) (*Taxonomy, error) {
	t := &Taxonomy{
		l1:     make(map[string]Category, len(l1)),
		l2:     make(map[string]Category, len(l2)),
		l2ToL1: make(map[string]string, len(l2ToL1)),
	}

	for _, c := range l1 {
		if _, dup := t.l1[c.ID]; dup {
			return nil, fmt.Errorf("duplicate level-1 category %q", c.ID)
		}
		t.l1[c.ID] = c
	}
	for _, c := range l2 {
		if _, dup := t.l2[c.ID]; dup {
			return nil, fmt.Errorf("duplicate level-2 category %q", c.ID)
		}
		t.l2[c.ID] = c
	}

	for l2Code, l1Code := range l2ToL1 {
		if _, ok := t.l2[l2Code]; !ok {
			return nil, fmt.Errorf("level-2 to level-1 map references unknown level-2 category %q", l2Code)
		}
		if _, ok := t.l1[l1Code]; !ok {
			return nil, fmt.Errorf("level-2 category %q maps to unknown level-1 category %q", l2Code, l1Code)
		}
		t.l2ToL1[l2Code] = l1Code
	}

	missing := make([]string, 0)
	for code := range t.l2 {
		if _, ok := t.l2ToL1[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("level-2 categories without a level-1 mapping: %v", missing)
	}

	return t, nil
}

// HasL2 reports whether code is a known level-2 category.
func (t *Taxonomy) HasL2(code string) bool {
	_, ok := t.l2[code]
	return ok
}

// L2 returns the level-2 category for code.
func (t *Taxonomy) L2(code string) (Category, bool) {
	c, ok := t.l2[code]
	return c, ok
}

// Level1For returns the level-1 category a level-2 code rolls up to.
func (t *Taxonomy) Level1For(l2Code string) (Category, bool) {
	l1Code, ok := t.l2ToL1[l2Code]
	if !ok {
		return Category{}, false
	}
	c, ok := t.l1[l1Code]
	return c, ok
}

// L2Codes returns all level-2 codes sorted.
func (t *Taxonomy) L2Codes() []string {
	codes := make([]string, 0, len(t.l2))
	for code := range t.l2 {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
