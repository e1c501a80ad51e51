package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CanonicalField names a line-item field a layout column can map onto.
type CanonicalField string

// Canonical fields.
const (
	FieldProductName  CanonicalField = "product_name"
	FieldQuantity     CanonicalField = "quantity"
	FieldUnitPrice    CanonicalField = "unit_price"
	FieldTotalPrice   CanonicalField = "total_price"
	FieldItemNumber   CanonicalField = "item_number"
	FieldUPC          CanonicalField = "upc"
	FieldSize         CanonicalField = "size"
	FieldUOM          CanonicalField = "uom"
	FieldCategoryCode CanonicalField = "category_code"
	FieldDepartment   CanonicalField = "department"
	FieldAisle        CanonicalField = "aisle"
	FieldCategoryPath CanonicalField = "category_path"
)

// CanonicalFields lists every known field in a stable order.
var CanonicalFields = []CanonicalField{
	FieldProductName, FieldQuantity, FieldUnitPrice, FieldTotalPrice,
	FieldItemNumber, FieldUPC, FieldSize, FieldUOM,
	FieldCategoryCode, FieldDepartment, FieldAisle, FieldCategoryPath,
}

// ParseCanonicalField converts a rule-document field name.
func ParseCanonicalField(s string) (CanonicalField, error) {
	f := CanonicalField(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range CanonicalFields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown canonical field %q", s)
}

// Aliases is a list of header spellings for one field. YAML accepts either a
// scalar or a sequence.
type Aliases []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Aliases) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*a = Aliases{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: column mapping must be a string or list of strings", value.Line)
	}
}

// AppliesTo is the predicate set gating a layout.
type AppliesTo struct {
	VendorCodes    []string `yaml:"vendor_code"`
	FileExts       []string `yaml:"file_ext"`
	HeaderContains []string `yaml:"header_contains"`
	TextContains   []string `yaml:"text_contains"`
}

// IsEmpty reports whether no predicate category is declared.
func (a AppliesTo) IsEmpty() bool {
	return len(a.VendorCodes) == 0 && len(a.FileExts) == 0 &&
		len(a.HeaderContains) == 0 && len(a.TextContains) == 0
}

// Normalization holds per-layout value cleanup flags.
type Normalization struct {
	TrimWhitespace *bool `yaml:"trim_whitespace"`
	PreserveCase   *bool `yaml:"preserve_case"`
	CleanCitations bool  `yaml:"clean_citations"`
}

// Trim reports whether values are whitespace-trimmed; defaults to true.
func (n Normalization) Trim() bool {
	return n.TrimWhitespace == nil || *n.TrimWhitespace
}

// KeepCase reports whether values keep their case; defaults to true.
func (n Normalization) KeepCase() bool {
	return n.PreserveCase == nil || *n.PreserveCase
}

// Line pattern kinds.
const (
	LinePatternItem = "item"
	LinePatternSkip = "skip"
)

// LinePattern is a regex applied to individual text lines.
type LinePattern struct {
	Compiled *regexp.Regexp `yaml:"-"`
	Kind     string         `yaml:"type"`
	Regex    string         `yaml:"regex"`
}

// Layout is one named, predicate-gated extraction recipe.
type Layout struct {
	ColumnMappings map[CanonicalField]Aliases `yaml:"column_mappings"`
	Name           string                     `yaml:"name"`
	ParsedBy       string                     `yaml:"parsed_by"`
	HintSource     string                     `yaml:"hint_source"`
	AppliesTo      AppliesTo                  `yaml:"applies_to"`
	SkipPatterns   []string                   `yaml:"skip_patterns"`
	LinePatterns   []LinePattern              `yaml:"line_patterns"`
	Normalization  Normalization              `yaml:"normalization"`
}

// IsTabular reports whether the layout maps header columns.
func (l *Layout) IsTabular() bool {
	return len(l.ColumnMappings) > 0
}

// IsText reports whether the layout parses raw text lines.
func (l *Layout) IsText() bool {
	return len(l.LinePatterns) > 0
}

// Provenance returns the parsed_by tag for items produced by this layout.
func (l *Layout) Provenance() string {
	if l.ParsedBy != "" {
		return l.ParsedBy
	}
	return "layout_" + snake(l.Name)
}

// MappedFields returns the layout's mapped fields in canonical order.
func (l *Layout) MappedFields() []CanonicalField {
	fields := make([]CanonicalField, 0, len(l.ColumnMappings))
	for f := range l.ColumnMappings {
		fields = append(fields, f)
	}
	order := make(map[CanonicalField]int, len(CanonicalFields))
	for i, f := range CanonicalFields {
		order[f] = i
	}
	sort.Slice(fields, func(i, j int) bool { return order[fields[i]] < order[fields[j]] })
	return fields
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

func snake(s string) string {
	return strings.Trim(nonWord.ReplaceAllString(strings.ToLower(s), "_"), "_")
}
