package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"gopkg.in/yaml.v3"
)

// Stable document names.
const (
	SharedDocument           = "shared.yaml"
	VendorDetectionDocument  = "10_vendor_detection.yaml"
	UoMDocument              = "30_uom_extraction.yaml"
	CategoriesL1Document     = "55_categories_l1.yaml"
	CategoriesL2Document     = "56_categories_l2.yaml"
	CategoryMapsDocument     = "57_category_maps.yaml"
	CategoryKeywordsDocument = "59_category_keywords.yaml"
)

// Meta is the optional metadata block every document may carry.
type Meta struct {
	Version     any    `yaml:"version"`
	Description string `yaml:"description"`
}

// SharedConfig holds cross-cutting flags and the vendor to layout document index.
type SharedConfig struct {
	LayoutFiles      map[string][]string `yaml:"layout_files"`
	TaxExemptVendors []string            `yaml:"tax_exempt_vendors"`
	Flags            SharedFlags         `yaml:"flags"`
}

// SharedFlags are feature switches.
type SharedFlags struct {
	EnableLegacyParsers *bool `yaml:"enable_legacy_parsers"`
}

// LegacyEnabled reports whether the legacy fallback may run; defaults to true.
func (c SharedConfig) LegacyEnabled() bool {
	return c.Flags.EnableLegacyParsers == nil || *c.Flags.EnableLegacyParsers
}

// IsTaxExempt reports whether vendor is listed as tax exempt.
func (c SharedConfig) IsTaxExempt(vendor string) bool {
	for _, v := range c.TaxExemptVendors {
		if strings.EqualFold(v, vendor) {
			return true
		}
	}
	return false
}

// LayoutDocuments returns the ordered layout documents for vendor.
func (c SharedConfig) LayoutDocuments(vendor string) []string {
	if docs, ok := c.LayoutFiles[vendor]; ok {
		return docs
	}
	for code, docs := range c.LayoutFiles {
		if strings.EqualFold(code, vendor) {
			return docs
		}
	}
	return nil
}

// VendorRule identifies a vendor from file names or document text.
type VendorRule struct {
	Code             string   `yaml:"code"`
	SourceType       string   `yaml:"source_type"`
	FilenamePatterns []string `yaml:"filename_patterns"`
	TextPatterns     []string `yaml:"text_patterns"`
}

// VendorDetectionConfig is the ordered vendor detection table.
type VendorDetectionConfig struct {
	Vendors []VendorRule `yaml:"vendors"`
}

// UoMConfig configures unit-of-measure extraction.
type UoMConfig struct {
	Priority             []string `yaml:"priority"`
	ProductNamePatterns  []string `yaml:"product_name_patterns"`
	AdjacentLinePatterns []string `yaml:"adjacent_line_patterns"`
	QtyUnitPatterns      []string `yaml:"qty_unit_patterns"`
}

// VendorOverrideRule maps exact item texts for one vendor to a level-2 code.
type VendorOverrideRule struct {
	ID      string   `yaml:"id"`
	MapToL2 string   `yaml:"map_to_l2"`
	Exact   []string `yaml:"exact"`
	Aliases []string `yaml:"aliases"`
}

// VendorOverrideConfig holds vendor override rules keyed by vendor code.
type VendorOverrideConfig map[string][]VendorOverrideRule

// SourceMapRule matches upstream category metadata.
type SourceMapRule struct {
	ID           string   `yaml:"id"`
	MapToL2      string   `yaml:"map_to_l2"`
	TitleRegex   string   `yaml:"title_regex"`
	Department   []string `yaml:"department"`
	Aisle        []string `yaml:"aisle"`
	CategoryPath []string `yaml:"category_path"`
	TextContains []string `yaml:"text_contains"`
	Default      bool     `yaml:"default"`
}

// SourceMapConfig holds source map rules keyed by hint source.
type SourceMapConfig map[string][]SourceMapRule

// KeywordRule is one include/exclude pattern rule.
type KeywordRule struct {
	ID           string `yaml:"id"`
	IncludeRegex string `yaml:"include_regex"`
	ExcludeRegex string `yaml:"exclude_regex"`
	MapToL2      string `yaml:"map_to_l2"`
	Priority     int    `yaml:"priority"`
}

// HeuristicRule configures one detector of the heuristic battery.
type HeuristicRule struct {
	MapToL2        string   `yaml:"map_to_l2"`
	MapToL2Fresh   string   `yaml:"map_to_l2_fresh"`
	MapToL2Frozen  string   `yaml:"map_to_l2_frozen"`
	Tokens         []string `yaml:"tokens"`
	FreezerMarkers []string `yaml:"freezer_markers"`
}

// OverrideRule configures one structural override.
type OverrideRule struct {
	MapToL2  string   `yaml:"map_to_l2"`
	Patterns []string `yaml:"patterns"`
}

// KeywordConfig is the classification pipeline document.
type KeywordConfig struct {
	DefaultConfidence map[string]float64       `yaml:"default_confidence"`
	Heuristics        map[string]HeuristicRule `yaml:"heuristics"`
	Overrides         map[string]OverrideRule  `yaml:"overrides"`
	FallbackL2        string                   `yaml:"fallback_l2"`
	PipelineOrder     []string                 `yaml:"pipeline_order"`
	Rules             []KeywordRule            `yaml:"rules"`
	ReviewThreshold   float64                  `yaml:"review_threshold"`
}

type categoriesL1 struct {
	L2ToL1 map[string]string `yaml:"l2_to_l1_map"`
	L1     []model.Category  `yaml:"l1_categories"`
}

type categoriesL2 struct {
	VendorOverrides VendorOverrideConfig `yaml:"vendor_overrides"`
	L2              []model.Category     `yaml:"l2_categories"`
}

// Shared returns the shared flags document.
func (s *Store) Shared() (SharedConfig, error) {
	return decodeCached(s, SharedDocument, KindShared, func(doc *Document) (SharedConfig, error) {
		var wrapper struct {
			Meta   Meta         `yaml:"meta"`
			Shared SharedConfig `yaml:"shared"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return SharedConfig{}, err
		}
		return wrapper.Shared, nil
	})
}

// VendorDetection returns the vendor detection table, or an empty table when
// the document is absent.
func (s *Store) VendorDetection() (VendorDetectionConfig, error) {
	if !s.Exists(VendorDetectionDocument) {
		return VendorDetectionConfig{}, nil
	}
	return decodeCached(s, VendorDetectionDocument, KindVendorDetection, func(doc *Document) (VendorDetectionConfig, error) {
		var wrapper struct {
			Meta            Meta                  `yaml:"meta"`
			VendorDetection VendorDetectionConfig `yaml:"vendor_detection"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return VendorDetectionConfig{}, err
		}
		for _, v := range wrapper.VendorDetection.Vendors {
			for _, p := range append(append([]string{}, v.FilenamePatterns...), v.TextPatterns...) {
				if _, err := common.CompileFold(p); err != nil {
					return VendorDetectionConfig{}, fmt.Errorf("vendor %s: %w", v.Code, err)
				}
			}
		}
		return wrapper.VendorDetection, nil
	})
}

// LayoutDocument returns the ordered layouts declared in one document.
func (s *Store) LayoutDocument(name string) ([]model.Layout, error) {
	return decodeCached(s, name, KindLayouts, func(doc *Document) ([]model.Layout, error) {
		var wrapper struct {
			Meta    Meta           `yaml:"meta"`
			Layouts []model.Layout `yaml:"layouts"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return nil, err
		}
		for i := range wrapper.Layouts {
			if err := prepareLayout(&wrapper.Layouts[i]); err != nil {
				return nil, fmt.Errorf("layout %q: %w", wrapper.Layouts[i].Name, err)
			}
			if wrapper.Layouts[i].AppliesTo.IsEmpty() {
				common.LogWarn("Layout declares no applies_to predicates and will never match", common.Fields{
					"document": name,
					"layout":   wrapper.Layouts[i].Name,
				})
			}
		}
		return wrapper.Layouts, nil
	})
}

// Layouts returns the ordered layout list for vendor across its layout documents.
// The returned layouts are shared and must not be modified.
func (s *Store) Layouts(vendor string) ([]*model.Layout, error) {
	shared, err := s.Shared()
	if err != nil {
		return nil, err
	}

	var out []*model.Layout
	for _, name := range shared.LayoutDocuments(vendor) {
		layouts, err := s.LayoutDocument(name)
		if err != nil {
			return nil, err
		}
		for i := range layouts {
			out = append(out, &layouts[i])
		}
	}
	return out, nil
}

// UoM returns the unit-of-measure configuration, or an empty configuration
// when the document is absent.
func (s *Store) UoM() (UoMConfig, error) {
	if !s.Exists(UoMDocument) {
		return UoMConfig{}, nil
	}
	return decodeCached(s, UoMDocument, KindUoM, func(doc *Document) (UoMConfig, error) {
		var wrapper struct {
			Meta Meta      `yaml:"meta"`
			UoM  UoMConfig `yaml:"uom_extraction"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return UoMConfig{}, err
		}
		return wrapper.UoM, nil
	})
}

// Taxonomy builds the two-level taxonomy from the level-1 and level-2 documents.
func (s *Store) Taxonomy() (*model.Taxonomy, error) {
	l2, err := s.categoriesL2()
	if err != nil {
		return nil, err
	}
	l1, err := decodeCached(s, CategoriesL1Document, KindCategoriesL1, func(doc *Document) (categoriesL1, error) {
		var wrapper struct {
			Meta Meta         `yaml:"meta"`
			L1   categoriesL1 `yaml:"categories_l1"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return categoriesL1{}, err
		}
		return wrapper.L1, nil
	})
	if err != nil {
		return nil, err
	}

	taxonomy, err := model.NewTaxonomy(l1.L1, l2.L2, l1.L2ToL1)
	if err != nil {
		return nil, common.NewConfigError(CategoriesL1Document, err)
	}
	return taxonomy, nil
}

// VendorOverrides returns the vendor override rules from the level-2 document.
func (s *Store) VendorOverrides() (VendorOverrideConfig, error) {
	l2, err := s.categoriesL2()
	if err != nil {
		return nil, err
	}
	return l2.VendorOverrides, nil
}

func (s *Store) categoriesL2() (categoriesL2, error) {
	return decodeCached(s, CategoriesL2Document, KindCategoriesL2, func(doc *Document) (categoriesL2, error) {
		var wrapper struct {
			Meta Meta         `yaml:"meta"`
			L2   categoriesL2 `yaml:"categories_l2"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return categoriesL2{}, err
		}
		return wrapper.L2, nil
	})
}

// SourceMaps returns the source-specific category maps, or none when the
// document is absent.
func (s *Store) SourceMaps() (SourceMapConfig, error) {
	if !s.Exists(CategoryMapsDocument) {
		return SourceMapConfig{}, nil
	}
	return decodeCached(s, CategoryMapsDocument, KindCategoryMaps, func(doc *Document) (SourceMapConfig, error) {
		var wrapper struct {
			Meta Meta            `yaml:"meta"`
			Maps SourceMapConfig `yaml:"category_maps"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return nil, err
		}
		return wrapper.Maps, nil
	})
}

// Keywords returns the classification pipeline configuration.
func (s *Store) Keywords() (KeywordConfig, error) {
	return decodeCached(s, CategoryKeywordsDocument, KindCategoryKeywords, func(doc *Document) (KeywordConfig, error) {
		var wrapper struct {
			Meta     Meta          `yaml:"meta"`
			Keywords KeywordConfig `yaml:"category_keywords"`
		}
		if err := decodeStrict(doc, &wrapper); err != nil {
			return KeywordConfig{}, err
		}
		return wrapper.Keywords, nil
	})
}

// ValidateAll loads every document the engine references and returns the
// first configuration error.
func (s *Store) ValidateAll() error {
	shared, err := s.Shared()
	if err != nil {
		return err
	}
	for vendor := range shared.LayoutFiles {
		if _, err := s.Layouts(vendor); err != nil {
			return err
		}
	}
	if _, err := s.VendorDetection(); err != nil {
		return err
	}
	if _, err := s.UoM(); err != nil {
		return err
	}
	if _, err := s.Taxonomy(); err != nil {
		return err
	}
	if _, err := s.SourceMaps(); err != nil {
		return err
	}
	if _, err := s.Keywords(); err != nil {
		return err
	}
	return nil
}

func decodeStrict(doc *Document, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(doc.raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("document is empty")
		}
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

// prepareLayout validates a decoded layout and compiles its line patterns.
func prepareLayout(l *model.Layout) error {
	for field := range l.ColumnMappings {
		if _, err := model.ParseCanonicalField(string(field)); err != nil {
			return err
		}
	}
	if l.IsTabular() {
		if _, ok := l.ColumnMappings[model.FieldProductName]; !ok {
			return errors.New("column_mappings must map product_name")
		}
	}

	hasItemPattern := false
	for i := range l.LinePatterns {
		lp := &l.LinePatterns[i]
		re, err := regexp.Compile(lp.Regex)
		if err != nil {
			return fmt.Errorf("line pattern %d: %w", i, err)
		}
		if lp.Kind == model.LinePatternItem {
			hasItemPattern = true
			if re.SubexpIndex(string(model.FieldProductName)) < 0 {
				return fmt.Errorf("line pattern %d: item patterns need a (?P<product_name>...) group", i)
			}
		}
		lp.Compiled = re
	}
	if len(l.LinePatterns) > 0 && !hasItemPattern {
		return errors.New("line_patterns declare no item pattern")
	}
	if !l.IsTabular() && !l.IsText() {
		return errors.New("layout declares neither column_mappings nor line_patterns")
	}
	return nil
}
