package source

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/engine"
	"github.com/Veraticus/the-receipts-must-flow/internal/rules"
)

// Detection is a detected vendor.
type Detection struct {
	Code       string
	SourceType string
}

type vendorMatcher struct {
	detection Detection
	filename  []*regexp.Regexp
	text      []*regexp.Regexp
}

// Detector guesses a document's vendor from its file name, then its text.
// Vendors are tried in declared order.
type Detector struct {
	vendors []vendorMatcher
}

// NewDetector compiles the vendor detection table.
func NewDetector(cfg rules.VendorDetectionConfig) (*Detector, error) {
	d := &Detector{vendors: make([]vendorMatcher, 0, len(cfg.Vendors))}
	for _, v := range cfg.Vendors {
		m := vendorMatcher{detection: Detection{Code: v.Code, SourceType: v.SourceType}}
		for _, p := range v.FilenamePatterns {
			re, err := common.CompileFold(p)
			if err != nil {
				return nil, common.NewConfigError(rules.VendorDetectionDocument, fmt.Errorf("vendor %s: %w", v.Code, err))
			}
			m.filename = append(m.filename, re)
		}
		for _, p := range v.TextPatterns {
			re, err := common.CompileFold(p)
			if err != nil {
				return nil, common.NewConfigError(rules.VendorDetectionDocument, fmt.Errorf("vendor %s: %w", v.Code, err))
			}
			m.text = append(m.text, re)
		}
		d.vendors = append(d.vendors, m)
	}
	return d, nil
}

// Detect returns the first vendor whose filename patterns match name, else the
// first whose text patterns match text.
func (d *Detector) Detect(name, text string) (Detection, bool) {
	name = strings.ToLower(name)
	for _, v := range d.vendors {
		if anyMatch(v.filename, name) {
			return v.detection, true
		}
	}
	if text == "" {
		return Detection{}, false
	}
	for _, v := range d.vendors {
		if anyMatch(v.text, text) {
			return v.detection, true
		}
	}
	return Detection{}, false
}

// Apply fills doc's vendor code and source type when they are empty.
func (d *Detector) Apply(doc *engine.Document) bool {
	if doc.VendorCode != "" {
		return true
	}
	det, ok := d.Detect(doc.SourceFile, doc.TextSample())
	if !ok {
		return false
	}
	doc.VendorCode = det.Code
	if doc.SourceType == "" {
		doc.SourceType = det.SourceType
	}
	return true
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
