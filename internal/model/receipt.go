package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// Provenance sentinels written to ParsedBy when no modern layout produced the items.
const (
	ParsedByLegacyExcel = "legacy_excel_fallback"
	ParsedByLegacyText  = "legacy_text_fallback"
	ParsedByNone        = "none"
)

// IsLegacy reports whether parsedBy identifies a legacy processor.
func IsLegacy(parsedBy string) bool {
	return strings.HasPrefix(parsedBy, "legacy_")
}

// CategoryHint carries structured category metadata supplied by an upstream source,
// such as a marketplace department or an already assigned taxonomy code.
type CategoryHint struct {
	Source       string
	Code         string
	Department   string
	Aisle        string
	CategoryPath string
}

// IsEmpty reports whether the hint carries any usable metadata.
func (h CategoryHint) IsEmpty() bool {
	return h.Code == "" && h.Department == "" && h.Aisle == "" && h.CategoryPath == ""
}

// LineItem is one extracted purchase line.
type LineItem struct {
	Name        string
	ItemNumber  string
	UPC         string
	ParsedBy    string
	RawUOMText  string
	RawSizeText string

	// Size and unit column values when the layout declares them.
	SizeColumn    string
	UnitColumn    string
	HasSizeColumn bool

	// SourceLines holds the text the item was read from; the first entry is the
	// item line itself, later entries are adjoining lines attached to it.
	SourceLines []string

	Hint CategoryHint

	// Classification results.
	L2Code              string
	L2Name              string
	L1Code              string
	L1Name              string
	CategorySource      string
	RuleID              string
	Quantity            float64
	UnitPrice           float64
	TotalPrice          float64
	Confidence          float64
	NeedsCategoryReview bool
}

// FullText returns the item line text, falling back to the name.
func (li *LineItem) FullText() string {
	if len(li.SourceLines) > 0 && li.SourceLines[0] != "" {
		return li.SourceLines[0]
	}
	return li.Name
}

// Receipt is the processed form of one vendor document.
type Receipt struct {
	ProcessedAt        time.Time
	ID                 string
	SourceFile         string
	FileExt            string
	VendorCode         string
	DetectedSourceType string
	LayoutName         string
	ParsedBy           string
	ExtractionPath     string
	Items              []LineItem
	ReviewReasons      []string
	Subtotal           float64
	Tax                float64
	Total              float64
	ItemCount          int
	NeedsReview        bool
}

// AddReviewReason flags the receipt for review and records why.
func (r *Receipt) AddReviewReason(reason string) {
	r.NeedsReview = true
	for _, existing := range r.ReviewReasons {
		if existing == reason {
			return
		}
	}
	r.ReviewReasons = append(r.ReviewReasons, reason)
}

// ItemsNeedingReview counts items whose category assignment needs review.
func (r *Receipt) ItemsNeedingReview() int {
	n := 0
	for i := range r.Items {
		if r.Items[i].NeedsCategoryReview {
			n++
		}
	}
	return n
}

// GenerateHash creates a content hash for duplicate detection.
func (r *Receipt) GenerateHash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:%.2f:%d", strings.ToUpper(r.VendorCode), r.SourceFile, r.Total, len(r.Items))
	for i := range r.Items {
		fmt.Fprintf(&b, "|%s:%.2f", r.Items[i].Name, r.Items[i].TotalPrice)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", sum)
}
