package extract

import (
	"regexp"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

var (
	citationPattern = regexp.MustCompile(`\[cite[^\]]*\]`)
	amountStrip     = regexp.MustCompile(`[$€£¥,\s]`)
	controlPattern  = regexp.MustCompile(
		`(?i)^\s*(sub\s*total|tax|sales\s+tax|total|grand\s+total|transaction\s+total|items?\s+sold|total\s+items(\s+sold)?|item\s+count)\b`)
	itemsSoldPattern = regexp.MustCompile(`(?i)^\s*(items?\s+sold|total\s+items|item\s+count)\b`)
	subtotalPattern  = regexp.MustCompile(`(?i)^\s*sub\s*total\b`)
	grandPattern     = regexp.MustCompile(`(?i)^\s*(total|grand|transaction)\b`)
)

type controlKind int

const (
	controlNone controlKind = iota
	controlItemsSold
	controlSubtotal
	controlGrandTotal
	controlTax
)

func (k controlKind) String() string {
	switch k {
	case controlItemsSold:
		return "items_sold"
	case controlSubtotal:
		return "subtotal"
	case controlGrandTotal:
		return "grand_total"
	case controlTax:
		return "tax"
	default:
		return "none"
	}
}

// classifyControl reports which receipt aggregate a line of text carries.
func classifyControl(text string) controlKind {
	if !controlPattern.MatchString(text) {
		return controlNone
	}
	switch {
	case itemsSoldPattern.MatchString(text):
		return controlItemsSold
	case subtotalPattern.MatchString(text):
		return controlSubtotal
	case grandPattern.MatchString(text):
		return controlGrandTotal
	default:
		return controlTax
	}
}

// ParseAmount cleans a document amount. Currency symbols, thousands separators
// and spaces are dropped; "(x)" and a trailing "-" mean negative. The second
// result is false when the cell holds no amount.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "none", "null", "-":
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSuffix(s, "-")
	}
	s = amountStrip.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func parseNull(s string) decimal.NullDecimal {
	d, ok := ParseAmount(s)
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}

// normalizeText applies a layout's value cleanup to one cell.
func normalizeText(s string, n model.Normalization) string {
	if n.CleanCitations {
		s = citationPattern.ReplaceAllString(s, "")
	}
	if n.Trim() {
		s = strings.Join(strings.Fields(s), " ")
	}
	if !n.KeepCase() {
		s = strings.ToUpper(s)
	}
	return s
}

// lastAmount returns the right-most cell that parses as an amount.
func lastAmount(cells []string) (decimal.Decimal, bool) {
	for i := len(cells) - 1; i >= 0; i-- {
		if d, ok := ParseAmount(cells[i]); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func firstNonEmpty(cells []string) string {
	for _, c := range cells {
		if t := strings.TrimSpace(c); t != "" {
			return t
		}
	}
	return ""
}

// derive completes quantity, unit price and total from whichever are present.
func derive(qty, unit, total decimal.NullDecimal) (q, u, t decimal.Decimal) {
	if !qty.Valid && total.Valid && unit.Valid && !unit.Decimal.IsZero() {
		qty = decimal.NullDecimal{Decimal: total.Decimal.Div(unit.Decimal).Round(3), Valid: true}
	}
	if !qty.Valid {
		qty = decimal.NullDecimal{Decimal: decimal.NewFromInt(1), Valid: true}
	}
	if !unit.Valid && total.Valid && !qty.Decimal.IsZero() {
		unit = decimal.NullDecimal{Decimal: total.Decimal.Div(qty.Decimal).Round(4), Valid: true}
	}
	if !unit.Valid {
		unit = decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}
	}
	if !total.Valid {
		total = decimal.NullDecimal{Decimal: qty.Decimal.Mul(unit.Decimal).Round(2), Valid: true}
	}
	return qty.Decimal.Round(3), unit.Decimal.Round(4), total.Decimal.Round(2)
}
