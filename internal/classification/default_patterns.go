package classification

import "github.com/Veraticus/the-receipts-must-flow/internal/rules"

// DefaultOverrides are the structural line types every pipeline recognizes.
// Rule documents may replace the target code or the patterns of each.
// Patterns are anchored so that product names merely containing one of these
// words (BEEF TIPS, PROMO PACK) are left to the content stages. They run
// against normalized text.
var DefaultOverrides = map[string]rules.OverrideRule{
	OverrideTax: {
		MapToL2: "C70",
		Patterns: []string{
			`^((SALES|GROCERY|FOOD|STATE|COUNTY|CITY|LOCAL)\s+)*(TAX|VAT|GST|HST|PST)(\s+\d+)*$`,
		},
	},
	OverrideDiscount: {
		MapToL2: "C95",
		Patterns: []string{
			`^(INSTANT|MEMBER|DIGITAL|MANUFACTURER)\s+SAVINGS\b`,
			`^(COUPONS?|DISCOUNTS?|MARKDOWN|REBATE)\b`,
			`^PROMO(TION)?\s+(DISCOUNT|SAVINGS|CODE)\b`,
		},
	},
	OverrideTip: {
		MapToL2: "C85",
		Patterns: []string{
			`^((DRIVER|SHOPPER|DELIVERY)\s+)?(TIPS?|GRATUITY)(\s+\d+)*$`,
		},
	},
	OverrideShipping: {
		MapToL2: "C80",
		Patterns: []string{
			`^(SHIPPING|FREIGHT)\b`,
			`^DELIVERY(\s+(FEE|CHARGE))?$`,
			`^(DELIVERY|HANDLING|SERVICE)\s+(FEE|CHARGE)\b`,
		},
	},
}

// DefaultConfidence is the fixed confidence each stage contributes.
var DefaultConfidence = map[StageKind]float64{
	StageSourceMap:      0.95,
	StageVendorOverride: 0.90,
	StageKeywords:       0.80,
	StageHeuristics:     0.70,
	StageOverrides:      1.00,
	StageFallback:       0.20,
}

// Pipeline defaults used when the rule document leaves a value unset.
const (
	DefaultReviewThreshold = 0.60
	DefaultFallbackL2      = "C99"
)
