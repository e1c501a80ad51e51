package extract

import (
	"regexp"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

var trailingAmount = regexp.MustCompile(`(\(?-?\$?[\d,]*\d(?:\.\d+)?\)?-?)\s*$`)

// ExtractText reads items from raw text lines with a text layout's line
// patterns. Lines that follow an item and match nothing are attached to that
// item as adjoining source lines.
func ExtractText(lines []string, l *model.Layout, ctx *Context) (*Result, error) {
	if l == nil || !l.IsText() {
		return nil, ErrLayoutShape
	}
	if ctx == nil {
		ctx = NewContext()
	}

	skip := common.CompileAlternation(l.SkipPatterns)
	parsedBy := l.Provenance()

	items := make([]model.LineItem, 0)
	current := -1

	for _, raw := range lines {
		line := normalizeText(raw, l.Normalization)
		if strings.TrimSpace(line) == "" {
			continue
		}

		if kind := classifyControl(line); kind != controlNone {
			v, ok := TrailingAmount(line)
			ctx.record(kind, line, v, ok)
			current = -1
			continue
		}
		if skip != nil && skip.MatchString(line) {
			continue
		}

		matched, isSkip := false, false
		for _, p := range l.LinePatterns {
			if p.Compiled == nil {
				continue
			}
			m := p.Compiled.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if p.Kind == model.LinePatternSkip {
				isSkip = true
				break
			}
			row, hasSize := textRow(p.Compiled, m, line)
			if row.Name == "" {
				continue
			}
			items = append(items, row.item(parsedBy, l.HintSource, hasSize))
			current = len(items) - 1
			matched = true
			break
		}
		if matched || isSkip {
			continue
		}
		if current >= 0 {
			items[current].SourceLines = append(items[current].SourceLines, line)
		}
	}

	return &Result{Path: PathText, Items: items}, nil
}

func textRow(re *regexp.Regexp, m []string, line string) (CanonicalRow, bool) {
	group := func(name string) string {
		if i := re.SubexpIndex(name); i > 0 && i < len(m) {
			return strings.TrimSpace(m[i])
		}
		return ""
	}
	hasSize := re.SubexpIndex(string(model.FieldSize)) > 0 || re.SubexpIndex(string(model.FieldUOM)) > 0
	return CanonicalRow{
		Name:       group(string(model.FieldProductName)),
		ItemNumber: group(string(model.FieldItemNumber)),
		UPC:        group(string(model.FieldUPC)),
		Size:       group(string(model.FieldSize)),
		UOM:        group(string(model.FieldUOM)),
		Quantity:   parseNull(group(string(model.FieldQuantity))),
		UnitPrice:  parseNull(group(string(model.FieldUnitPrice))),
		TotalPrice: parseNull(group(string(model.FieldTotalPrice))),
		Line:       line,
	}, hasSize
}

// TrailingAmount parses the amount at the end of a text line.
func TrailingAmount(line string) (decimal.Decimal, bool) {
	m := trailingAmount.FindStringSubmatch(line)
	if m == nil {
		return decimal.Zero, false
	}
	return ParseAmount(m[1])
}
