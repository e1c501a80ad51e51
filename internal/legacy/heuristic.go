package legacy

import (
	"regexp"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/extract"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

var textItemPattern = regexp.MustCompile(`^(?P<name>.*?[A-Za-z].*?)\s+(?P<amount>\(?-?\$?[\d,]*\d\.\d{2}\)?-?)\s*$`)

// HeuristicProcessor guesses columns from cell contents: the first mostly
// textual column is the name and the last mostly numeric column is the total.
// Text documents use a trailing amount on each line.
type HeuristicProcessor struct{}

// Process implements Processor.
func (HeuristicProcessor) Process(in Input, ctx *extract.Context) ([]model.LineItem, string, error) {
	if in.IsTabular() {
		items, err := processRows(in.Rows, ctx)
		return items, model.ParsedByLegacyExcel, err
	}
	if len(in.Lines) == 0 {
		return nil, model.ParsedByLegacyText, common.ErrNoRows
	}
	return processLines(in.Lines, ctx), model.ParsedByLegacyText, nil
}

func processRows(rows [][]string, ctx *extract.Context) ([]model.LineItem, error) {
	if len(rows) == 0 {
		return nil, common.ErrNoRows
	}
	nameCol, totalCol := guessColumns(rows)
	if nameCol < 0 {
		return nil, nil
	}

	items := make([]model.LineItem, 0, len(rows))
	for _, row := range rows {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		total, ok := decimal.Zero, false
		if totalCol >= 0 {
			total, ok = extract.ParseAmount(cell(row, totalCol))
		}
		if ctx.Observe(name, total, ok) {
			continue
		}
		items = append(items, newItem(name, total, strings.Join(nonEmpty(row), " ")))
	}
	return items, nil
}

func processLines(lines []string, ctx *extract.Context) []model.LineItem {
	items := make([]model.LineItem, 0, len(lines))
	for _, raw := range lines {
		line := strings.Join(strings.Fields(raw), " ")
		if line == "" {
			continue
		}
		amount, ok := extract.TrailingAmount(line)
		if ctx.Observe(line, amount, ok) {
			continue
		}
		m := textItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		total, ok := extract.ParseAmount(m[textItemPattern.SubexpIndex("amount")])
		if !ok {
			continue
		}
		items = append(items, newItem(m[textItemPattern.SubexpIndex("name")], total, line))
	}
	return items
}

func newItem(name string, total decimal.Decimal, line string) model.LineItem {
	t := total.Round(2).InexactFloat64()
	return model.LineItem{
		Name:        strings.TrimSpace(name),
		Quantity:    1,
		UnitPrice:   t,
		TotalPrice:  t,
		SourceLines: []string{line},
	}
}

// guessColumns returns the name and total column indexes, or -1 when none qualifies.
func guessColumns(rows [][]string) (int, int) {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}

	nameCol, totalCol := -1, -1
	for c := 0; c < width; c++ {
		numeric, textual := 0, 0
		for _, r := range rows {
			v := cell(r, c)
			if v == "" {
				continue
			}
			if _, ok := extract.ParseAmount(v); ok {
				numeric++
			} else {
				textual++
			}
		}
		if nameCol < 0 && textual > numeric {
			nameCol = c
		}
		if numeric > 0 && numeric >= textual {
			totalCol = c
		}
	}
	return nameCol, totalCol
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func nonEmpty(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if t := strings.TrimSpace(c); t != "" {
			out = append(out, t)
		}
	}
	return out
}
