package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/colmap"
	"github.com/Veraticus/the-receipts-must-flow/internal/engine"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/charmbracelet/lipgloss"
)

// RenderReceipt writes a one-line receipt summary, followed by an item table
// when verbose is set.
func RenderReceipt(w io.Writer, r *model.Receipt, verbose bool) error {
	status := FormatSuccess("ok")
	if r.NeedsReview {
		status = FormatWarning("needs review: " + strings.Join(r.ReviewReasons, "; "))
	}

	source := r.ParsedBy
	if r.LayoutName != "" {
		source = r.LayoutName
	}
	line := fmt.Sprintf("%s  %s  %s  %d items  $%.2f  %s",
		BoldStyle.Render(r.SourceFile),
		InfoStyle.Render(orDash(r.VendorCode)),
		SubtleStyle.Render(source+" / "+r.ExtractionPath),
		r.ItemCount, r.Total, status)
	if _, err := fmt.Fprintln(w, line); err != nil {
		return err
	}
	if !verbose || len(r.Items) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(r.Items))
	for i := range r.Items {
		li := &r.Items[i]
		rows = append(rows, []string{
			li.Name,
			fmt.Sprintf("%g", li.Quantity),
			fmt.Sprintf("%.2f", li.TotalPrice),
			orDash(li.RawSizeText),
			li.L2Code + " " + li.L2Name,
			fmt.Sprintf("%.2f", li.Confidence),
			reviewMark(li.NeedsCategoryReview),
		})
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"Item", "Qty", "Total", "Size", "Category", "Conf", ""}, rows))
	return err
}

// RenderBatchSummary writes totals for a processed batch and, when showStats is
// set, the column-mapping cache statistics.
func RenderBatchSummary(w io.Writer, outcomes []engine.Outcome, stats colmap.Stats, showStats bool) error {
	var processed, failed, review, items int
	var total float64
	for _, out := range outcomes {
		switch {
		case out.Err != nil:
			failed++
		case out.Receipt != nil:
			processed++
			items += len(out.Receipt.Items)
			total += out.Receipt.Total
			if out.Receipt.NeedsReview || out.Receipt.ItemsNeedingReview() > 0 {
				review++
			}
		}
	}

	lines := []string{
		fmt.Sprintf("Documents processed: %d", processed),
		fmt.Sprintf("Line items:          %d", items),
		fmt.Sprintf("Total spend:         $%.2f", total),
	}
	if review > 0 {
		lines = append(lines, ReviewStyle.Render(fmt.Sprintf("Needing review:      %d", review)))
	}
	if failed > 0 {
		lines = append(lines, ErrorStyle.Render(fmt.Sprintf("Failed:              %d", failed)))
	}
	if showStats {
		lines = append(lines,
			"",
			SubtleStyle.Render(fmt.Sprintf("Column-map cache: %d hits, %d misses (%.0f%%), %d/%d entries, %s saved",
				stats.Hits, stats.Misses, stats.HitRate()*100, stats.Size, stats.MaxEntries, stats.TimeSaved)),
		)
		if !stats.Enabled {
			lines = append(lines, SubtleStyle.Render("Column-map cache is disabled"))
		}
	}

	_, err := fmt.Fprintln(w, RenderBox(ChartIcon+" Summary", strings.Join(lines, "\n")))
	return err
}

// RenderReview lists receipts awaiting review with the items that caused it.
func RenderReview(w io.Writer, receipts []model.Receipt) error {
	if len(receipts) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("Nothing needs review"))
		return err
	}

	if _, err := fmt.Fprintln(w, FormatTitle(fmt.Sprintf("%d receipts need review", len(receipts)))); err != nil {
		return err
	}
	for i := range receipts {
		r := &receipts[i]
		header := fmt.Sprintf("%s %s  %s  %s", ReviewIcon, BoldStyle.Render(r.SourceFile),
			InfoStyle.Render(orDash(r.VendorCode)), SubtleStyle.Render(r.ProcessedAt.Format("2006-01-02 15:04")))
		if _, err := fmt.Fprintln(w, header); err != nil {
			return err
		}
		for _, reason := range r.ReviewReasons {
			if _, err := fmt.Fprintln(w, "   "+WarningStyle.Render(reason)); err != nil {
				return err
			}
		}
		for j := range r.Items {
			li := &r.Items[j]
			if !li.NeedsCategoryReview {
				continue
			}
			line := fmt.Sprintf("   %s  %s  %s", li.Name, SubtleStyle.Render(li.L2Code+" "+li.L2Name),
				SubtleStyle.Render(fmt.Sprintf("%.2f via %s", li.Confidence, li.CategorySource)))
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderCategoryTotals writes spend grouped by category.
func RenderCategoryTotals(w io.Writer, totals []service.CategoryTotal) error {
	rows := make([][]string, 0, len(totals))
	var sum float64
	for _, t := range totals {
		rows = append(rows, []string{
			t.L1Code + " " + t.L1Name,
			t.L2Code + " " + t.L2Name,
			fmt.Sprintf("%d", t.Items),
			fmt.Sprintf("%.2f", t.Total),
		})
		sum += t.Total
	}
	rows = append(rows, []string{"", BoldStyle.Render("Total"), "", BoldStyle.Render(fmt.Sprintf("%.2f", sum))})
	_, err := fmt.Fprintln(w, renderTable([]string{"Level 1", "Level 2", "Items", "Spend"}, rows))
	return err
}

func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var b strings.Builder
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...)))
	for _, row := range rows {
		b.WriteByte('\n')
		for i := range cells {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return b.String()
}

func reviewMark(needs bool) string {
	if needs {
		return ReviewStyle.Render("review")
	}
	return ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RenderLayouts lists vendor's layouts in resolution order.
func RenderLayouts(w io.Writer, vendor string, layouts []*model.Layout) error {
	if len(layouts) == 0 {
		_, err := fmt.Fprintln(w, FormatWarning(fmt.Sprintf("No layouts configured for %s", vendor)))
		return err
	}

	rows := make([][]string, 0, len(layouts))
	for i, l := range layouts {
		kind := "tabular"
		if l.IsText() {
			kind = "text"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			l.Name,
			kind,
			l.Provenance(),
			describeAppliesTo(l.AppliesTo),
		})
	}
	if _, err := fmt.Fprintln(w, FormatTitle(vendor+" layouts")); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, renderTable([]string{"#", "Layout", "Kind", "Parsed by", "Applies to"}, rows))
	return err
}

func describeAppliesTo(a model.AppliesTo) string {
	if a.IsEmpty() {
		return "any document"
	}
	var parts []string
	add := func(label string, values []string) {
		if len(values) > 0 {
			parts = append(parts, label+"="+strings.Join(values, "|"))
		}
	}
	add("vendor", a.VendorCodes)
	add("ext", a.FileExts)
	add("header", a.HeaderContains)
	add("text", a.TextContains)
	return strings.Join(parts, " ")
}
