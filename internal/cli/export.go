package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/gocarina/gocsv"
)

// ItemRow is one exported line item.
type ItemRow struct {
	ReceiptID      string  `csv:"receipt_id"`
	SourceFile     string  `csv:"source_file"`
	VendorCode     string  `csv:"vendor_code"`
	ParsedBy       string  `csv:"parsed_by"`
	Name           string  `csv:"name"`
	ItemNumber     string  `csv:"item_number"`
	RawSizeText    string  `csv:"raw_size_text"`
	RawUOMText     string  `csv:"raw_uom_text"`
	L1Code         string  `csv:"l1_code"`
	L1Name         string  `csv:"l1_name"`
	L2Code         string  `csv:"l2_code"`
	L2Name         string  `csv:"l2_name"`
	CategorySource string  `csv:"category_source"`
	RuleID         string  `csv:"rule_id"`
	ReviewReasons  string  `csv:"receipt_review_reasons"`
	Quantity       float64 `csv:"quantity"`
	UnitPrice      float64 `csv:"unit_price"`
	TotalPrice     float64 `csv:"total_price"`
	Confidence     float64 `csv:"confidence"`
	NeedsReview    bool    `csv:"needs_review"`
}

// ItemRows flattens receipts into export rows.
func ItemRows(receipts []*model.Receipt) []*ItemRow {
	var rows []*ItemRow
	for _, r := range receipts {
		if r == nil {
			continue
		}
		reasons := strings.Join(r.ReviewReasons, "; ")
		for i := range r.Items {
			li := &r.Items[i]
			rows = append(rows, &ItemRow{
				ReceiptID:      r.ID,
				SourceFile:     r.SourceFile,
				VendorCode:     r.VendorCode,
				ParsedBy:       li.ParsedBy,
				Name:           li.Name,
				ItemNumber:     li.ItemNumber,
				RawSizeText:    li.RawSizeText,
				RawUOMText:     li.RawUOMText,
				L1Code:         li.L1Code,
				L1Name:         li.L1Name,
				L2Code:         li.L2Code,
				L2Name:         li.L2Name,
				CategorySource: li.CategorySource,
				RuleID:         li.RuleID,
				ReviewReasons:  reasons,
				Quantity:       li.Quantity,
				UnitPrice:      li.UnitPrice,
				TotalPrice:     li.TotalPrice,
				Confidence:     li.Confidence,
				NeedsReview:    r.NeedsReview || li.NeedsCategoryReview,
			})
		}
	}
	return rows
}

// ExportItemsCSV writes every item of receipts as CSV.
func ExportItemsCSV(w io.Writer, receipts []*model.Receipt) error {
	rows := ItemRows(receipts)
	if len(rows) == 0 {
		return nil
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to export items: %w", err)
	}
	return nil
}
