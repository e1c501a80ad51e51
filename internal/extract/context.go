package extract

import (
	"fmt"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/shopspring/decimal"
)

// Review reasons raised by Finalize.
const (
	ReasonItemCountMismatch = "item count mismatch"
	ReasonTotalMismatch     = "total does not match subtotal plus tax"
	ReasonTaxExemptTax      = "tax reported for tax-exempt vendor"
)

// Context accumulates control-line values for one document.
type Context struct {
	Subtotal     *decimal.Decimal
	TaxTotal     *decimal.Decimal
	GrandTotal   *decimal.Decimal
	ItemsSold    *decimal.Decimal
	ControlLines []string
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{}
}

// Observe records text as a control line when it is one and reports whether it was.
func (c *Context) Observe(text string, value decimal.Decimal, ok bool) bool {
	kind := classifyControl(text)
	if kind == controlNone {
		return false
	}
	c.record(kind, text, value, ok)
	return true
}

func (c *Context) record(kind controlKind, text string, value decimal.Decimal, ok bool) {
	c.ControlLines = append(c.ControlLines, text)
	if !ok {
		return
	}
	v := value
	switch kind {
	case controlItemsSold:
		c.ItemsSold = &v
	case controlSubtotal:
		c.Subtotal = &v
	case controlGrandTotal:
		c.GrandTotal = &v
	case controlTax:
		if c.TaxTotal != nil {
			v = c.TaxTotal.Add(v)
		}
		c.TaxTotal = &v
	case controlNone:
	}
}

// Totals are the receipt-level figures.
type Totals struct {
	ReviewReasons []string
	Subtotal      float64
	Tax           float64
	Total         float64
	ItemCount     int
}

// Finalize computes receipt totals. The subtotal is always the sum of item
// totals; explicit control values win for tax, total and item count.
func Finalize(items []model.LineItem, ctx *Context, taxExempt bool) Totals {
	if ctx == nil {
		ctx = NewContext()
	}

	subtotal := decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(items[i].TotalPrice))
	}
	subtotal = subtotal.Round(2)

	var reasons []string

	tax := decimal.Zero
	if ctx.TaxTotal != nil {
		if taxExempt {
			if !ctx.TaxTotal.IsZero() {
				reasons = append(reasons, ReasonTaxExemptTax)
			}
		} else {
			tax = ctx.TaxTotal.Round(2)
		}
	}

	total := subtotal.Add(tax)
	if ctx.GrandTotal != nil {
		total = ctx.GrandTotal.Round(2)
		if total.Sub(subtotal.Add(tax)).Abs().GreaterThan(decimal.RequireFromString("0.01")) {
			reasons = append(reasons, ReasonTotalMismatch)
		}
	}

	count := len(items)
	if ctx.ItemsSold != nil {
		declared := int(ctx.ItemsSold.IntPart())
		if declared != count {
			reasons = append(reasons, fmt.Sprintf("%s: document lists %d, extracted %d", ReasonItemCountMismatch, declared, count))
		}
		count = declared
	}

	return Totals{
		Subtotal:      subtotal.InexactFloat64(),
		Tax:           tax.InexactFloat64(),
		Total:         total.InexactFloat64(),
		ItemCount:     count,
		ReviewReasons: reasons,
	}
}
