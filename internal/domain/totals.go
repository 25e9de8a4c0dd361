package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money rounds a float to cents and returns it as a decimal
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// LineTotal returns quantity × unitPrice rounded to cents
func LineTotal(quantity, unitPrice float64) decimal.Decimal {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(unitPrice)).Round(2)
}

// TaxOf returns subtotal × rate / 100 rounded to cents
func TaxOf(subtotal decimal.Decimal, rate float64) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromFloat(rate)).Div(hundred).Round(2)
}

// Recalculate recomputes every item total and the document totals from
// quantities, unit prices and the tax rate. Stored totals are ignored.
func (d *Document) Recalculate() {
	subtotal := decimal.Zero
	for i := range d.Items {
		line := LineTotal(d.Items[i].Quantity, d.Items[i].UnitPrice)
		d.Items[i].Total = line.InexactFloat64()
		subtotal = subtotal.Add(line)
	}

	tax := TaxOf(subtotal, d.TaxRate)
	d.Subtotal = subtotal.InexactFloat64()
	d.TaxAmount = tax.InexactFloat64()
	d.Total = subtotal.Add(tax).InexactFloat64()
}

// SetDueDate derives the due date from the issue date and payment term
func (d *Document) SetDueDate() {
	d.DueDate = d.IssueDate.AddDate(0, 0, d.PaymentTermDays)
}
