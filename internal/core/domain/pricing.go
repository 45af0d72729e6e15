package domain

import "github.com/shopspring/decimal"

// Pricing holds the process-wide rate constants injected at startup.
type Pricing struct {
	TaxRate     decimal.Decimal
	ShippingFee decimal.Decimal
}

// Breakdown is the price decomposition returned alongside an order.
type Breakdown struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// Breakdown computes tax and shipping for a subtotal:
// total = subtotal + subtotal*TaxRate + ShippingFee.
func (p Pricing) Breakdown(subtotal decimal.Decimal) Breakdown {
	tax := subtotal.Mul(p.TaxRate)
	return Breakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: p.ShippingFee,
		Total:    subtotal.Add(tax).Add(p.ShippingFee),
	}
}

// ItemsSubtotal sums the immutable price snapshots of order items.
func ItemsSubtotal(items []OrderItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.PriceAtTime.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subtotal
}
