package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// remember to add new statuses to the transitions map
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// transitions is the full state machine: delivered and cancelled are
// terminal. pending -> shipped is allowed so fulfilment does not require an
// intermediate processing step.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := transitions[status]; ok {
		return status, nil
	}
	return "", ValidationError("invalid order status: " + s)
}

// CanTransition reports whether an order may move from s to the target status.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID        string
	UserID    string
	Total     decimal.Decimal
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	OrderID   string
	ProductID string
	Quantity  int
	// PriceAtTime is the product price captured at order creation,
	// never revised even if the product's price later changes.
	PriceAtTime decimal.Decimal
}

// OrderLine is a requested (product, quantity) pair at order creation.
type OrderLine struct {
	ProductID string
	Quantity  int
}
