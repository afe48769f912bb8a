package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side captures the direction of an order.
type Side string

const (
	// SideBuy indicates a buy order.
	SideBuy Side = "buy"
	// SideSell indicates a sell order.
	SideSell Side = "sell"
)

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	// StatusPendingCreate marks an order awaiting creation confirmation.
	StatusPendingCreate OrderStatus = "pendingCreate"
	// StatusPendingCancel marks an order awaiting cancel confirmation.
	StatusPendingCancel OrderStatus = "pendingCancel"
	// StatusPendingReplace marks an order awaiting replace confirmation.
	StatusPendingReplace OrderStatus = "pendingReplace"
	// StatusOpen marks a confirmed resting order.
	StatusOpen OrderStatus = "open"
	// StatusPartiallyFilled marks an order with a partial execution.
	StatusPartiallyFilled OrderStatus = "partiallyFilled"
	// StatusFilled marks a fully executed order.
	StatusFilled OrderStatus = "filled"
	// StatusCanceled marks a canceled order.
	StatusCanceled OrderStatus = "canceled"
	// StatusExpired marks an expired order.
	StatusExpired OrderStatus = "expired"
)

// MutationKind enumerates pending order mutations.
type MutationKind string

const (
	// MutationCreate marks an in-flight create command.
	MutationCreate MutationKind = "create"
	// MutationCancel marks an in-flight cancel command.
	MutationCancel MutationKind = "cancel"
	// MutationAdjust marks an in-flight replace command.
	MutationAdjust MutationKind = "adjust"
)

// Order represents one of the bot's own orders.
type Order struct {
	ClientOrderID string
	Pair          Pair
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Filled        decimal.Decimal
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Remaining returns the unfilled quantity.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// PendingMutation records the single in-flight mutation allowed per order id.
type PendingMutation struct {
	OrderID string
	Kind    MutationKind
}

// ReportKind enumerates exchange report categories. Kinds outside this set
// are forwarded to observers untouched.
type ReportKind string

const (
	// ReportNew confirms order creation.
	ReportNew ReportKind = "new"
	// ReportReplaced confirms an order replace; the original id is retired.
	ReportReplaced ReportKind = "replaced"
	// ReportTrade notifies an execution against the order.
	ReportTrade ReportKind = "trade"
	// ReportCanceled confirms cancellation.
	ReportCanceled ReportKind = "canceled"
	// ReportExpired notifies order expiry.
	ReportExpired ReportKind = "expired"
	// ReportSuspended notifies order suspension by the exchange.
	ReportSuspended ReportKind = "suspended"
)

// OrderReport is an exchange-pushed notification about one of the bot's orders.
type OrderReport struct {
	ClientOrderID         string
	OriginalClientOrderID string
	Pair                  Pair
	Side                  Side
	Kind                  ReportKind
	Status                OrderStatus
	Price                 decimal.Decimal
	Quantity              decimal.Decimal
	Filled                decimal.Decimal
	Timestamp             time.Time
}
