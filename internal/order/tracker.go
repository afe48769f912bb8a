package order

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/tradecore/internal/feed"
	"github.com/quantfeed/tradecore/internal/observability"
	"github.com/quantfeed/tradecore/internal/schema"
)

// CommandEmitter transmits order commands to the exchange. Implemented by
// the session using an exchange-specific command builder.
type CommandEmitter interface {
	EmitCreate(order schema.Order) error
	EmitCancel(order schema.Order) error
	EmitReplace(order schema.Order, requestID string, price, qty decimal.Decimal) error
}

// Tracker serializes create/cancel/adjust mutations per client order id
// and reconciles local state against exchange reports. At most one
// mutation is pending per order id at any time.
type Tracker struct {
	exchange string
	emitter  CommandEmitter
	ids      *IDGenerator
	clock    func() time.Time

	mu      sync.Mutex
	orders  map[string]schema.Order
	pending map[string]schema.PendingMutation

	reports *feed.Feed[schema.OrderReport]
}

// NewTracker constructs a tracker. ids may be nil, in which case a
// generator with the default reset interval is created. clock may be nil.
func NewTracker(exchange string, emitter CommandEmitter, ids *IDGenerator, clock func() time.Time) *Tracker {
	if ids == nil {
		ids = NewIDGenerator(0, nil)
	}
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		exchange: exchange,
		emitter:  emitter,
		ids:      ids,
		clock:    clock,
		orders:   make(map[string]schema.Order),
		pending:  make(map[string]schema.PendingMutation),
		reports:  feed.New[schema.OrderReport](0),
	}
}

// Reports exposes the raw order report passthrough feed.
func (t *Tracker) Reports() *feed.Feed[schema.OrderReport] { return t.reports }

// CreateOrder generates an id, marks it pending-create, and emits a create
// command. The id is returned synchronously.
func (t *Tracker) CreateOrder(pair schema.Pair, price, qty decimal.Decimal, side schema.Side) (string, error) {
	id := t.ids.Next(pair)
	now := t.clock()
	o := schema.Order{
		ClientOrderID: id,
		Pair:          pair,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		Status:        schema.StatusPendingCreate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	t.mu.Lock()
	t.orders[id] = o
	t.pending[id] = schema.PendingMutation{OrderID: id, Kind: schema.MutationCreate}
	t.mu.Unlock()

	if err := t.emitter.EmitCreate(o); err != nil {
		t.mu.Lock()
		delete(t.orders, id)
		delete(t.pending, id)
		t.mu.Unlock()
		return "", err
	}
	return id, nil
}

// CancelOrder marks the order pending-cancel and emits a cancel command
// keyed by its existing client order id.
func (t *Tracker) CancelOrder(o schema.Order) error {
	id := o.ClientOrderID

	t.mu.Lock()
	prev, hadPending := t.pending[id]
	t.pending[id] = schema.PendingMutation{OrderID: id, Kind: schema.MutationCancel}
	if cur, ok := t.orders[id]; ok {
		cur.Status = schema.StatusPendingCancel
		cur.UpdatedAt = t.clock()
		t.orders[id] = cur
	}
	t.mu.Unlock()

	if err := t.emitter.EmitCancel(o); err != nil {
		t.mu.Lock()
		if hadPending {
			t.pending[id] = prev
		} else {
			delete(t.pending, id)
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// AdjustOrder replaces the order's price and quantity. It is a silent
// no-op when a mutation is already pending for the id, or when both
// requested values exactly equal the order's current values.
func (t *Tracker) AdjustOrder(o schema.Order, price, qty decimal.Decimal) error {
	id := o.ClientOrderID

	t.mu.Lock()
	if _, inFlight := t.pending[id]; inFlight {
		t.mu.Unlock()
		return nil
	}
	current := o
	if cur, ok := t.orders[id]; ok {
		current = cur
	}
	if price.Equal(current.Price) && qty.Equal(current.Quantity) {
		t.mu.Unlock()
		return nil
	}
	t.pending[id] = schema.PendingMutation{OrderID: id, Kind: schema.MutationAdjust}
	if cur, ok := t.orders[id]; ok {
		cur.Status = schema.StatusPendingReplace
		cur.UpdatedAt = t.clock()
		t.orders[id] = cur
	}
	t.mu.Unlock()

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := t.emitter.EmitReplace(current, requestID, price, qty); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return err
	}
	return nil
}

// OnReport is the single inbound entry point for exchange order reports.
// The pending-mutation flag for the referenced id is cleared
// unconditionally; the report is always forwarded to observers, including
// unrecognized kinds.
func (t *Tracker) OnReport(r schema.OrderReport) {
	t.mu.Lock()
	delete(t.pending, r.ClientOrderID)

	switch r.Kind {
	case schema.ReportReplaced:
		// The original id is retired atomically with the new insertion.
		delete(t.pending, r.OriginalClientOrderID)
		delete(t.orders, r.OriginalClientOrderID)
		t.insertLocked(r, schema.StatusOpen)
	case schema.ReportNew:
		t.insertLocked(r, schema.StatusOpen)
	case schema.ReportTrade:
		if r.Status == schema.StatusFilled {
			delete(t.orders, r.ClientOrderID)
		} else if cur, ok := t.orders[r.ClientOrderID]; ok {
			// Partial fill: update remaining quantity in place and keep
			// the order active.
			cur.Filled = r.Filled
			cur.Status = schema.StatusPartiallyFilled
			cur.UpdatedAt = r.Timestamp
			t.orders[r.ClientOrderID] = cur
		}
	case schema.ReportCanceled, schema.ReportExpired, schema.ReportSuspended:
		delete(t.orders, r.ClientOrderID)
	default:
		observability.Telemetry().IncCounter(observability.MetricUnknownReports, 1, map[string]string{
			"kind": string(r.Kind),
		})
		observability.Log().Debug("forwarding unrecognized report kind",
			observability.F("kind", r.Kind),
			observability.F("order_id", r.ClientOrderID),
		)
	}
	t.mu.Unlock()

	t.reports.Publish(r)
}

// OpenOrders returns the active orders, oldest first.
func (t *Tracker) OpenOrders() []schema.Order {
	t.mu.Lock()
	out := make([]schema.Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ClientOrderID < out[j].ClientOrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// HasPending reports whether a mutation is in flight for the order id.
func (t *Tracker) HasPending(orderID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[orderID]
	return ok
}

// ResetPendingMutations downgrades every in-flight mutation to
// pending-create after a reconnect: open orders are not assumed lost, and
// remote order state is reconciled outside this core.
func (t *Tracker) ResetPendingMutations() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id := range t.pending {
		t.pending[id] = schema.PendingMutation{OrderID: id, Kind: schema.MutationCreate}
		if cur, ok := t.orders[id]; ok {
			cur.Status = schema.StatusPendingCreate
			t.orders[id] = cur
		}
	}
}

// Close releases timer resources held by the id generator.
func (t *Tracker) Close() {
	t.ids.Close()
}

func (t *Tracker) insertLocked(r schema.OrderReport, status schema.OrderStatus) {
	if r.Status != "" {
		status = r.Status
	}
	now := r.Timestamp
	if now.IsZero() {
		now = t.clock()
	}
	t.orders[r.ClientOrderID] = schema.Order{
		ClientOrderID: r.ClientOrderID,
		Pair:          r.Pair,
		Side:          r.Side,
		Price:         r.Price,
		Quantity:      r.Quantity,
		Filled:        r.Filled,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
