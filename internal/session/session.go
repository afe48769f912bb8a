package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/quantfeed/tradecore/errs"
	"github.com/quantfeed/tradecore/internal/book"
	"github.com/quantfeed/tradecore/internal/candle"
	"github.com/quantfeed/tradecore/internal/feed"
	"github.com/quantfeed/tradecore/internal/observability"
	"github.com/quantfeed/tradecore/internal/order"
	"github.com/quantfeed/tradecore/internal/schema"
)

// ResponseMapper translates raw exchange frames into normalized events. A
// single frame may carry several events (bulk order sync), or none when it
// is addressed to nobody. Implemented per exchange adapter.
type ResponseMapper interface {
	OnReceive(raw []byte) ([]schema.Event, error)
}

// CommandBuilder produces the exchange-specific method and params for each
// outbound command. Implemented per exchange adapter.
type CommandBuilder interface {
	BuildCreate(o schema.Order) (method string, params any)
	BuildCancel(o schema.Order) (method string, params any)
	BuildAdjust(o schema.Order, requestID string, price, qty decimal.Decimal) (method string, params any)
	BuildLogin(publicKey, secretKey string) (method string, params any)
	BuildReferenceRequest() (method string, params any)
	BuildSubscribeReports() (method string, params any)
	BuildSubscribeOrderbook(pair schema.Pair) (method string, params any)
	BuildSubscribeCandles(pair schema.Pair, interval schema.Interval) (method string, params any)
}

// Config carries the session's connection settings.
type Config struct {
	Exchange          string
	URL               string
	PublicKey         string
	SecretKey         string
	CommandsPerSecond float64
	CommandBurst      int
}

func (c Config) normalize() Config {
	if c.CommandsPerSecond <= 0 {
		c.CommandsPerSecond = 10
	}
	if c.CommandBurst <= 0 {
		c.CommandBurst = 1
	}
	return c
}

type command struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     string `json:"id"`
}

const maxReconnectInterval = 30 * time.Second

// inboundFrame tags a raw frame with the connection epoch that produced
// it, so frames queued from a dead connection never leak into the next one.
type inboundFrame struct {
	epoch uint64
	raw   []byte
}

// Session owns the exchange socket and the three state engines. All
// inbound messages flow through a single dispatch loop in arrival order;
// strategy-layer calls run concurrently against entity-level locks.
type Session struct {
	cfg     Config
	dial    Dialer
	mapper  ResponseMapper
	builder CommandBuilder
	limiter *rate.Limiter

	tracker *order.Tracker
	books   *book.Engine
	candles *candle.Aggregator

	mu            sync.Mutex
	state         State
	conn          Conn
	epoch         uint64
	authenticated bool
	refLoaded     bool
	readyFired    bool
	started       bool

	// transitionMu serializes every lifecycle transition with its feed
	// publication, so observers see transitions in commit order.
	transitionMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inbound chan inboundFrame

	readyFeed *feed.Feed[struct{}]
	stateFeed *feed.Feed[State]
}

// New wires a session from its exchange capabilities. The order tracker,
// book engine, and candle aggregator are owned per session, so multiple
// concurrent sessions can coexist in one process.
func New(cfg Config, mapper ResponseMapper, builder CommandBuilder, dial Dialer) *Session {
	cfg = cfg.normalize()
	if dial == nil {
		dial = WebsocketDialer()
	}
	s := &Session{
		cfg:       cfg,
		dial:      dial,
		mapper:    mapper,
		builder:   builder,
		limiter:   rate.NewLimiter(rate.Limit(cfg.CommandsPerSecond), cfg.CommandBurst),
		candles:   candle.NewAggregator(),
		inbound:   make(chan inboundFrame, 256),
		readyFeed: feed.New[struct{}](0),
		stateFeed: feed.New[State](0),
	}
	s.tracker = order.NewTracker(cfg.Exchange, s, nil, nil)
	s.books = book.NewEngine(cfg.Exchange, s.requestBookResync)
	return s
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready exposes the readiness feed; it fires exactly once per session.
func (s *Session) Ready() *feed.Feed[struct{}] { return s.readyFeed }

// States exposes the state-transition feed.
func (s *Session) States() *feed.Feed[State] { return s.stateFeed }

// Reports exposes the raw order report passthrough feed.
func (s *Session) Reports() *feed.Feed[schema.OrderReport] { return s.tracker.Reports() }

// Connect starts the connection loop. It returns immediately; readiness is
// signaled through the Ready feed.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errs.New(s.cfg.Exchange, errs.CodeInvalid, errs.WithMessage("session already started"))
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(2)
	go s.dispatchLoop()
	go s.runLoop()
	return nil
}

// Close tears the session down and releases its resources.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	conn := s.conn
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	s.wg.Wait()
	s.tracker.Close()
}

// Send transmits a command with a fresh correlation id attached. It fails
// with a not-connected error while the state is below connected.
func (s *Session) Send(ctx context.Context, method string, params any) (string, error) {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()
	if state < StateConnected || conn == nil {
		return "", errs.NotConnected(s.cfg.Exchange)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", errs.New(s.cfg.Exchange, errs.CodeConnection, errs.WithMessage("command pacing interrupted"), errs.WithCause(err))
	}

	correlationID := uuid.NewString()
	data, err := json.Marshal(command{Method: method, Params: params, ID: correlationID})
	if err != nil {
		return "", errs.New(s.cfg.Exchange, errs.CodeInvalid, errs.WithMessage("marshal command"), errs.WithCause(err))
	}
	if err := conn.Write(ctx, data); err != nil {
		return "", errs.New(s.cfg.Exchange, errs.CodeConnection, errs.WithMessage("write command"), errs.WithCause(err))
	}
	return correlationID, nil
}

// Buy places a limit buy order and returns its client order id.
func (s *Session) Buy(pair schema.Pair, price, qty decimal.Decimal) (string, error) {
	return s.tracker.CreateOrder(pair, price, qty, schema.SideBuy)
}

// Sell places a limit sell order and returns its client order id.
func (s *Session) Sell(pair schema.Pair, price, qty decimal.Decimal) (string, error) {
	return s.tracker.CreateOrder(pair, price, qty, schema.SideSell)
}

// CancelOrder cancels one of the bot's own orders.
func (s *Session) CancelOrder(o schema.Order) error {
	return s.tracker.CancelOrder(o)
}

// AdjustOrder replaces the order's price and quantity, unless a mutation
// is already pending or nothing would change.
func (s *Session) AdjustOrder(o schema.Order, price, qty decimal.Decimal) error {
	return s.tracker.AdjustOrder(o, price, qty)
}

// OpenOrders returns the bot's active orders.
func (s *Session) OpenOrders() []schema.Order {
	return s.tracker.OpenOrders()
}

// HasPendingMutation reports whether a mutation is in flight for the order.
func (s *Session) HasPendingMutation(orderID string) bool {
	return s.tracker.HasPending(orderID)
}

// Orderbook returns the order book for the pair, creating it lazily.
func (s *Session) Orderbook(pair schema.Pair) (*book.Book, error) {
	return s.books.Book(pair)
}

// CandleSeries returns the candle series for (pair, interval), creating it
// lazily, and subscribes onUpdate when non-nil.
func (s *Session) CandleSeries(pair schema.Pair, interval schema.Interval, onUpdate feed.Handler[candle.Update]) (*candle.Series, *feed.Subscription[candle.Update]) {
	return s.candles.Series(pair, interval, onUpdate)
}

// SubscribeOrderbook asks the exchange for depth snapshots and increments.
func (s *Session) SubscribeOrderbook(pair schema.Pair) error {
	method, params := s.builder.BuildSubscribeOrderbook(pair)
	_, err := s.Send(s.commandCtx(), method, params)
	return err
}

// SubscribeCandles asks the exchange for candle history and live updates.
func (s *Session) SubscribeCandles(pair schema.Pair, interval schema.Interval) error {
	method, params := s.builder.BuildSubscribeCandles(pair, interval)
	_, err := s.Send(s.commandCtx(), method, params)
	return err
}

// SubscribeReports asks the exchange for the bot's order lifecycle stream.
func (s *Session) SubscribeReports() error {
	method, params := s.builder.BuildSubscribeReports()
	_, err := s.Send(s.commandCtx(), method, params)
	return err
}

// EmitCreate implements order.CommandEmitter.
func (s *Session) EmitCreate(o schema.Order) error {
	method, params := s.builder.BuildCreate(o)
	_, err := s.Send(s.commandCtx(), method, params)
	return err
}

// EmitCancel implements order.CommandEmitter.
func (s *Session) EmitCancel(o schema.Order) error {
	method, params := s.builder.BuildCancel(o)
	_, err := s.Send(s.commandCtx(), method, params)
	return err
}

// EmitReplace implements order.CommandEmitter.
func (s *Session) EmitReplace(o schema.Order, requestID string, price, qty decimal.Decimal) error {
	method, params := s.builder.BuildAdjust(o, requestID, price, qty)
	_, err := s.Send(s.commandCtx(), method, params)
	return err
}

func (s *Session) commandCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// runLoop maintains the connection with exponential backoff, mirroring the
// session lifecycle: dial, authenticate, load reference data, read until
// the socket drops, then invalidate and retry.
func (s *Session) runLoop() {
	defer s.wg.Done()
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxReconnectInterval

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.setState(StateConnecting)
		conn, err := s.dial(s.ctx, s.cfg.URL)
		if err != nil {
			observability.Log().Error("dial failed",
				observability.F("exchange", s.cfg.Exchange),
				observability.F("error", err.Error()),
			)
			s.setState(StateDisconnected)
			observability.Telemetry().IncCounter(observability.MetricReconnects, 1, map[string]string{"exchange": s.cfg.Exchange})
			if !s.sleep(backoffCfg.NextBackOff()) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.authenticated = false
		s.refLoaded = false
		s.readyFired = false
		epoch := s.epoch
		s.mu.Unlock()
		s.setState(StateConnected)
		backoffCfg.Reset()

		s.beginHandshake()

		err = s.readLoop(conn, epoch)
		_ = conn.Close()
		s.handleDisconnect(err)

		select {
		case <-s.ctx.Done():
			return
		default:
		}
		observability.Telemetry().IncCounter(observability.MetricReconnects, 1, map[string]string{"exchange": s.cfg.Exchange})
		if !s.sleep(backoffCfg.NextBackOff()) {
			return
		}
	}
}

func (s *Session) beginHandshake() {
	s.setState(StateAuthenticating)
	method, params := s.builder.BuildLogin(s.cfg.PublicKey, s.cfg.SecretKey)
	if _, err := s.Send(s.ctx, method, params); err != nil {
		observability.Log().Error("login failed",
			observability.F("exchange", s.cfg.Exchange),
			observability.F("error", err.Error()),
		)
	}
	method, params = s.builder.BuildReferenceRequest()
	if _, err := s.Send(s.ctx, method, params); err != nil {
		observability.Log().Error("reference data request failed",
			observability.F("exchange", s.cfg.Exchange),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Session) readLoop(conn Conn, epoch uint64) error {
	for {
		raw, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}
		select {
		case <-s.ctx.Done():
			return context.Canceled
		case s.inbound <- inboundFrame{epoch: epoch, raw: raw}:
		}
	}
}

// dispatchLoop is the single consumer of inbound frames. Draining them in
// arrival order is what makes every engine a single-writer entity.
func (s *Session) dispatchLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.inbound:
			s.mu.Lock()
			stale := frame.epoch != s.epoch
			s.mu.Unlock()
			if stale {
				continue
			}
			evts, err := s.mapper.OnReceive(frame.raw)
			if err != nil {
				observability.Log().Debug("unparseable frame",
					observability.F("exchange", s.cfg.Exchange),
					observability.F("error", err.Error()),
				)
				continue
			}
			for _, evt := range evts {
				s.route(evt)
			}
		}
	}
}

func (s *Session) route(evt schema.Event) {
	switch evt.Kind {
	case schema.KindBookSnapshot:
		if err := s.books.ApplySnapshot(*evt.Snapshot); err != nil {
			observability.Log().Warn("snapshot for unknown pair dropped",
				observability.F("pair", evt.Snapshot.Pair),
			)
		}
	case schema.KindBookIncrement:
		if err := s.books.ApplyIncrement(*evt.Increment); err != nil {
			observability.Log().Warn("increment for unknown pair dropped",
				observability.F("pair", evt.Increment.Pair),
			)
		}
	case schema.KindCandleHistory:
		s.candles.ApplyHistory(*evt.History)
	case schema.KindCandle:
		s.candles.ApplyUpdate(*evt.Candle)
	case schema.KindReport:
		s.tracker.OnReport(*evt.Report)
	case schema.KindAuthAck:
		if evt.Auth.Authenticated {
			s.markAuthenticated()
		} else {
			observability.Log().Error("authentication rejected",
				observability.F("exchange", s.cfg.Exchange),
			)
		}
	case schema.KindReferenceData:
		s.books.SetReferenceData(*evt.Reference)
		s.markReferenceLoaded()
	case schema.KindError:
		observability.Log().Warn("exchange error",
			observability.F("exchange", s.cfg.Exchange),
			observability.F("error", evt.Err.Error()),
		)
	}
}

func (s *Session) markAuthenticated() {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	s.authenticated = true
	becameAuthenticated := s.state == StateAuthenticating
	if becameAuthenticated {
		s.state = StateAuthenticated
	}
	fire := s.readyCheckLocked()
	s.mu.Unlock()

	if becameAuthenticated && !fire {
		s.stateFeed.Publish(StateAuthenticated)
	}
	if fire {
		s.fireReady()
	}
}

func (s *Session) markReferenceLoaded() {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	s.refLoaded = true
	fire := s.readyCheckLocked()
	s.mu.Unlock()

	if fire {
		s.fireReady()
	}
}

// readyCheckLocked is idempotent and side-effect-free until both
// preconditions hold. It reports true exactly once per session no matter
// how often the preconditions are re-signaled.
func (s *Session) readyCheckLocked() bool {
	if s.readyFired || !s.authenticated || !s.refLoaded {
		return false
	}
	s.readyFired = true
	s.state = StateReady
	return true
}

func (s *Session) fireReady() {
	s.stateFeed.Publish(StateReady)
	observability.Log().Info("session ready", observability.F("exchange", s.cfg.Exchange))
	s.readyFeed.Publish(struct{}{})
}

// handleDisconnect runs the fallback-to-disconnected transition: books are
// invalidated (no sequence carry-over across sessions) and pending order
// mutations are downgraded for external reconciliation.
func (s *Session) handleDisconnect(cause error) {
	if cause != nil && !errors.Is(cause, context.Canceled) {
		observability.Log().Warn("connection lost",
			observability.F("exchange", s.cfg.Exchange),
			observability.F("error", cause.Error()),
		)
	}
	s.mu.Lock()
	s.conn = nil
	// Frames from the dead connection may still sit in the inbound queue;
	// bumping the epoch fences them out of the next connection.
	s.epoch++
	s.authenticated = false
	s.refLoaded = false
	s.readyFired = false
	s.mu.Unlock()
	s.setState(StateDisconnected)

	s.books.InvalidateAll()
	s.tracker.ResetPendingMutations()
}

func (s *Session) requestBookResync(pair schema.Pair) {
	method, params := s.builder.BuildSubscribeOrderbook(pair)
	if _, err := s.Send(s.commandCtx(), method, params); err != nil {
		observability.Log().Warn("book resync request failed",
			observability.F("pair", pair),
			observability.F("error", err.Error()),
		)
	}
}

func (s *Session) setState(next State) {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	s.mu.Lock()
	if s.state == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.stateFeed.Publish(next)
}

func (s *Session) sleep(d time.Duration) bool {
	if d == backoff.Stop {
		d = maxReconnectInterval
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
