// Package hitbtc adapts the HitBTC v2 websocket API to the normalized
// session capabilities: a frame mapper for the inbound stream and a command
// builder for the outbound one.
package hitbtc

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/tradecore/errs"
	"github.com/quantfeed/tradecore/internal/schema"
)

// ExchangeName identifies the adapter in logs and errors.
const ExchangeName = "hitbtc"

type wsFrame struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *wsError        `json:"error"`
	ID     string          `json:"id"`
}

type wsError struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

type wsLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type wsBookParams struct {
	Ask      []wsLevel `json:"ask"`
	Bid      []wsLevel `json:"bid"`
	Symbol   string    `json:"symbol"`
	Sequence uint64    `json:"sequence"`
}

type wsCandle struct {
	Timestamp   string          `json:"timestamp"`
	Open        decimal.Decimal `json:"open"`
	Close       decimal.Decimal `json:"close"`
	Min         decimal.Decimal `json:"min"`
	Max         decimal.Decimal `json:"max"`
	Volume      decimal.Decimal `json:"volume"`
	VolumeQuote decimal.Decimal `json:"volumeQuote"`
}

type wsCandleParams struct {
	Data   []wsCandle `json:"data"`
	Symbol string     `json:"symbol"`
	Period string     `json:"period"`
}

type wsReport struct {
	ClientOrderID                string          `json:"clientOrderId"`
	OriginalRequestClientOrderID string          `json:"originalRequestClientOrderId"`
	Symbol                       string          `json:"symbol"`
	Side                         string          `json:"side"`
	Status                       string          `json:"status"`
	Price                        decimal.Decimal `json:"price"`
	Quantity                     decimal.Decimal `json:"quantity"`
	CumQuantity                  decimal.Decimal `json:"cumQuantity"`
	ReportType                   string          `json:"reportType"`
	UpdatedAt                    string          `json:"updatedAt"`
}

type wsSymbol struct {
	ID                string          `json:"id"`
	BaseCurrency      string          `json:"baseCurrency"`
	QuoteCurrency     string          `json:"quoteCurrency"`
	TickSize          decimal.Decimal `json:"tickSize"`
	QuantityIncrement decimal.Decimal `json:"quantityIncrement"`
}

// Mapper normalizes HitBTC frames into session events. It learns the
// exchange's concatenated symbol names ("ETHBTC") from the getSymbols
// response and resolves them back to canonical pairs afterwards.
type Mapper struct {
	mu      sync.RWMutex
	symbols map[string]schema.Pair
}

// NewMapper constructs an empty mapper; symbols are learned from the
// reference data response.
func NewMapper() *Mapper {
	return &Mapper{symbols: make(map[string]schema.Pair)}
}

// OnReceive classifies one raw frame. Frames that carry nothing of interest
// yield no events and no error.
func (m *Mapper) OnReceive(raw []byte) ([]schema.Event, error) {
	var f wsFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithMessage("decode frame"), errs.WithCause(err))
	}

	if f.Error != nil {
		e := errs.New(ExchangeName, errs.CodeExchange,
			errs.WithMessage(f.Error.Message),
			errs.WithRawCode(strconv.Itoa(f.Error.Code)),
			errs.WithRawMessage(f.Error.Description),
		)
		return []schema.Event{{Kind: schema.KindError, Err: e}}, nil
	}

	switch f.Method {
	case "snapshotOrderbook":
		return m.mapBook(f.Params, true)
	case "updateOrderbook":
		return m.mapBook(f.Params, false)
	case "snapshotCandles":
		return m.mapCandles(f.Params, true)
	case "updateCandles":
		return m.mapCandles(f.Params, false)
	case "report":
		return m.mapReport(f.Params)
	case "activeOrders":
		return m.mapActiveOrders(f.Params)
	case "":
		return m.mapResult(f.Result)
	default:
		return nil, nil
	}
}

func (m *Mapper) mapBook(params json.RawMessage, snapshot bool) ([]schema.Event, error) {
	var p wsBookParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithMessage("decode orderbook params"), errs.WithCause(err))
	}
	pair, err := m.pairFor(p.Symbol)
	if err != nil {
		return nil, err
	}
	bids := mapLevels(p.Bid)
	asks := mapLevels(p.Ask)
	if snapshot {
		return []schema.Event{{Kind: schema.KindBookSnapshot, Snapshot: &schema.BookSnapshot{
			Pair: pair, Sequence: p.Sequence, Bids: bids, Asks: asks,
		}}}, nil
	}
	return []schema.Event{{Kind: schema.KindBookIncrement, Increment: &schema.BookIncrement{
		Pair: pair, Sequence: p.Sequence, Bids: bids, Asks: asks,
	}}}, nil
}

func (m *Mapper) mapCandles(params json.RawMessage, snapshot bool) ([]schema.Event, error) {
	var p wsCandleParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithMessage("decode candle params"), errs.WithCause(err))
	}
	pair, err := m.pairFor(p.Symbol)
	if err != nil {
		return nil, err
	}
	interval, ok := schema.IntervalFromCode(p.Period)
	if !ok {
		return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithPair(string(pair)), errs.WithMessage("unknown candle period "+p.Period))
	}

	candles := make([]schema.Candle, 0, len(p.Data))
	for _, c := range p.Data {
		mapped, err := mapCandle(c, pair, interval)
		if err != nil {
			return nil, err
		}
		candles = append(candles, mapped)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	if snapshot {
		return []schema.Event{{Kind: schema.KindCandleHistory, History: &schema.CandleHistory{
			Pair: pair, Interval: interval, Candles: candles,
		}}}, nil
	}
	// Live update frames carry the single in-progress bucket; when the
	// exchange batches, only the most recent entry is still current.
	latest := candles[len(candles)-1]
	return []schema.Event{{Kind: schema.KindCandle, Candle: &latest}}, nil
}

func (m *Mapper) mapReport(params json.RawMessage) ([]schema.Event, error) {
	var r wsReport
	if err := json.Unmarshal(params, &r); err != nil {
		return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithMessage("decode report"), errs.WithCause(err))
	}
	report, err := m.normalizeReport(r)
	if err != nil {
		return nil, err
	}
	return []schema.Event{{Kind: schema.KindReport, Report: &report}}, nil
}

// mapActiveOrders fans a bulk order sync out into individual new-order
// reports, which reconciles tracker state after a reconnect.
func (m *Mapper) mapActiveOrders(params json.RawMessage) ([]schema.Event, error) {
	var rs []wsReport
	if err := json.Unmarshal(params, &rs); err != nil {
		return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithMessage("decode active orders"), errs.WithCause(err))
	}
	events := make([]schema.Event, 0, len(rs))
	for _, r := range rs {
		report, err := m.normalizeReport(r)
		if err != nil {
			return nil, err
		}
		if report.Kind == "status" {
			report.Kind = schema.ReportNew
		}
		events = append(events, schema.Event{Kind: schema.KindReport, Report: &report})
	}
	return events, nil
}

// mapResult classifies correlated responses by payload shape: a boolean is
// the login acknowledgement, an object array is the getSymbols response.
// Subscription confirmations re-acknowledge authentication, which the
// session treats idempotently.
func (m *Mapper) mapResult(result json.RawMessage) ([]schema.Event, error) {
	trimmed := strings.TrimSpace(string(result))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if trimmed == "true" || trimmed == "false" {
		return []schema.Event{{Kind: schema.KindAuthAck, Auth: &schema.AuthAck{Authenticated: trimmed == "true"}}}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var symbols []wsSymbol
		if err := json.Unmarshal(result, &symbols); err != nil {
			return nil, errs.New(ExchangeName, errs.CodeInvalid, errs.WithMessage("decode symbols"), errs.WithCause(err))
		}
		ref := m.learnSymbols(symbols)
		return []schema.Event{{Kind: schema.KindReferenceData, Reference: &ref}}, nil
	}

	return nil, nil
}

func (m *Mapper) learnSymbols(symbols []wsSymbol) schema.ReferenceData {
	ref := schema.ReferenceData{Pairs: make([]schema.TradeablePair, 0, len(symbols))}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range symbols {
		pair := schema.Pair(strings.ToUpper(s.BaseCurrency) + "-" + strings.ToUpper(s.QuoteCurrency))
		m.symbols[s.ID] = pair
		ref.Pairs = append(ref.Pairs, schema.TradeablePair{
			Pair:              pair,
			TickSize:          s.TickSize,
			QuantityIncrement: s.QuantityIncrement,
		})
	}
	return ref
}

func (m *Mapper) pairFor(symbol string) (schema.Pair, error) {
	m.mu.RLock()
	pair, ok := m.symbols[symbol]
	m.mu.RUnlock()
	if !ok {
		return "", errs.UnknownPair(ExchangeName, symbol)
	}
	return pair, nil
}

func (m *Mapper) normalizeReport(r wsReport) (schema.OrderReport, error) {
	pair, err := m.pairFor(r.Symbol)
	if err != nil {
		return schema.OrderReport{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		ts = time.Time{}
	}
	return schema.OrderReport{
		ClientOrderID:         r.ClientOrderID,
		OriginalClientOrderID: r.OriginalRequestClientOrderID,
		Pair:                  pair,
		Side:                  schema.Side(r.Side),
		Kind:                  schema.ReportKind(r.ReportType),
		Status:                mapStatus(r.Status),
		Price:                 r.Price,
		Quantity:              r.Quantity,
		Filled:                r.CumQuantity,
		Timestamp:             ts,
	}, nil
}

func mapStatus(status string) schema.OrderStatus {
	switch status {
	case "new":
		return schema.StatusOpen
	case "partiallyFilled":
		return schema.StatusPartiallyFilled
	case "filled":
		return schema.StatusFilled
	case "canceled":
		return schema.StatusCanceled
	case "expired":
		return schema.StatusExpired
	default:
		return schema.OrderStatus(status)
	}
}

func mapLevels(levels []wsLevel) []schema.PriceLevel {
	out := make([]schema.PriceLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, schema.PriceLevel{Price: l.Price, Quantity: l.Size})
	}
	return out
}

func mapCandle(c wsCandle, pair schema.Pair, interval schema.Interval) (schema.Candle, error) {
	ts, err := time.Parse(time.RFC3339Nano, c.Timestamp)
	if err != nil {
		return schema.Candle{}, errs.New(ExchangeName, errs.CodeInvalid,
			errs.WithPair(string(pair)),
			errs.WithMessage("candle timestamp"),
			errs.WithCause(err),
		)
	}
	return schema.Candle{
		Pair:     pair,
		Interval: interval,
		OpenTime: ts.UTC(),
		Open:     c.Open,
		High:     c.Max,
		Low:      c.Min,
		Close:    c.Close,
		Volume:   c.Volume,
	}, nil
}
