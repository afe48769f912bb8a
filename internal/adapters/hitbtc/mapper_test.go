package hitbtc

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfeed/tradecore/errs"
	"github.com/quantfeed/tradecore/internal/schema"
)

const symbolsResult = `{
	"jsonrpc": "2.0",
	"result": [
		{"id": "ETHBTC", "baseCurrency": "ETH", "quoteCurrency": "BTC", "quantityIncrement": "0.001", "tickSize": "0.000001"},
		{"id": "BTCUSD", "baseCurrency": "BTC", "quoteCurrency": "USD", "quantityIncrement": "0.00001", "tickSize": "0.01"}
	],
	"id": "5c3d9f43"
}`

// seededMapper returns a mapper that has already consumed the getSymbols
// response, the state every market data frame depends on.
func seededMapper(t *testing.T) *Mapper {
	t.Helper()
	m := NewMapper()
	events, err := m.OnReceive([]byte(symbolsResult))
	require.NoError(t, err)
	require.Len(t, events, 1)
	return m
}

func TestMapperSymbolsResult(t *testing.T) {
	m := NewMapper()
	events, err := m.OnReceive([]byte(symbolsResult))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindReferenceData, events[0].Kind)

	ref := events[0].Reference
	require.Len(t, ref.Pairs, 2)
	eth, ok := ref.Find("ETH-BTC")
	require.True(t, ok)
	assert.True(t, eth.TickSize.Equal(decimal.RequireFromString("0.000001")))
	assert.True(t, eth.QuantityIncrement.Equal(decimal.RequireFromString("0.001")))
}

func TestMapperLoginResult(t *testing.T) {
	m := NewMapper()

	events, err := m.OnReceive([]byte(`{"jsonrpc":"2.0","result":true,"id":"login-1"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindAuthAck, events[0].Kind)
	assert.True(t, events[0].Auth.Authenticated)

	events, err = m.OnReceive([]byte(`{"jsonrpc":"2.0","result":false,"id":"login-2"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Auth.Authenticated)
}

func TestMapperErrorFrame(t *testing.T) {
	m := NewMapper()
	frame := `{"jsonrpc":"2.0","error":{"code":20001,"message":"Symbol not found","description":"Try GGBTC"},"id":"42"}`

	events, err := m.OnReceive([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindError, events[0].Kind)

	e := events[0].Err
	assert.Equal(t, errs.CodeExchange, e.Code)
	assert.Equal(t, "20001", e.RawCode)
	assert.Contains(t, e.Error(), "Symbol not found")
}

func TestMapperOrderbookFrames(t *testing.T) {
	m := seededMapper(t)

	snapshot := `{"jsonrpc":"2.0","method":"snapshotOrderbook","params":{
		"ask":[{"price":"0.054588","size":"0.245"}],
		"bid":[{"price":"0.054558","size":"0.500"},{"price":"0.054557","size":"0.076"}],
		"symbol":"ETHBTC","sequence":8073827}}`

	events, err := m.OnReceive([]byte(snapshot))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindBookSnapshot, events[0].Kind)

	s := events[0].Snapshot
	assert.Equal(t, schema.Pair("ETH-BTC"), s.Pair)
	assert.Equal(t, uint64(8073827), s.Sequence)
	require.Len(t, s.Bids, 2)
	require.Len(t, s.Asks, 1)
	assert.True(t, s.Bids[0].Price.Equal(decimal.RequireFromString("0.054558")))
	assert.True(t, s.Asks[0].Quantity.Equal(decimal.RequireFromString("0.245")))

	update := `{"jsonrpc":"2.0","method":"updateOrderbook","params":{
		"ask":[{"price":"0.054588","size":"0.000"}],
		"bid":[],
		"symbol":"ETHBTC","sequence":8073828}}`

	events, err = m.OnReceive([]byte(update))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindBookIncrement, events[0].Kind)

	inc := events[0].Increment
	assert.Equal(t, uint64(8073828), inc.Sequence)
	require.Len(t, inc.Asks, 1)
	assert.True(t, inc.Asks[0].Quantity.IsZero())
}

func TestMapperUnknownSymbol(t *testing.T) {
	m := NewMapper()
	frame := `{"jsonrpc":"2.0","method":"snapshotOrderbook","params":{"ask":[],"bid":[],"symbol":"GGBTC","sequence":1}}`

	_, err := m.OnReceive([]byte(frame))
	require.Error(t, err)
	assert.True(t, errs.IsUnknownPair(err))
}

func TestMapperCandleFrames(t *testing.T) {
	m := seededMapper(t)

	snapshot := `{"jsonrpc":"2.0","method":"snapshotCandles","params":{
		"data":[
			{"timestamp":"2018-07-11T10:00:00.000Z","open":"0.054801","close":"0.054625","min":"0.054601","max":"0.054801","volume":"2.5","volumeQuote":"0.1365"},
			{"timestamp":"2018-07-11T10:01:00.000Z","open":"0.054625","close":"0.054700","min":"0.054625","max":"0.054700","volume":"1.0","volumeQuote":"0.0547"}
		],
		"symbol":"ETHBTC","period":"M1"}}`

	events, err := m.OnReceive([]byte(snapshot))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindCandleHistory, events[0].Kind)

	h := events[0].History
	assert.Equal(t, schema.Pair("ETH-BTC"), h.Pair)
	assert.Equal(t, schema.Interval1m, h.Interval)
	require.Len(t, h.Candles, 2)
	first := h.Candles[0]
	assert.Equal(t, time.Date(2018, 7, 11, 10, 0, 0, 0, time.UTC), first.OpenTime)
	assert.True(t, first.High.Equal(decimal.RequireFromString("0.054801")))
	assert.True(t, first.Low.Equal(decimal.RequireFromString("0.054601")))

	update := `{"jsonrpc":"2.0","method":"updateCandles","params":{
		"data":[{"timestamp":"2018-07-11T10:02:00.000Z","open":"0.054700","close":"0.054710","min":"0.054700","max":"0.054715","volume":"0.4","volumeQuote":"0.0219"}],
		"symbol":"ETHBTC","period":"M1"}}`

	events, err = m.OnReceive([]byte(update))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindCandle, events[0].Kind)
	assert.Equal(t, time.Date(2018, 7, 11, 10, 2, 0, 0, time.UTC), events[0].Candle.OpenTime)
}

func TestMapperUnknownCandlePeriod(t *testing.T) {
	m := seededMapper(t)
	frame := `{"jsonrpc":"2.0","method":"snapshotCandles","params":{"data":[{"timestamp":"2018-07-11T10:00:00.000Z"}],"symbol":"ETHBTC","period":"M7"}}`

	_, err := m.OnReceive([]byte(frame))
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestMapperReportFrame(t *testing.T) {
	m := seededMapper(t)

	frame := `{"jsonrpc":"2.0","method":"report","params":{
		"id":"4345697765",
		"clientOrderId":"53b7cf917963464a811a4af426102c19",
		"originalRequestClientOrderId":"9cbe79cb6f864b71a811402a48d4b5b2",
		"symbol":"ETHBTC","side":"sell","status":"partiallyFilled","type":"limit",
		"quantity":"0.010","price":"0.054868","cumQuantity":"0.004",
		"reportType":"trade","updatedAt":"2018-07-11T10:02:21.028Z"}}`

	events, err := m.OnReceive([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, schema.KindReport, events[0].Kind)

	r := events[0].Report
	assert.Equal(t, "53b7cf917963464a811a4af426102c19", r.ClientOrderID)
	assert.Equal(t, "9cbe79cb6f864b71a811402a48d4b5b2", r.OriginalClientOrderID)
	assert.Equal(t, schema.Pair("ETH-BTC"), r.Pair)
	assert.Equal(t, schema.SideSell, r.Side)
	assert.Equal(t, schema.ReportTrade, r.Kind)
	assert.Equal(t, schema.StatusPartiallyFilled, r.Status)
	assert.True(t, r.Filled.Equal(decimal.RequireFromString("0.004")))
	assert.Equal(t, 2018, r.Timestamp.Year())
}

func TestMapperActiveOrders(t *testing.T) {
	m := seededMapper(t)

	frame := `{"jsonrpc":"2.0","method":"activeOrders","params":[
		{"clientOrderId":"order-a","symbol":"ETHBTC","side":"buy","status":"new","quantity":"1","price":"0.05","cumQuantity":"0","reportType":"status","updatedAt":"2018-07-11T10:00:00.000Z"},
		{"clientOrderId":"order-b","symbol":"BTCUSD","side":"sell","status":"partiallyFilled","quantity":"2","price":"6400.00","cumQuantity":"0.5","reportType":"status","updatedAt":"2018-07-11T10:00:01.000Z"}
	]}`

	events, err := m.OnReceive([]byte(frame))
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, evt := range events {
		require.Equal(t, schema.KindReport, evt.Kind)
		assert.Equal(t, schema.ReportNew, evt.Report.Kind)
	}
	assert.Equal(t, schema.StatusOpen, events[0].Report.Status)
	assert.Equal(t, schema.StatusPartiallyFilled, events[1].Report.Status)
	assert.Equal(t, schema.Pair("BTC-USD"), events[1].Report.Pair)
}

func TestMapperIgnoresUnrelatedFrames(t *testing.T) {
	m := NewMapper()

	events, err := m.OnReceive([]byte(`{"jsonrpc":"2.0","method":"ticker","params":{}}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	events, err = m.OnReceive([]byte(`{"jsonrpc":"2.0","result":null,"id":"7"}`))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMapperMalformedFrame(t *testing.T) {
	m := NewMapper()
	_, err := m.OnReceive([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, errs.CodeInvalid))
}
