package hitbtc

import (
	"github.com/shopspring/decimal"

	"github.com/quantfeed/tradecore/internal/schema"
	"github.com/quantfeed/tradecore/internal/session"
)

// Commands builds the HitBTC v2 websocket command payloads.
type Commands struct{}

var _ session.CommandBuilder = Commands{}

// NewCommands returns the HitBTC command builder.
func NewCommands() Commands { return Commands{} }

type newOrderParams struct {
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
}

type cancelOrderParams struct {
	ClientOrderID string `json:"clientOrderId"`
}

type cancelReplaceParams struct {
	ClientOrderID   string `json:"clientOrderId"`
	RequestClientID string `json:"requestClientId"`
	Price           string `json:"price"`
	Quantity        string `json:"quantity"`
	StrictValidate  bool   `json:"strictValidate"`
}

type loginParams struct {
	Algo string `json:"algo"`
	PKey string `json:"pKey"`
	SKey string `json:"sKey"`
}

type subscribeBookParams struct {
	Symbol string `json:"symbol"`
}

type subscribeCandlesParams struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`
}

// BuildCreate emits a limit order placement.
func (Commands) BuildCreate(o schema.Order) (string, any) {
	return "newOrder", newOrderParams{
		ClientOrderID: o.ClientOrderID,
		Symbol:        symbolFor(o.Pair),
		Side:          string(o.Side),
		Type:          "limit",
		Price:         o.Price.String(),
		Quantity:      o.Quantity.String(),
	}
}

// BuildCancel emits a cancel for the order's client id.
func (Commands) BuildCancel(o schema.Order) (string, any) {
	return "cancelOrder", cancelOrderParams{ClientOrderID: o.ClientOrderID}
}

// BuildAdjust emits an atomic cancel-replace carrying the successor id.
func (Commands) BuildAdjust(o schema.Order, requestID string, price, qty decimal.Decimal) (string, any) {
	return "cancelReplaceOrder", cancelReplaceParams{
		ClientOrderID:   o.ClientOrderID,
		RequestClientID: requestID,
		Price:           price.String(),
		Quantity:        qty.String(),
		StrictValidate:  true,
	}
}

// BuildLogin emits BASIC authentication with the api key pair.
func (Commands) BuildLogin(publicKey, secretKey string) (string, any) {
	return "login", loginParams{Algo: "BASIC", PKey: publicKey, SKey: secretKey}
}

// BuildReferenceRequest asks for the tradeable symbol list.
func (Commands) BuildReferenceRequest() (string, any) {
	return "getSymbols", nil
}

// BuildSubscribeReports opens the private order report stream.
func (Commands) BuildSubscribeReports() (string, any) {
	return "subscribeReports", nil
}

// BuildSubscribeOrderbook opens the depth stream for the pair.
func (Commands) BuildSubscribeOrderbook(pair schema.Pair) (string, any) {
	return "subscribeOrderbook", subscribeBookParams{Symbol: symbolFor(pair)}
}

// BuildSubscribeCandles opens candle history and updates for the pair.
func (Commands) BuildSubscribeCandles(pair schema.Pair, interval schema.Interval) (string, any) {
	return "subscribeCandles", subscribeCandlesParams{Symbol: symbolFor(pair), Period: interval.Code}
}

// symbolFor converts a canonical pair to HitBTC's concatenated form.
func symbolFor(pair schema.Pair) string {
	return pair.Base() + pair.Quote()
}
