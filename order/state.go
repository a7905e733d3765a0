package order

// Status represents order lifecycle.
type Status string

const (
	StatusSubmitted       Status = "SUBMITTED"
	StatusAccepted        Status = "ACCEPTED"
	StatusRejected        Status = "REJECTED"
	StatusPendingUpdate   Status = "PENDING_UPDATE"
	StatusPendingCancel   Status = "PENDING_CANCEL"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCanceled        Status = "CANCELED"
	StatusExpired         Status = "EXPIRED"
)

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 反方向。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Type 订单类型。
type Type string

const (
	TypeMarket             Type = "MARKET"
	TypeLimit              Type = "LIMIT"
	TypeStopMarket         Type = "STOP_MARKET"
	TypeStopLimit          Type = "STOP_LIMIT"
	TypeMarketIfTouched    Type = "MARKET_IF_TOUCHED"
	TypeLimitIfTouched     Type = "LIMIT_IF_TOUCHED"
	TypeTrailingStopMarket Type = "TRAILING_STOP_MARKET"
)

// HasPrice 该类型是否带限价。
func (t Type) HasPrice() bool {
	switch t {
	case TypeLimit, TypeStopLimit, TypeLimitIfTouched:
		return true
	default:
		return false
	}
}

// HasTrigger 该类型是否带触发价。
func (t Type) HasTrigger() bool {
	switch t {
	case TypeStopMarket, TypeStopLimit, TypeMarketIfTouched, TypeLimitIfTouched, TypeTrailingStopMarket:
		return true
	default:
		return false
	}
}

// TimeInForce 有效期类型。
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
	TimeInForceGTD TimeInForce = "GTD"
	TimeInForceDay TimeInForce = "DAY"
)

// TriggerType 触发价参考来源。
type TriggerType string

const (
	TriggerNone    TriggerType = "NONE"
	TriggerDefault TriggerType = "DEFAULT"
	TriggerLast    TriggerType = "LAST"
	TriggerMark    TriggerType = "MARK"
	TriggerBidAsk  TriggerType = "BID_ASK"
)

// LiquiditySide 成交时是挂单方(MAKER)还是吃单方(TAKER)。
type LiquiditySide string

const (
	LiquidityNone  LiquiditySide = "NONE"
	LiquidityMaker LiquiditySide = "MAKER"
	LiquidityTaker LiquiditySide = "TAKER"
)

// ClientOrderID 由下单方分配。
type ClientOrderID string

// VenueOrderID 由交易场所分配。
type VenueOrderID string

// TradeID 成交编号，用于成交幂等。
type TradeID string
