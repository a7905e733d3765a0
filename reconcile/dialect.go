package reconcile

import (
	"strings"

	"exec-engine-go/order"
)

// ExecType 用户数据流中的执行类型。
type ExecType string

const (
	ExecNew             ExecType = "NEW"
	ExecCanceled        ExecType = "CANCELED"
	ExecCalculated      ExecType = "CALCULATED" // 强平
	ExecExpired         ExecType = "EXPIRED"
	ExecTrade           ExecType = "TRADE"
	ExecAmendment       ExecType = "AMENDMENT"
	ExecRejected        ExecType = "REJECTED"
	ExecReplaced        ExecType = "REPLACED"
	ExecTradePrevention ExecType = "TRADE_PREVENTION"
)

// Dialect 单个场所/市场类型的枚举翻译表。新增场所只需新增一张表。
type Dialect struct {
	Name string

	Sides        map[string]order.Side
	OrderTypes   map[string]order.Type
	Statuses     map[string]order.Status
	TimeInForces map[string]order.TimeInForce
	TriggerTypes map[string]order.TriggerType
	ExecTypes    map[string]ExecType

	// 表示只做 maker 的 TIF 或订单类型
	PostOnlyTIF  map[string]bool
	PostOnlyType map[string]bool

	// 下单方向的编码表
	WireTypes map[order.Type]string
	WireTIF   map[order.TimeInForce]string
	// 只做 maker 时使用的 TIF / 订单类型，空表示不支持
	WirePostOnlyTIF  string
	WirePostOnlyType string
}

// BinanceFutures USDT 本位合约。
var BinanceFutures = &Dialect{
	Name:  "BINANCE_FUTURES",
	Sides: binanceSides,
	OrderTypes: map[string]order.Type{
		"LIMIT":                order.TypeLimit,
		"MARKET":               order.TypeMarket,
		"STOP":                 order.TypeStopLimit,
		"STOP_MARKET":          order.TypeStopMarket,
		"TAKE_PROFIT":          order.TypeLimitIfTouched,
		"TAKE_PROFIT_MARKET":   order.TypeMarketIfTouched,
		"TRAILING_STOP_MARKET": order.TypeTrailingStopMarket,
	},
	Statuses: map[string]order.Status{
		"NEW":              order.StatusAccepted,
		"PARTIALLY_FILLED": order.StatusPartiallyFilled,
		"FILLED":           order.StatusFilled,
		"CANCELED":         order.StatusCanceled,
		"EXPIRED":          order.StatusExpired,
	},
	TimeInForces: map[string]order.TimeInForce{
		"GTC": order.TimeInForceGTC,
		"IOC": order.TimeInForceIOC,
		"FOK": order.TimeInForceFOK,
		"GTD": order.TimeInForceGTD,
		"GTX": order.TimeInForceGTC,
	},
	TriggerTypes: map[string]order.TriggerType{
		"":               order.TriggerNone,
		"CONTRACT_PRICE": order.TriggerLast,
		"MARK_PRICE":     order.TriggerMark,
	},
	ExecTypes: map[string]ExecType{
		"NEW":        ExecNew,
		"CANCELED":   ExecCanceled,
		"CALCULATED": ExecCalculated,
		"EXPIRED":    ExecExpired,
		"TRADE":      ExecTrade,
		"AMENDMENT":  ExecAmendment,
	},
	PostOnlyTIF: map[string]bool{"GTX": true},
	WireTypes: map[order.Type]string{
		order.TypeLimit:              "LIMIT",
		order.TypeMarket:             "MARKET",
		order.TypeStopLimit:          "STOP",
		order.TypeStopMarket:         "STOP_MARKET",
		order.TypeLimitIfTouched:     "TAKE_PROFIT",
		order.TypeMarketIfTouched:    "TAKE_PROFIT_MARKET",
		order.TypeTrailingStopMarket: "TRAILING_STOP_MARKET",
	},
	WireTIF: map[order.TimeInForce]string{
		order.TimeInForceGTC: "GTC",
		order.TimeInForceIOC: "IOC",
		order.TimeInForceFOK: "FOK",
		order.TimeInForceGTD: "GTD",
	},
	WirePostOnlyTIF: "GTX",
}

// BinanceSpot 现货。
var BinanceSpot = &Dialect{
	Name:  "BINANCE_SPOT",
	Sides: binanceSides,
	OrderTypes: map[string]order.Type{
		"LIMIT":             order.TypeLimit,
		"LIMIT_MAKER":       order.TypeLimit,
		"MARKET":            order.TypeMarket,
		"STOP_LOSS":         order.TypeStopMarket,
		"STOP_LOSS_LIMIT":   order.TypeStopLimit,
		"TAKE_PROFIT":       order.TypeMarketIfTouched,
		"TAKE_PROFIT_LIMIT": order.TypeLimitIfTouched,
	},
	Statuses: map[string]order.Status{
		"NEW":              order.StatusAccepted,
		"PARTIALLY_FILLED": order.StatusPartiallyFilled,
		"FILLED":           order.StatusFilled,
		"CANCELED":         order.StatusCanceled,
		"PENDING_CANCEL":   order.StatusPendingCancel,
		"REJECTED":         order.StatusRejected,
		"EXPIRED":          order.StatusExpired,
		"EXPIRED_IN_MATCH": order.StatusExpired,
	},
	TimeInForces: map[string]order.TimeInForce{
		"GTC": order.TimeInForceGTC,
		"IOC": order.TimeInForceIOC,
		"FOK": order.TimeInForceFOK,
	},
	TriggerTypes: map[string]order.TriggerType{
		"": order.TriggerNone,
	},
	ExecTypes: map[string]ExecType{
		"NEW":              ExecNew,
		"CANCELED":         ExecCanceled,
		"REPLACED":         ExecReplaced,
		"REJECTED":         ExecRejected,
		"TRADE":            ExecTrade,
		"EXPIRED":          ExecExpired,
		"TRADE_PREVENTION": ExecTradePrevention,
	},
	PostOnlyType: map[string]bool{"LIMIT_MAKER": true},
	WireTypes: map[order.Type]string{
		order.TypeLimit:           "LIMIT",
		order.TypeMarket:          "MARKET",
		order.TypeStopMarket:      "STOP_LOSS",
		order.TypeStopLimit:       "STOP_LOSS_LIMIT",
		order.TypeMarketIfTouched: "TAKE_PROFIT",
		order.TypeLimitIfTouched:  "TAKE_PROFIT_LIMIT",
	},
	WireTIF: map[order.TimeInForce]string{
		order.TimeInForceGTC: "GTC",
		order.TimeInForceIOC: "IOC",
		order.TimeInForceFOK: "FOK",
	},
	WirePostOnlyType: "LIMIT_MAKER",
}

var binanceSides = map[string]order.Side{
	"BUY":  order.SideBuy,
	"SELL": order.SideSell,
}

func lookup[T any](d *Dialect, field string, table map[string]T, token string) (T, error) {
	if v, ok := table[strings.ToUpper(token)]; ok {
		return v, nil
	}
	var zero T
	return zero, &UnmappedEnumError{Dialect: d.Name, Field: field, Token: token}
}

// Side 翻译买卖方向。
func (d *Dialect) Side(token string) (order.Side, error) {
	return lookup(d, "side", d.Sides, token)
}

// OrderType 翻译订单类型。
func (d *Dialect) OrderType(token string) (order.Type, error) {
	return lookup(d, "order type", d.OrderTypes, token)
}

// Status 翻译订单状态。
func (d *Dialect) Status(token string) (order.Status, error) {
	return lookup(d, "order status", d.Statuses, token)
}

// TimeInForce 翻译有效期类型。
func (d *Dialect) TimeInForce(token string) (order.TimeInForce, error) {
	return lookup(d, "time in force", d.TimeInForces, token)
}

// TriggerType 翻译触发价格类型；空串显式映射为 NONE。
func (d *Dialect) TriggerType(token string) (order.TriggerType, error) {
	return lookup(d, "trigger type", d.TriggerTypes, token)
}

// ExecType 翻译执行类型。
func (d *Dialect) ExecType(token string) (ExecType, error) {
	return lookup(d, "execution type", d.ExecTypes, token)
}

// IsPostOnly 由 TIF 或订单类型推导 post-only。
func (d *Dialect) IsPostOnly(tif, orderType string) bool {
	return d.PostOnlyTIF[strings.ToUpper(tif)] || d.PostOnlyType[strings.ToUpper(orderType)]
}

// WireOrderType 规范订单类型编码为场所值；postOnly 限价单使用场所的 maker 类型。
func (d *Dialect) WireOrderType(t order.Type, postOnly bool) (string, error) {
	if postOnly && t == order.TypeLimit && d.WirePostOnlyType != "" {
		return d.WirePostOnlyType, nil
	}
	if s, ok := d.WireTypes[t]; ok {
		return s, nil
	}
	return "", &UnmappedEnumError{Dialect: d.Name, Field: "order type", Token: string(t)}
}

// WireTimeInForce 规范 TIF 编码为场所值。返回空串表示该订单类型不需要 TIF。
func (d *Dialect) WireTimeInForce(tif order.TimeInForce, postOnly bool) (string, error) {
	if postOnly && d.WirePostOnlyTIF != "" {
		return d.WirePostOnlyTIF, nil
	}
	if postOnly && d.WirePostOnlyType != "" {
		return "", nil
	}
	if s, ok := d.WireTIF[tif]; ok {
		return s, nil
	}
	return "", &UnmappedEnumError{Dialect: d.Name, Field: "time in force", Token: string(tif)}
}
