package reconcile

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

// BinanceOrder 订单查询接口返回的订单（合约与现货共用，缺失字段为空）。
type BinanceOrder struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Price               string `json:"price"`
	AvgPrice            string `json:"avgPrice"`            // 仅合约
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"` // 仅现货
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	StopPrice           string `json:"stopPrice"`
	WorkingType         string `json:"workingType"`
	ReduceOnly          bool   `json:"reduceOnly"`
	Time                int64  `json:"time"`
	UpdateTime          int64  `json:"updateTime"`
}

// BinanceFuturesTrade 合约 userTrades 记录。
type BinanceFuturesTrade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Maker           bool   `json:"maker"`
	Time            int64  `json:"time"`
}

// BinanceSpotTrade 现货 myTrades 记录，方向由 isBuyer 表示。
type BinanceSpotTrade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	IsBuyer         bool   `json:"isBuyer"`
	IsMaker         bool   `json:"isMaker"`
	Time            int64  `json:"time"`
}

// BinancePosition 合约 positionRisk 记录。
type BinancePosition struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
	PositionSide     string `json:"positionSide"`
}

// BinanceOrderUpdateMsg 用户数据流 ORDER_TRADE_UPDATE 事件。
type BinanceOrderUpdateMsg struct {
	EventType       string                 `json:"e"`
	EventTime       int64                  `json:"E"`
	TransactionTime int64                  `json:"T"`
	Order           BinanceOrderUpdateBody `json:"o"`
}

// BinanceOrderUpdateBody 订单更新内容。
type BinanceOrderUpdateBody struct {
	Symbol          string `json:"s"`
	ClientOrderID   string `json:"c"`
	Side            string `json:"S"`
	Type            string `json:"o"`
	TimeInForce     string `json:"f"`
	OrigQty         string `json:"q"`
	Price           string `json:"p"`
	AvgPrice        string `json:"ap"`
	StopPrice       string `json:"sp"`
	ExecType        string `json:"x"`
	Status          string `json:"X"`
	OrderID         int64  `json:"i"`
	LastQty         string `json:"l"`
	CumQty          string `json:"z"`
	LastPx          string `json:"L"`
	CommissionAsset string `json:"N"`
	Commission      string `json:"n"`
	TradeTime       int64  `json:"T"`
	TradeID         int64  `json:"t"`
	Maker           bool   `json:"m"`
	ReduceOnly      bool   `json:"R"`
	WorkingType     string `json:"wt"`
}

// ParseOrderStatusReport 翻译订单快照。
func ParseOrderStatusReport(
	d *Dialect,
	accountID inventory.AccountID,
	instrumentID market.InstrumentID,
	raw BinanceOrder,
	reportID uuid.UUID,
	tsInit time.Time,
) (OrderStatusReport, error) {
	var r OrderStatusReport
	var err error

	if r.Side, err = d.Side(raw.Side); err != nil {
		return OrderStatusReport{}, err
	}
	if r.Type, err = d.OrderType(raw.Type); err != nil {
		return OrderStatusReport{}, err
	}
	if r.TimeInForce, err = d.TimeInForce(raw.TimeInForce); err != nil {
		return OrderStatusReport{}, err
	}
	if r.Status, err = d.Status(raw.Status); err != nil {
		return OrderStatusReport{}, err
	}
	if r.TriggerType, err = d.TriggerType(raw.WorkingType); err != nil {
		return OrderStatusReport{}, err
	}

	if r.Price, err = required(d, "price", raw.Price); err != nil {
		return OrderStatusReport{}, err
	}
	if r.Quantity, err = required(d, "origQty", raw.OrigQty); err != nil {
		return OrderStatusReport{}, err
	}
	if r.FilledQty, err = required(d, "executedQty", raw.ExecutedQty); err != nil {
		return OrderStatusReport{}, err
	}
	trigger, err := optional(d, "stopPrice", raw.StopPrice)
	if err != nil {
		return OrderStatusReport{}, err
	}
	avg, err := averagePrice(d, raw, r.FilledQty)
	if err != nil {
		return OrderStatusReport{}, err
	}

	r.AccountID = accountID
	r.InstrumentID = instrumentID
	r.ClientOrderID = order.ClientOrderID(raw.ClientOrderID)
	r.VenueOrderID = order.VenueOrderID(strconv.FormatInt(raw.OrderID, 10))
	r.AvgPx = positive(avg)
	r.TriggerPrice = positive(trigger)
	r.PostOnly = d.IsPostOnly(raw.TimeInForce, raw.Type)
	r.ReduceOnly = raw.ReduceOnly
	r.ReportID = reportID
	r.TsAccepted = millis(raw.Time)
	r.TsLast = millis(raw.UpdateTime)
	r.TsInit = tsInit
	return r, nil
}

// 合约直接给出 avgPrice；现货由累计成交额 / 成交量推出。
func averagePrice(d *Dialect, raw BinanceOrder, filled decimal.Decimal) (decimal.Decimal, error) {
	if raw.AvgPrice != "" {
		return required(d, "avgPrice", raw.AvgPrice)
	}
	quote, err := optional(d, "cummulativeQuoteQty", raw.CummulativeQuoteQty)
	if err != nil || !filled.IsPositive() {
		return decimal.Zero, err
	}
	return quote.Div(filled), nil
}

// ParseFuturesTradeReport 翻译合约成交记录。
func ParseFuturesTradeReport(
	d *Dialect,
	accountID inventory.AccountID,
	instrumentID market.InstrumentID,
	raw BinanceFuturesTrade,
	reportID uuid.UUID,
	tsInit time.Time,
) (TradeReport, error) {
	side, err := d.Side(raw.Side)
	if err != nil {
		return TradeReport{}, err
	}
	return tradeReport(d, accountID, instrumentID, tradeFields{
		id: raw.ID, orderID: raw.OrderID, side: side,
		qty: raw.Qty, price: raw.Price,
		commission: raw.Commission, commissionAsset: raw.CommissionAsset,
		maker: raw.Maker, time: raw.Time,
	}, reportID, tsInit)
}

// ParseSpotTradeReport 翻译现货成交记录。
func ParseSpotTradeReport(
	d *Dialect,
	accountID inventory.AccountID,
	instrumentID market.InstrumentID,
	raw BinanceSpotTrade,
	reportID uuid.UUID,
	tsInit time.Time,
) (TradeReport, error) {
	side := order.SideSell
	if raw.IsBuyer {
		side = order.SideBuy
	}
	return tradeReport(d, accountID, instrumentID, tradeFields{
		id: raw.ID, orderID: raw.OrderID, side: side,
		qty: raw.Qty, price: raw.Price,
		commission: raw.Commission, commissionAsset: raw.CommissionAsset,
		maker: raw.IsMaker, time: raw.Time,
	}, reportID, tsInit)
}

type tradeFields struct {
	id, orderID     int64
	side            order.Side
	qty, price      string
	commission      string
	commissionAsset string
	maker           bool
	time            int64
}

func tradeReport(d *Dialect, accountID inventory.AccountID, instrumentID market.InstrumentID, f tradeFields, reportID uuid.UUID, tsInit time.Time) (TradeReport, error) {
	qty, err := required(d, "qty", f.qty)
	if err != nil {
		return TradeReport{}, err
	}
	px, err := required(d, "price", f.price)
	if err != nil {
		return TradeReport{}, err
	}
	fee, err := optional(d, "commission", f.commission)
	if err != nil {
		return TradeReport{}, err
	}
	return TradeReport{
		AccountID:    accountID,
		InstrumentID: instrumentID,
		VenueOrderID: order.VenueOrderID(strconv.FormatInt(f.orderID, 10)),
		TradeID:      order.TradeID(strconv.FormatInt(f.id, 10)),
		Side:         f.side,
		LastQty:      qty,
		LastPx:       px,
		Commission:   market.NewMoney(fee, f.commissionAsset),
		Liquidity:    liquidity(f.maker),
		ReportID:     reportID,
		TsEvent:      millis(f.time),
		TsInit:       tsInit,
	}, nil
}

// ParsePositionStatusReport 翻译合约仓位。净仓位 > 0 为 LONG，否则（含 0）为 SHORT。
func ParsePositionStatusReport(
	d *Dialect,
	accountID inventory.AccountID,
	instrumentID market.InstrumentID,
	raw BinancePosition,
	reportID uuid.UUID,
	tsInit time.Time,
) (PositionStatusReport, error) {
	net, err := required(d, "positionAmt", raw.PositionAmt)
	if err != nil {
		return PositionStatusReport{}, err
	}
	side := inventory.PositionShort
	if net.IsPositive() {
		side = inventory.PositionLong
	}
	return PositionStatusReport{
		AccountID:    accountID,
		InstrumentID: instrumentID,
		Side:         side,
		Quantity:     net.Abs(),
		ReportID:     reportID,
		TsLast:       tsInit,
		TsInit:       tsInit,
	}, nil
}

// ParseOrderUpdate 把用户数据流订单更新翻译为规范订单事件。
// 事件的 ClientOrderID 取消息中的 c 字段。
func ParseOrderUpdate(
	d *Dialect,
	accountID inventory.AccountID,
	instrumentID market.InstrumentID,
	msg BinanceOrderUpdateMsg,
	eventID uuid.UUID,
	tsInit time.Time,
) (order.Event, error) {
	o := msg.Order
	exec, err := d.ExecType(o.ExecType)
	if err != nil {
		return nil, err
	}
	status, err := d.Status(o.Status)
	if err != nil {
		return nil, err
	}
	ts := millis(msg.TransactionTime)
	if o.TradeTime != 0 {
		ts = millis(o.TradeTime)
	}
	h := order.EventHeader{
		EventID:       eventID,
		ClientOrderID: order.ClientOrderID(o.ClientOrderID),
		VenueOrderID:  order.VenueOrderID(strconv.FormatInt(o.OrderID, 10)),
		AccountID:     accountID,
		InstrumentID:  instrumentID,
		TsEvent:       ts,
		TsInit:        tsInit,
	}

	switch exec {
	case ExecNew:
		return order.Accepted{EventHeader: h}, nil
	case ExecCanceled:
		return order.Canceled{EventHeader: h}, nil
	case ExecExpired, ExecTradePrevention:
		return order.Expired{EventHeader: h}, nil
	case ExecRejected:
		return order.Rejected{EventHeader: h, Reason: "venue rejected order"}, nil
	case ExecAmendment, ExecReplaced:
		price, err := required(d, "p", o.Price)
		if err != nil {
			return nil, err
		}
		qty, err := required(d, "q", o.OrigQty)
		if err != nil {
			return nil, err
		}
		return order.Updated{EventHeader: h, Price: &price, Quantity: &qty}, nil
	case ExecTrade, ExecCalculated:
		fill, err := updateFill(d, o)
		if err != nil {
			return nil, err
		}
		if status == order.StatusFilled {
			return order.Filled{EventHeader: h, Fill: fill}, nil
		}
		return order.PartiallyFilled{EventHeader: h, Fill: fill}, nil
	default:
		return nil, &UnmappedEnumError{Dialect: d.Name, Field: "execution type", Token: o.ExecType}
	}
}

func updateFill(d *Dialect, o BinanceOrderUpdateBody) (order.Fill, error) {
	side, err := d.Side(o.Side)
	if err != nil {
		return order.Fill{}, err
	}
	qty, err := required(d, "l", o.LastQty)
	if err != nil {
		return order.Fill{}, err
	}
	px, err := required(d, "L", o.LastPx)
	if err != nil {
		return order.Fill{}, err
	}
	fee, err := optional(d, "n", o.Commission)
	if err != nil {
		return order.Fill{}, err
	}
	return order.Fill{
		TradeID:    order.TradeID(strconv.FormatInt(o.TradeID, 10)),
		Side:       side,
		LastQty:    qty,
		LastPx:     px,
		Commission: market.NewMoney(fee, o.CommissionAsset),
		Liquidity:  liquidity(o.Maker),
	}, nil
}

func required(d *Dialect, field, text string) (decimal.Decimal, error) {
	if text == "" {
		return decimal.Zero, malformed(d.Name, field, text, fmt.Errorf("missing"))
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, malformed(d.Name, field, text, err)
	}
	return v, nil
}

func optional(d *Dialect, field, text string) (decimal.Decimal, error) {
	if text == "" {
		return decimal.Zero, nil
	}
	return required(d, field, text)
}

func positive(v decimal.Decimal) *decimal.Decimal {
	if !v.IsPositive() {
		return nil
	}
	return &v
}

func liquidity(maker bool) order.LiquiditySide {
	if maker {
		return order.LiquidityMaker
	}
	return order.LiquidityTaker
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
