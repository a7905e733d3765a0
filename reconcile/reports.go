// Package reconcile 把场所原始记录翻译为规范的订单、成交与仓位报告。
// 包内函数均为纯函数：相同输入（含报告编号与时间戳）得到相同输出。
package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

// OrderStatusReport 订单状态快照。
type OrderStatusReport struct {
	AccountID     inventory.AccountID
	InstrumentID  market.InstrumentID
	ClientOrderID order.ClientOrderID // 场所未回传时为空
	VenueOrderID  order.VenueOrderID
	Side          order.Side
	Type          order.Type
	TimeInForce   order.TimeInForce
	Status        order.Status
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	FilledQty     decimal.Decimal
	AvgPx         *decimal.Decimal // 仅当 > 0
	TriggerPrice  *decimal.Decimal // 仅当 > 0
	TriggerType   order.TriggerType
	PostOnly      bool
	ReduceOnly    bool
	ReportID      uuid.UUID
	TsAccepted    time.Time
	TsLast        time.Time
	TsInit        time.Time
}

// TradeReport 成交快照。
type TradeReport struct {
	AccountID    inventory.AccountID
	InstrumentID market.InstrumentID
	VenueOrderID order.VenueOrderID
	TradeID      order.TradeID
	Side         order.Side
	LastQty      decimal.Decimal
	LastPx       decimal.Decimal
	Commission   market.Money
	Liquidity    order.LiquiditySide
	ReportID     uuid.UUID
	TsEvent      time.Time
	TsInit       time.Time
}

// PositionStatusReport 仓位快照。
type PositionStatusReport struct {
	AccountID    inventory.AccountID
	InstrumentID market.InstrumentID
	Side         inventory.PositionSide
	Quantity     decimal.Decimal
	ReportID     uuid.UUID
	TsLast       time.Time
	TsInit       time.Time
}
