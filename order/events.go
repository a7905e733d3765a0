package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exec-engine-go/inventory"
	"exec-engine-go/market"
)

// EventType 订单事件类型。
type EventType string

const (
	EventSubmitted       EventType = "OrderSubmitted"
	EventAccepted        EventType = "OrderAccepted"
	EventRejected        EventType = "OrderRejected"
	EventPendingUpdate   EventType = "OrderPendingUpdate"
	EventUpdated         EventType = "OrderUpdated"
	EventModifyRejected  EventType = "OrderModifyRejected"
	EventPendingCancel   EventType = "OrderPendingCancel"
	EventCanceled        EventType = "OrderCanceled"
	EventCancelRejected  EventType = "OrderCancelRejected"
	EventPartiallyFilled EventType = "OrderPartiallyFilled"
	EventFilled          EventType = "OrderFilled"
	EventExpired         EventType = "OrderExpired"
)

// Event 是所有订单事件的公共接口。事件只描述变化，由执行引擎负责应用。
type Event interface {
	Type() EventType
	Header() EventHeader
}

// EventHeader 事件公共字段。
type EventHeader struct {
	EventID       uuid.UUID
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
	AccountID     inventory.AccountID
	InstrumentID  market.InstrumentID
	TsEvent       time.Time
	TsInit        time.Time
}

// NewHeader 以订单当前标识生成事件头。
func NewHeader(o *Order, ts time.Time) EventHeader {
	return EventHeader{
		EventID:       uuid.New(),
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		AccountID:     o.AccountID,
		InstrumentID:  o.InstrumentID,
		TsEvent:       ts,
		TsInit:        ts,
	}
}

func (h EventHeader) Header() EventHeader { return h }

// Fill 成交明细。TradeID 必填，引擎以此去重。
type Fill struct {
	TradeID    TradeID
	Side       Side
	LastQty    decimal.Decimal
	LastPx     decimal.Decimal
	Commission market.Money
	Liquidity  LiquiditySide
}

// Notional 成交金额。
func (f Fill) Notional() decimal.Decimal {
	return f.LastQty.Mul(f.LastPx)
}

type Submitted struct{ EventHeader }

type Accepted struct{ EventHeader }

type Rejected struct {
	EventHeader
	Reason string
}

type PendingUpdate struct{ EventHeader }

// Updated 改单成功，nil 字段表示不变。
type Updated struct {
	EventHeader
	Price        *decimal.Decimal
	Quantity     *decimal.Decimal
	TriggerPrice *decimal.Decimal
}

type ModifyRejected struct {
	EventHeader
	Reason string
}

type PendingCancel struct{ EventHeader }

type Canceled struct{ EventHeader }

type CancelRejected struct {
	EventHeader
	Reason string
}

type PartiallyFilled struct {
	EventHeader
	Fill
}

type Filled struct {
	EventHeader
	Fill
}

type Expired struct{ EventHeader }

func (Submitted) Type() EventType       { return EventSubmitted }
func (Accepted) Type() EventType        { return EventAccepted }
func (Rejected) Type() EventType        { return EventRejected }
func (PendingUpdate) Type() EventType   { return EventPendingUpdate }
func (Updated) Type() EventType         { return EventUpdated }
func (ModifyRejected) Type() EventType  { return EventModifyRejected }
func (PendingCancel) Type() EventType   { return EventPendingCancel }
func (Canceled) Type() EventType        { return EventCanceled }
func (CancelRejected) Type() EventType  { return EventCancelRejected }
func (PartiallyFilled) Type() EventType { return EventPartiallyFilled }
func (Filled) Type() EventType          { return EventFilled }
func (Expired) Type() EventType         { return EventExpired }

// FillOf 返回成交类事件的成交明细。
func FillOf(ev Event) (Fill, bool) {
	switch e := ev.(type) {
	case PartiallyFilled:
		return e.Fill, true
	case Filled:
		return e.Fill, true
	default:
		return Fill{}, false
	}
}

// EventTopic 订单事件在总线上的主题。
func EventTopic(id market.InstrumentID) string {
	return "events.order." + id.String()
}

// FillTopic 成交事件额外发布的主题。
func FillTopic(id market.InstrumentID) string {
	return "events.fills." + id.String()
}
