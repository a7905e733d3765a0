package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exec-engine-go/market"
)

// Command 交易指令的公共接口。
type Command interface {
	CommandID() uuid.UUID
	ClientOrderID() ClientOrderID
	InstrumentID() market.InstrumentID
}

// SubmitOrder 提交新订单。
type SubmitOrder struct {
	ID     uuid.UUID
	Order  Order
	TsInit time.Time
}

// ModifyOrder 改价/改量，nil 表示该字段不变。
type ModifyOrder struct {
	ID              uuid.UUID
	ClOrdID         ClientOrderID
	VenueOrderID    VenueOrderID
	Instrument      market.InstrumentID
	NewPrice        *decimal.Decimal
	NewQuantity     *decimal.Decimal
	NewTriggerPrice *decimal.Decimal
	TsInit          time.Time
}

// CancelOrder 撤单。
type CancelOrder struct {
	ID           uuid.UUID
	ClOrdID      ClientOrderID
	VenueOrderID VenueOrderID
	Instrument   market.InstrumentID
	TsInit       time.Time
}

// NewSubmitOrder 以订单构造提交指令。
func NewSubmitOrder(o Order) SubmitOrder {
	return SubmitOrder{ID: uuid.New(), Order: o, TsInit: time.Now().UTC()}
}

// NewCancelOrder 构造撤单指令。
func NewCancelOrder(o *Order) CancelOrder {
	return CancelOrder{
		ID:           uuid.New(),
		ClOrdID:      o.ClientOrderID,
		VenueOrderID: o.VenueOrderID,
		Instrument:   o.InstrumentID,
		TsInit:       time.Now().UTC(),
	}
}

// NewModifyOrder 构造改单指令。
func NewModifyOrder(o *Order, price, qty *decimal.Decimal) ModifyOrder {
	return ModifyOrder{
		ID:           uuid.New(),
		ClOrdID:      o.ClientOrderID,
		VenueOrderID: o.VenueOrderID,
		Instrument:   o.InstrumentID,
		NewPrice:     price,
		NewQuantity:  qty,
		TsInit:       time.Now().UTC(),
	}
}

func (c SubmitOrder) CommandID() uuid.UUID              { return c.ID }
func (c SubmitOrder) ClientOrderID() ClientOrderID      { return c.Order.ClientOrderID }
func (c SubmitOrder) InstrumentID() market.InstrumentID { return c.Order.InstrumentID }

func (c ModifyOrder) CommandID() uuid.UUID              { return c.ID }
func (c ModifyOrder) ClientOrderID() ClientOrderID      { return c.ClOrdID }
func (c ModifyOrder) InstrumentID() market.InstrumentID { return c.Instrument }

func (c CancelOrder) CommandID() uuid.UUID              { return c.ID }
func (c CancelOrder) ClientOrderID() ClientOrderID      { return c.ClOrdID }
func (c CancelOrder) InstrumentID() market.InstrumentID { return c.Instrument }
