package order

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"exec-engine-go/inventory"
	"exec-engine-go/market"
)

// Order 订单视图。只能通过 Apply 应用事件来修改状态。
type Order struct {
	ClientOrderID ClientOrderID
	VenueOrderID  VenueOrderID
	AccountID     inventory.AccountID
	InstrumentID  market.InstrumentID

	Type         Type
	Side         Side
	TimeInForce  TimeInForce
	Quantity     decimal.Decimal
	Price        decimal.Decimal // 市价单为 0
	TriggerPrice decimal.Decimal
	TriggerType  TriggerType
	ExpireTime   time.Time // 仅 GTD
	PostOnly     bool
	ReduceOnly   bool

	FilledQty decimal.Decimal
	AvgPx     decimal.Decimal // FilledQty > 0 时有效

	Status         Status
	PreviousStatus Status // 进入 PENDING_* 前的状态，用于被拒后回退
	TradeIDs       []TradeID
	LastError      string

	TsSubmitted time.Time
	TsAccepted  time.Time
	TsLast      time.Time
}

// NewLimitOrder 构造限价单（状态 SUBMITTED）。
func NewLimitOrder(id ClientOrderID, account inventory.AccountID, instrument market.InstrumentID, side Side, qty, price decimal.Decimal, tif TimeInForce) Order {
	return Order{
		ClientOrderID: id,
		AccountID:     account,
		InstrumentID:  instrument,
		Type:          TypeLimit,
		Side:          side,
		TimeInForce:   tif,
		Quantity:      qty,
		Price:         price,
		TriggerType:   TriggerNone,
		Status:        StatusSubmitted,
	}
}

// NewMarketOrder 构造市价单（状态 SUBMITTED）。
func NewMarketOrder(id ClientOrderID, account inventory.AccountID, instrument market.InstrumentID, side Side, qty decimal.Decimal) Order {
	return Order{
		ClientOrderID: id,
		AccountID:     account,
		InstrumentID:  instrument,
		Type:          TypeMarket,
		Side:          side,
		TimeInForce:   TimeInForceIOC,
		Quantity:      qty,
		TriggerType:   TriggerNone,
		Status:        StatusSubmitted,
	}
}

// Validate 检查订单自身字段是否完整。
func (o *Order) Validate() error {
	if o.ClientOrderID == "" {
		return fmt.Errorf("client order id required")
	}
	if o.InstrumentID.IsZero() {
		return fmt.Errorf("instrument id required")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("invalid side %q", o.Side)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be > 0, got %s", o.Quantity)
	}
	if o.Type.HasPrice() && !o.Price.IsPositive() {
		return fmt.Errorf("%s order requires price > 0", o.Type)
	}
	if o.Type.HasTrigger() && !o.TriggerPrice.IsPositive() {
		return fmt.Errorf("%s order requires trigger price > 0", o.Type)
	}
	if o.TimeInForce == TimeInForceGTD && o.ExpireTime.IsZero() {
		return fmt.Errorf("GTD order requires expire time")
	}
	return nil
}

// IsTerminal 是否终态。
func (o *Order) IsTerminal() bool { return IsTerminal(o.Status) }

// IsOpen 是否仍可能成交。
func (o *Order) IsOpen() bool { return defaultMachine.IsActiveState(o.Status) }

// LeavesQty 剩余未成交数量。
func (o *Order) LeavesQty() decimal.Decimal { return o.Quantity.Sub(o.FilledQty) }

// AveragePrice 成交均价；尚无成交时 ok=false。
func (o *Order) AveragePrice() (decimal.Decimal, bool) {
	if !o.FilledQty.IsPositive() {
		return decimal.Zero, false
	}
	return o.AvgPx, true
}

// HasTrade 成交编号是否已计入。
func (o *Order) HasTrade(id TradeID) bool {
	for _, t := range o.TradeIDs {
		if t == id {
			return true
		}
	}
	return false
}

// Clone 深拷贝。
func (o *Order) Clone() *Order {
	c := *o
	if o.TradeIDs != nil {
		c.TradeIDs = append([]TradeID(nil), o.TradeIDs...)
	}
	return &c
}

// Apply 按状态转换表应用事件。返回错误时订单保持不变。
func (o *Order) Apply(ev Event) error {
	if o.IsTerminal() {
		return &StaleEventError{ClientOrderID: o.ClientOrderID, Status: o.Status, Event: ev.Type()}
	}
	h := ev.Header()

	switch e := ev.(type) {
	case Submitted:
		if o.Status != StatusSubmitted {
			return &TransitionError{From: o.Status, To: StatusSubmitted, Event: e.Type()}
		}
		o.TsSubmitted = h.TsEvent
	case Accepted:
		if o.Status != StatusSubmitted {
			return &TransitionError{From: o.Status, To: StatusAccepted, Event: e.Type()}
		}
		o.Status = StatusAccepted
		if h.VenueOrderID != "" {
			o.VenueOrderID = h.VenueOrderID
		}
		o.TsAccepted = h.TsEvent
	case Rejected:
		if err := o.transition(StatusRejected, e.Type()); err != nil {
			return err
		}
		o.LastError = e.Reason
	case PendingUpdate:
		if err := o.enterPending(StatusPendingUpdate, e.Type()); err != nil {
			return err
		}
	case PendingCancel:
		if err := o.enterPending(StatusPendingCancel, e.Type()); err != nil {
			return err
		}
	case Updated:
		if err := o.applyUpdate(e); err != nil {
			return err
		}
	case ModifyRejected:
		o.LastError = e.Reason
		if o.Status == StatusPendingUpdate {
			o.Status = o.PreviousStatus
		}
	case CancelRejected:
		o.LastError = e.Reason
		if o.Status == StatusPendingCancel {
			o.Status = o.PreviousStatus
		}
	case Canceled:
		if err := o.transition(StatusCanceled, e.Type()); err != nil {
			return err
		}
	case Expired:
		if err := o.transition(StatusExpired, e.Type()); err != nil {
			return err
		}
	case PartiallyFilled:
		if err := o.applyFill(e.Fill, h, e.Type()); err != nil {
			return err
		}
	case Filled:
		if err := o.applyFill(e.Fill, h, e.Type()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}

	o.TsLast = h.TsEvent
	return nil
}

func (o *Order) transition(to Status, et EventType) error {
	if err := defaultMachine.ValidateTransition(o.Status, to); err != nil {
		return &TransitionError{From: o.Status, To: to, Event: et}
	}
	o.Status = to
	return nil
}

func (o *Order) enterPending(to Status, et EventType) error {
	if o.Status == to {
		return nil
	}
	from := o.Status
	if err := o.transition(to, et); err != nil {
		return err
	}
	// 修改中再撤单时保留最初的可回退状态
	if from == StatusPendingUpdate || from == StatusPendingCancel {
		return nil
	}
	o.PreviousStatus = from
	return nil
}

func (o *Order) applyUpdate(e Updated) error {
	switch o.Status {
	case StatusPendingUpdate, StatusPendingCancel, StatusAccepted, StatusPartiallyFilled:
	default:
		return &TransitionError{From: o.Status, To: StatusAccepted, Event: e.Type()}
	}
	if e.Quantity != nil && e.Quantity.LessThan(o.FilledQty) {
		return fmt.Errorf("%w: quantity %s below filled %s", ErrInvalidModify, e.Quantity, o.FilledQty)
	}
	if e.Price != nil {
		o.Price = *e.Price
	}
	if e.TriggerPrice != nil {
		o.TriggerPrice = *e.TriggerPrice
	}
	if e.Quantity != nil {
		o.Quantity = *e.Quantity
	}
	if e.VenueOrderID != "" {
		o.VenueOrderID = e.VenueOrderID
	}

	var next Status
	switch {
	case o.FilledQty.IsPositive() && o.FilledQty.Equal(o.Quantity):
		next = StatusFilled
	case o.FilledQty.IsPositive():
		next = StatusPartiallyFilled
	default:
		next = StatusAccepted
	}
	// 撤单未决时改单已在场所生效：保持撤单中，只改写回退状态
	if o.Status == StatusPendingCancel && next != StatusFilled {
		o.PreviousStatus = next
		return nil
	}
	o.Status = next
	return nil
}

func (o *Order) applyFill(f Fill, h EventHeader, et EventType) error {
	if o.HasTrade(f.TradeID) {
		return &DuplicateEventError{ClientOrderID: o.ClientOrderID, TradeID: f.TradeID}
	}
	if f.TradeID == "" {
		return fmt.Errorf("%w: missing trade id", ErrInvalidFill)
	}
	if !f.LastQty.IsPositive() {
		return fmt.Errorf("%w: last qty %s", ErrInvalidFill, f.LastQty)
	}
	filled := o.FilledQty.Add(f.LastQty)
	if filled.GreaterThan(o.Quantity) {
		return fmt.Errorf("%w: filled %s + last %s > quantity %s", ErrOverfill, o.FilledQty, f.LastQty, o.Quantity)
	}

	var next Status
	switch {
	case filled.Equal(o.Quantity):
		next = StatusFilled
	case o.Status == StatusPendingCancel || o.Status == StatusPendingUpdate:
		next = o.Status
	default:
		next = StatusPartiallyFilled
	}
	if err := defaultMachine.ValidateTransition(o.Status, next); err != nil {
		return &TransitionError{From: o.Status, To: next, Event: et}
	}

	// 加权平均成交价
	notional := o.AvgPx.Mul(o.FilledQty).Add(f.LastPx.Mul(f.LastQty))
	o.AvgPx = notional.Div(filled)
	o.FilledQty = filled
	o.TradeIDs = append(o.TradeIDs, f.TradeID)
	if o.VenueOrderID == "" && h.VenueOrderID != "" {
		o.VenueOrderID = h.VenueOrderID
	}
	if next == StatusPendingCancel || next == StatusPendingUpdate {
		o.PreviousStatus = StatusPartiallyFilled
	}
	o.Status = next
	return nil
}
