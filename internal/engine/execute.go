package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exec-engine-go/order"
)

// Execute 处理一条交易指令。校验失败不会返回错误，而是生成 Rejected 事件走正常事件路径。
func (e *ExecutionEngine) Execute(cmd order.Command) {
	e.bumpStats(func(s *Statistics) { s.TotalCommands++ })
	switch c := cmd.(type) {
	case order.SubmitOrder:
		e.monitor.RecordCommand("SubmitOrder")
		e.handleSubmit(c)
	case order.ModifyOrder:
		e.monitor.RecordCommand("ModifyOrder")
		e.handleModify(c)
	case order.CancelOrder:
		e.monitor.RecordCommand("CancelOrder")
		e.handleCancel(c)
	default:
		e.logger.Error("unsupported command", zap.String("type", fmt.Sprintf("%T", cmd)))
	}
}

func (e *ExecutionEngine) handleSubmit(cmd order.SubmitOrder) {
	o := cmd.Order
	if _, exists := e.cache.Order(o.ClientOrderID); exists {
		e.logger.Warn("duplicate client order id, command dropped", zap.String("client_order_id", string(o.ClientOrderID)))
		e.monitor.RecordDiscarded("duplicate_command")
		return
	}
	if o.AccountID == "" {
		if acc, ok := e.cache.AccountForVenue(o.InstrumentID.Venue); ok {
			o.AccountID = acc.ID
		}
	}
	o.Status = order.StatusSubmitted
	o.FilledQty, o.AvgPx = decimal.Zero, decimal.Zero
	o.TradeIDs = nil
	o.TsLast = cmd.TsInit
	if o.TriggerType == "" {
		o.TriggerType = order.TriggerNone
	}
	if err := e.cache.AddOrder(&o); err != nil {
		e.logger.LogError(err, map[string]interface{}{"client_order_id": string(o.ClientOrderID)})
		return
	}
	e.monitor.AddOpenOrders(1)
	e.logger.LogCommand("SubmitOrder", string(o.ClientOrderID), map[string]interface{}{
		"instrument": o.InstrumentID.String(),
		"side":       string(o.Side),
		"type":       string(o.Type),
		"quantity":   o.Quantity.String(),
		"price":      o.Price.String(),
	})

	if err := e.validateSubmit(&o); err != nil {
		e.reject(&o, err)
		return
	}
	client, ok := e.Client(o.InstrumentID.Venue)
	if !ok {
		e.reject(&o, &ValidationError{Field: "venue", Value: string(o.InstrumentID.Venue)})
		return
	}
	cmd.Order = o
	client.SubmitOrder(cmd)
}

func (e *ExecutionEngine) validateSubmit(o *order.Order) error {
	inst, ok := e.cache.Instrument(o.InstrumentID)
	if !ok {
		return &ValidationError{Field: "instrument", Value: o.InstrumentID.String()}
	}
	if _, ok := e.cache.Account(o.AccountID); !ok || o.AccountID == "" {
		return &ValidationError{Field: "account", Value: string(o.AccountID)}
	}
	if err := o.Validate(); err != nil {
		return &ValidationError{Field: "order", Value: string(o.ClientOrderID), Err: err}
	}
	if err := inst.Validate(o.Price, o.Quantity); err != nil {
		return &ValidationError{Field: "order", Value: string(o.ClientOrderID), Err: err}
	}
	return nil
}

// reject 生成合成的 Rejected 事件并同步应用。
func (e *ExecutionEngine) reject(o *order.Order, err error) {
	field := "order"
	if ve, ok := err.(*ValidationError); ok {
		field = ve.Field
	}
	e.monitor.RecordValidationReject(field)
	e.logger.Warn("order rejected before routing",
		zap.String("client_order_id", string(o.ClientOrderID)),
		zap.Error(err))
	e.Process(order.Rejected{EventHeader: order.NewHeader(o, time.Now().UTC()), Reason: err.Error()})
}

func (e *ExecutionEngine) handleModify(cmd order.ModifyOrder) {
	o, ok := e.cache.Order(cmd.ClOrdID)
	if !ok {
		e.logger.Warn("modify for unknown order dropped", zap.String("client_order_id", string(cmd.ClOrdID)))
		e.monitor.RecordDiscarded("unknown_order")
		return
	}
	e.logger.LogCommand("ModifyOrder", string(o.ClientOrderID), nil)
	now := time.Now().UTC()
	if !defaultStates.CanModify(o.Status) {
		e.publishOnly(order.ModifyRejected{
			EventHeader: order.NewHeader(o, now),
			Reason:      fmt.Sprintf("order %s cannot be modified", o.Status),
		})
		return
	}
	client, ok := e.Client(o.InstrumentID.Venue)
	if !ok {
		e.publishOnly(order.ModifyRejected{
			EventHeader: order.NewHeader(o, now),
			Reason:      (&ValidationError{Field: "venue", Value: string(o.InstrumentID.Venue)}).Error(),
		})
		return
	}
	if cmd.VenueOrderID == "" {
		cmd.VenueOrderID = o.VenueOrderID
	}
	e.Process(order.PendingUpdate{EventHeader: order.NewHeader(o, now)})
	client.ModifyOrder(cmd)
}

func (e *ExecutionEngine) handleCancel(cmd order.CancelOrder) {
	o, ok := e.cache.Order(cmd.ClOrdID)
	if !ok {
		e.logger.Warn("cancel for unknown order dropped", zap.String("client_order_id", string(cmd.ClOrdID)))
		e.monitor.RecordDiscarded("unknown_order")
		return
	}
	e.logger.LogCommand("CancelOrder", string(o.ClientOrderID), nil)
	now := time.Now().UTC()
	if o.IsTerminal() || o.Status == order.StatusPendingCancel {
		e.publishOnly(order.CancelRejected{
			EventHeader: order.NewHeader(o, now),
			Reason:      fmt.Sprintf("order %s cannot be canceled", o.Status),
		})
		return
	}
	client, ok := e.Client(o.InstrumentID.Venue)
	if !ok {
		e.publishOnly(order.CancelRejected{
			EventHeader: order.NewHeader(o, now),
			Reason:      (&ValidationError{Field: "venue", Value: string(o.InstrumentID.Venue)}).Error(),
		})
		return
	}
	if cmd.VenueOrderID == "" {
		cmd.VenueOrderID = o.VenueOrderID
	}
	// 尚未确认的订单直接撤，不经过 PENDING_CANCEL
	if o.Status != order.StatusSubmitted {
		e.Process(order.PendingCancel{EventHeader: order.NewHeader(o, now)})
	}
	client.CancelOrder(cmd)
}

var defaultStates = order.NewStateMachine()

// publishOnly 只发布事件、不改变订单状态（终态订单上的改单/撤单拒绝）。
func (e *ExecutionEngine) publishOnly(ev order.Event) {
	h := ev.Header()
	e.logger.LogOrder(string(ev.Type()), string(h.ClientOrderID), map[string]interface{}{"state_change": false})
	e.bus.Publish(order.EventTopic(h.InstrumentID), ev)
}
