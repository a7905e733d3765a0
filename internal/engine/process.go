package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"exec-engine-go/inventory"
	"exec-engine-go/order"
)

// Process 应用一条订单事件：查找订单、按状态表转换、写回缓存，再发布到总线。
// 重复成交与终态订单上的事件被丢弃并记录，不视为故障。
func (e *ExecutionEngine) Process(ev order.Event) {
	h := ev.Header()
	o, ok := e.cache.Order(h.ClientOrderID)
	if !ok && h.VenueOrderID != "" {
		o, ok = e.cache.OrderByVenueID(h.VenueOrderID)
	}
	if !ok {
		e.logger.Warn("event for unknown order discarded",
			zap.String("event", string(ev.Type())),
			zap.String("client_order_id", string(h.ClientOrderID)),
			zap.String("venue_order_id", string(h.VenueOrderID)))
		e.discard("unknown_order")
		return
	}

	wasOpen := o.IsOpen()
	if err := o.Apply(ev); err != nil {
		e.onApplyError(ev, o, err)
		return
	}
	if err := e.cache.UpdateOrder(o); err != nil {
		e.logger.LogError(err, map[string]interface{}{"client_order_id": string(o.ClientOrderID)})
		return
	}
	if wasOpen && !o.IsOpen() {
		e.monitor.AddOpenOrders(-1)
	}

	fill, isFill := order.FillOf(ev)
	if isFill {
		e.applyFill(o, fill)
	}

	e.monitor.RecordEvent(string(ev.Type()))
	e.bumpStats(func(s *Statistics) {
		s.TotalEvents++
		s.LastEventTime = time.Now()
		if isFill {
			s.TotalFills++
		}
		if ev.Type() == order.EventRejected {
			s.TotalRejected++
		}
	})
	e.logger.LogOrder(string(ev.Type()), string(o.ClientOrderID), map[string]interface{}{
		"venue_order_id": string(o.VenueOrderID),
		"status":         string(o.Status),
		"filled_qty":     o.FilledQty.String(),
	})

	e.bus.Publish(order.EventTopic(o.InstrumentID), ev)
	if isFill {
		e.bus.Publish(order.FillTopic(o.InstrumentID), ev)
	}
}

func (e *ExecutionEngine) onApplyError(ev order.Event, o *order.Order, err error) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type())),
		zap.String("client_order_id", string(o.ClientOrderID)),
		zap.String("status", string(o.Status)),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, order.ErrDuplicateEvent):
		e.logger.Warn("duplicate fill discarded", fields...)
		e.discard("duplicate")
	case errors.Is(err, order.ErrStaleEvent):
		e.logger.Warn("event on terminal order discarded", fields...)
		e.discard("stale")
	case errors.Is(err, order.ErrOverfill), errors.Is(err, order.ErrInvalidFill):
		e.logger.Error("invalid fill discarded", fields...)
		e.discard("invalid_fill")
	default:
		e.logger.Error("event rejected by state machine", fields...)
		e.discard("invalid_transition")
	}
}

func (e *ExecutionEngine) discard(reason string) {
	e.monitor.RecordDiscarded(reason)
	e.bumpStats(func(s *Statistics) { s.TotalDiscarded++ })
}

// applyFill 成交记账：现货账户交割基础币与报价币并扣手续费，保证金账户只扣手续费；
// 仓位按带符号数量更新。
func (e *ExecutionEngine) applyFill(o *order.Order, f order.Fill) {
	inst, hasInst := e.cache.Instrument(o.InstrumentID)
	notional := f.Notional()
	side := f.Side
	if side == "" {
		side = o.Side
	}

	if acc, ok := e.cache.Account(o.AccountID); ok {
		if acc.Type == inventory.AccountCash && hasInst {
			if side == order.SideBuy {
				acc.Credit(inst.BaseCurrency, f.LastQty)
				acc.Debit(inst.QuoteCurrency, notional)
			} else {
				acc.Debit(inst.BaseCurrency, f.LastQty)
				acc.Credit(inst.QuoteCurrency, notional)
			}
		}
		if !f.Commission.Amount.IsZero() {
			cur := f.Commission.Currency
			if cur == "" {
				cur = inst.QuoteCurrency
			}
			acc.Debit(cur, f.Commission.Amount)
		}
		e.cache.UpdateAccount(acc)
	} else {
		e.logger.Warn("fill for order without account", zap.String("client_order_id", string(o.ClientOrderID)))
	}

	pos := e.cache.Position(o.AccountID, o.InstrumentID)
	delta := f.LastQty
	if side == order.SideSell {
		delta = delta.Neg()
	}
	pos.Update(delta, f.LastPx)
	e.cache.UpdatePosition(pos)

	n, _ := notional.Float64()
	e.monitor.RecordFill(n)
}
