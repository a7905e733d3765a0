package alert

import (
	"exec-engine-go/msgbus"
	"exec-engine-go/order"
)

// OrderEventPattern 告警订阅的订单事件主题。
const OrderEventPattern = "events.order.*"

// WatchOrders 订阅订单事件，被拒事件转成告警；返回订阅编号便于退订。
// 处理器运行在分发协程上，Send 不应阻塞。
func WatchOrders(bus *msgbus.Bus, m *Manager) msgbus.SubscriptionID {
	return bus.Subscribe(OrderEventPattern, func(msg interface{}) {
		ev, ok := msg.(order.Event)
		if !ok {
			return
		}
		if a, ok := FromEvent(ev); ok {
			_ = m.Send(a)
		}
	})
}

// FromEvent 把需要关注的订单事件映射为告警。
func FromEvent(ev order.Event) (Alert, bool) {
	h := ev.Header()
	var reason string
	switch e := ev.(type) {
	case order.Rejected:
		reason = e.Reason
	case order.ModifyRejected:
		reason = e.Reason
	case order.CancelRejected:
		reason = e.Reason
	default:
		return Alert{}, false
	}
	msg := string(ev.Type())
	return Alert{
		Level:   LevelWarning,
		Message: msg,
		Key:     msg + ":" + h.InstrumentID.String() + ":" + reason,
		Fields: map[string]interface{}{
			"client_order_id": string(h.ClientOrderID),
			"instrument":      h.InstrumentID.String(),
			"reason":          reason,
		},
	}, true
}
