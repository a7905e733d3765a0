package order

import (
	"context"

	"exec-engine-go/market"
)

// EventSink 执行客户端回报事件的出口。实现方负责把事件投递回执行引擎。
type EventSink interface {
	Emit(ev Event)
}

// EventSinkFunc 函数适配器。
type EventSinkFunc func(ev Event)

func (f EventSinkFunc) Emit(ev Event) { f(ev) }

// ExecutionClient 交易场所执行客户端的能力集合；模拟与实盘各自实现。
// 对每个被接受的指令，客户端必须最终发出且只发出一个结果事件（或拒绝），
// 且不得直接修改缓存。
type ExecutionClient interface {
	ID() string
	Venue() market.Venue
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	SubmitOrder(cmd SubmitOrder)
	ModifyOrder(cmd ModifyOrder)
	CancelOrder(cmd CancelOrder)
	OnQuoteTick(tick market.QuoteTick)
}
