package msgbus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("dispatch queue full")
	ErrQueueClosed = errors.New("dispatch queue closed")
)

// Envelope 投递到分发循环的消息。Endpoint 非空时点对点发送，否则按 Topic 发布。
type Envelope struct {
	Endpoint string
	Topic    string
	Msg      interface{}
}

// Queue 有界分发队列。I/O 协程只 Post，所有总线分发都在 Run 所在的单一协程完成。
type Queue struct {
	bus    *Bus
	ch     chan Envelope
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

// NewQueue 创建容量为 capacity 的队列。
func NewQueue(bus *Bus, capacity int, logger *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{bus: bus, ch: make(chan Envelope, capacity), logger: logger}
}

// Post 非阻塞入队。
func (q *Queue) Post(env Envelope) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- env:
		return nil
	default:
		return ErrQueueFull
	}
}

// PostSend 入队一条端点消息。
func (q *Queue) PostSend(endpoint string, msg interface{}) error {
	return q.Post(Envelope{Endpoint: endpoint, Msg: msg})
}

// PostPublish 入队一条主题消息。
func (q *Queue) PostPublish(topic string, msg interface{}) error {
	return q.Post(Envelope{Topic: topic, Msg: msg})
}

// Len 待分发数量。
func (q *Queue) Len() int { return len(q.ch) }

// Run 持续分发，直到 ctx 结束或队列关闭并清空。
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-q.ch:
			if !ok {
				return
			}
			q.dispatch(env)
		}
	}
}

// Drain 在调用方协程同步分发当前所有待处理消息（含分发过程中新入队的），
// 返回分发条数。用于回测与测试。
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case env, ok := <-q.ch:
			if !ok {
				return n
			}
			q.dispatch(env)
			n++
		default:
			return n
		}
	}
}

// Close 停止接收新消息；已入队消息仍可被 Run/Drain 取出。
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *Queue) dispatch(env Envelope) {
	if env.Endpoint != "" {
		if err := q.bus.Send(env.Endpoint, env.Msg); err != nil {
			q.logger.Warn("queued send dropped", zap.Error(err))
		}
		return
	}
	q.bus.Publish(env.Topic, env.Msg)
}
