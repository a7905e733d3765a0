// Package msgbus 进程内消息总线：端点点对点发送与主题发布/订阅。
package msgbus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrNoEndpoint 目标端点未注册。
var ErrNoEndpoint = errors.New("no endpoint registered")

// Handler 消息处理函数。
type Handler func(msg interface{})

// SubscriptionID 订阅句柄，用于退订。
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	pattern string
	handler Handler
}

// Stats 总线计数快照。
type Stats struct {
	Sent       uint64
	Published  uint64
	NoEndpoint uint64
}

// Bus 同步分发的消息总线。分发在调用方 goroutine 上完成，
// 单一发布者的消息按发布顺序送达。
type Bus struct {
	mu        sync.RWMutex
	endpoints map[string]Handler
	subs      []subscription
	nextID    SubscriptionID
	logger    *zap.Logger

	sent       atomic.Uint64
	published  atomic.Uint64
	noEndpoint atomic.Uint64
}

// New 创建总线；logger 为 nil 时不输出日志。
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		endpoints: make(map[string]Handler),
		logger:    logger,
	}
}

// Register 注册端点处理器；重复注册时替换旧处理器。
func (b *Bus) Register(endpoint string, h Handler) {
	b.mu.Lock()
	_, replaced := b.endpoints[endpoint]
	b.endpoints[endpoint] = h
	b.mu.Unlock()
	if replaced {
		b.logger.Warn("endpoint handler replaced", zap.String("endpoint", endpoint))
	}
}

// Deregister 注销端点。
func (b *Bus) Deregister(endpoint string) {
	b.mu.Lock()
	delete(b.endpoints, endpoint)
	b.mu.Unlock()
}

// IsRegistered 端点是否存在。
func (b *Bus) IsRegistered(endpoint string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.endpoints[endpoint]
	return ok
}

// Send 点对点发送到端点。
func (b *Bus) Send(endpoint string, msg interface{}) error {
	b.mu.RLock()
	h, ok := b.endpoints[endpoint]
	b.mu.RUnlock()
	if !ok {
		b.noEndpoint.Add(1)
		b.logger.Error("send to unknown endpoint", zap.String("endpoint", endpoint), zap.String("msg", fmt.Sprintf("%T", msg)))
		return fmt.Errorf("%w: %s", ErrNoEndpoint, endpoint)
	}
	b.sent.Add(1)
	h(msg)
	return nil
}

// Subscribe 订阅主题模式，支持 * 与 ? 通配。
func (b *Bus) Subscribe(pattern string, h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscription{id: b.nextID, pattern: pattern, handler: h})
	return b.nextID
}

// Unsubscribe 按模式与句柄退订，返回是否找到。
func (b *Bus) Unsubscribe(pattern string, id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id && s.pattern == pattern {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Subscriptions 当前订阅数量。
func (b *Bus) Subscriptions() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish 按订阅顺序同步分发给所有匹配的订阅者；若主题同时是已注册端点，
// 最后交给端点处理器。没有订阅者时什么也不做。
func (b *Bus) Publish(topic string, msg interface{}) {
	b.mu.RLock()
	var matched []Handler
	for _, s := range b.subs {
		if Match(s.pattern, topic) {
			matched = append(matched, s.handler)
		}
	}
	endpoint, hasEndpoint := b.endpoints[topic]
	b.mu.RUnlock()

	b.published.Add(1)
	for _, h := range matched {
		h(msg)
	}
	if hasEndpoint {
		endpoint(msg)
	}
}

// Stats 返回计数快照。
func (b *Bus) Stats() Stats {
	return Stats{
		Sent:       b.sent.Load(),
		Published:  b.published.Load(),
		NoEndpoint: b.noEndpoint.Load(),
	}
}

// Match 判断主题是否匹配模式。* 匹配任意长度字符，? 匹配单个字符。
func Match(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	p, t := 0, 0
	star, mark := -1, 0
	for t < len(topic) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == topic[t]):
			p++
			t++
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, t
			p++
		case star >= 0:
			// 回溯：让上一个 * 多吞一个字符
			p = star + 1
			mark++
			t = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
