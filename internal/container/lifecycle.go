package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"exec-engine-go/config"
	"exec-engine-go/gateway"
	"exec-engine-go/infrastructure/logger"
	"exec-engine-go/internal/engine"
	"exec-engine-go/market"
)

// Lifecycle 生命周期接口
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Health() error
}

type namedComponent struct {
	name string
	Lifecycle
}

// LifecycleManager 按注册顺序启动、逆序停止组件。
type LifecycleManager struct {
	mu         sync.RWMutex
	components []namedComponent
	started    int // 已启动的前缀长度
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{}
}

// Register 注册组件
func (m *LifecycleManager) Register(name string, component Lifecycle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, namedComponent{name: name, Lifecycle: component})
}

// Names 已注册组件名，按启动顺序。
func (m *LifecycleManager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.components))
	for _, c := range m.components {
		out = append(out, c.name)
	}
	return out
}

// StartAll 按顺序启动；任一失败则逆序停止已启动的组件。
func (m *LifecycleManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.components {
		if err := c.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = m.components[j].Stop()
			}
			m.started = 0
			return fmt.Errorf("start %s: %w", c.name, err)
		}
	}
	m.started = len(m.components)
	return nil
}

// StopAll 逆序停止已启动的组件，返回合并后的错误。
func (m *LifecycleManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := m.started - 1; i >= 0; i-- {
		c := m.components[i]
		if err := c.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", c.name, err))
		}
	}
	m.started = 0
	return errors.Join(errs...)
}

// CheckHealth 返回第一个不健康组件的错误。
func (m *LifecycleManager) CheckHealth() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.components {
		if err := c.Health(); err != nil {
			return fmt.Errorf("%s unhealthy: %w", c.name, err)
		}
	}
	return nil
}

// httpServerComponent HTTP服务器组件
type httpServerComponent struct {
	name    string
	handler http.Handler
	addr    string
	logger  *logger.Logger
	server  **http.Server
	started bool
	mu      sync.Mutex
}

func (h *httpServerComponent) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil
	}

	srv := &http.Server{
		Addr:    h.addr,
		Handler: h.handler,
	}
	*h.server = srv

	// 在后台启动服务器
	go func() {
		h.logger.Info("http server listening", zap.String("component", h.name), zap.String("addr", h.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.LogError(err, map[string]interface{}{
				"component": h.name,
				"action":    "listen",
			})
		}
	}()

	h.started = true
	return nil
}

func (h *httpServerComponent) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started || *h.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := (*h.server).Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", h.name, err)
	}

	h.logger.Info("http server stopped", zap.String("component", h.name))
	h.started = false
	return nil
}

func (h *httpServerComponent) Health() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return fmt.Errorf("%s not started", h.name)
	}
	return nil
}

// engineComponent 执行引擎；不健康指引擎未运行或有客户端断开。
type engineComponent struct {
	engine *engine.ExecutionEngine
}

func (e *engineComponent) Start(ctx context.Context) error { return e.engine.Start(ctx) }
func (e *engineComponent) Stop() error                     { return e.engine.Stop() }

func (e *engineComponent) Health() error {
	h := e.engine.Health()
	if h.Healthy {
		return nil
	}
	for id, ok := range h.Clients {
		if !ok {
			return fmt.Errorf("execution client %s disconnected", id)
		}
	}
	return fmt.Errorf("execution engine %s", h.State)
}

// quoteFeedComponent 场所行情订阅，断线由 BinanceWSReal 负责重连。
type quoteFeedComponent struct {
	name    string
	venue   market.Venue
	symbols []string
	ws      *gateway.BinanceWSReal
	publish func(market.QuoteTick) error
	logger  *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (q *quoteFeedComponent) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go func() {
		defer close(q.done)
		err := gateway.RunQuoteFeed(runCtx, q.ws, q.venue, q.symbols, q.publish)
		if err != nil {
			q.logger.LogError(err, map[string]interface{}{"component": q.name})
		}
		q.mu.Lock()
		q.err = err
		q.mu.Unlock()
	}()
	return nil
}

func (q *quoteFeedComponent) Stop() error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("%s stop timeout", q.name)
	}
	return nil
}

func (q *quoteFeedComponent) Health() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return fmt.Errorf("%s: %w", q.name, q.err)
	}
	return nil
}

// watcherComponent 配置热加载
type watcherComponent struct {
	watcher  *config.Watcher
	onUpdate func(config.AppConfig)
}

func (w *watcherComponent) Start(ctx context.Context) error { return w.watcher.Start(ctx, w.onUpdate) }
func (w *watcherComponent) Stop() error                     { return w.watcher.Stop() }
func (w *watcherComponent) Health() error                   { return nil }
