// Package engine 执行引擎：订单状态机的唯一持有者，负责指令路由与事件应用。
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"exec-engine-go/infrastructure/logger"
	"exec-engine-go/infrastructure/monitor"
	"exec-engine-go/internal/store"
	"exec-engine-go/market"
	"exec-engine-go/msgbus"
	"exec-engine-go/order"
)

// 总线端点
const (
	EndpointExecute    = "ExecEngine.execute"
	EndpointProcess    = "ExecEngine.process"
	EndpointInstrument = "ExecEngine.instrument"
)

// QuoteTopicPattern 引擎订阅的行情主题。
const QuoteTopicPattern = "data.quotes.*"

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config 引擎配置
type Config struct {
	QueueSize   int           `yaml:"queue_size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Components 引擎依赖组件
type Components struct {
	Cache   *store.Cache
	Bus     *msgbus.Bus
	Logger  *logger.Logger
	Monitor *monitor.Monitor // 可选
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime      time.Time
	TotalCommands  int64
	TotalEvents    int64
	TotalFills     int64
	TotalDiscarded int64
	TotalRejected  int64
	LastEventTime  time.Time
}

// ExecutionEngine 执行引擎。Execute/Process 只在分发协程上运行，
// 因此订单与账户的修改不需要额外加锁。
type ExecutionEngine struct {
	config  Config
	cache   *store.Cache
	bus     *msgbus.Bus
	queue   *msgbus.Queue
	logger  *logger.Logger
	monitor *monitor.Monitor

	clientsMu     sync.RWMutex
	clients       map[market.Venue]order.ExecutionClient
	defaultClient order.ExecutionClient

	state  EngineState
	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}

	stats   Statistics
	statsMu sync.RWMutex
}

// New 创建执行引擎并在总线上注册端点与行情订阅。
func New(cfg Config, c Components) (*ExecutionEngine, error) {
	if c.Cache == nil {
		return nil, errors.New("cache is required")
	}
	if c.Bus == nil {
		return nil, errors.New("bus is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 4096
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}

	e := &ExecutionEngine{
		config:  cfg,
		cache:   c.Cache,
		bus:     c.Bus,
		logger:  c.Logger.Named("exec_engine"),
		monitor: c.Monitor,
		clients: make(map[market.Venue]order.ExecutionClient),
		state:   StateIdle,
	}
	e.queue = msgbus.NewQueue(c.Bus, cfg.QueueSize, e.logger.Logger)

	e.bus.Register(EndpointExecute, e.onExecute)
	e.bus.Register(EndpointProcess, e.onProcess)
	e.bus.Register(EndpointInstrument, e.onInstrument)
	e.bus.Subscribe(QuoteTopicPattern, e.onQuote)
	if e.monitor != nil {
		e.monitor.WatchQueue(e.queue)
	}
	return e, nil
}

// Queue 分发队列，供外部 I/O 协程投递消息。
func (e *ExecutionEngine) Queue() *msgbus.Queue { return e.queue }

// Sink 执行客户端回报事件的出口：投递到分发队列，由 Process 应用。
func (e *ExecutionEngine) Sink() order.EventSink {
	return order.EventSinkFunc(func(ev order.Event) {
		if err := e.queue.PostSend(EndpointProcess, ev); err != nil {
			e.logger.Error("event dropped at dispatch queue",
				zap.String("event", string(ev.Type())),
				zap.String("client_order_id", string(ev.Header().ClientOrderID)),
				zap.Error(err))
			e.monitor.RecordDiscarded("queue_full")
		}
	})
}

// RegisterClient 注册场所执行客户端，同一场所重复注册时替换。
func (e *ExecutionEngine) RegisterClient(c order.ExecutionClient) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	if _, ok := e.clients[c.Venue()]; ok {
		e.logger.Warn("execution client replaced", zap.String("venue", string(c.Venue())))
	}
	e.clients[c.Venue()] = c
	e.logger.Info("execution client registered", zap.String("client", c.ID()), zap.String("venue", string(c.Venue())))
}

// DeregisterClient 注销场所客户端。
func (e *ExecutionEngine) DeregisterClient(venue market.Venue) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	delete(e.clients, venue)
}

// SetDefaultClient 没有场所专属客户端时使用的兜底客户端。
func (e *ExecutionEngine) SetDefaultClient(c order.ExecutionClient) {
	e.clientsMu.Lock()
	defer e.clientsMu.Unlock()
	e.defaultClient = c
}

// Client 按场所查找客户端。
func (e *ExecutionEngine) Client(venue market.Venue) (order.ExecutionClient, bool) {
	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()
	if c, ok := e.clients[venue]; ok {
		return c, true
	}
	if e.defaultClient != nil {
		return e.defaultClient, true
	}
	return nil, false
}

func (e *ExecutionEngine) allClients() []order.ExecutionClient {
	e.clientsMu.RLock()
	defer e.clientsMu.RUnlock()
	out := make([]order.ExecutionClient, 0, len(e.clients)+1)
	for _, c := range e.clients {
		out = append(out, c)
	}
	if e.defaultClient != nil {
		out = append(out, e.defaultClient)
	}
	return out
}

// Start 连接所有客户端并启动分发循环
func (e *ExecutionEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = StateRunning
	e.mu.Unlock()

	e.statsMu.Lock()
	e.stats.StartTime = time.Now()
	e.statsMu.Unlock()

	for _, c := range e.allClients() {
		if err := c.Connect(ctx); err != nil {
			// 连接失败不阻止启动：该场所的指令会被客户端显式拒绝
			e.logger.Error("execution client connect failed", zap.String("client", c.ID()), zap.Error(err))
		}
	}

	go func() {
		defer close(e.done)
		e.queue.Run(runCtx)
	}()
	e.logger.Info("execution engine started", zap.Int("queue_size", e.config.QueueSize))
	return nil
}

// Stop 停止分发循环、处理剩余消息并断开客户端；重复调用无副作用。
func (e *ExecutionEngine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(e.config.StopTimeout):
		e.logger.Warn("timeout waiting for dispatch loop to stop")
	}
	if n := e.queue.Drain(); n > 0 {
		e.logger.Info("drained pending messages", zap.Int("count", n))
	}

	for _, c := range e.allClients() {
		if err := c.Disconnect(); err != nil {
			e.logger.Error("execution client disconnect failed", zap.String("client", c.ID()), zap.Error(err))
		}
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.logger.Info("execution engine stopped")
	return nil
}

// GetState 获取引擎状态
func (e *ExecutionEngine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *ExecutionEngine) GetStatistics() Statistics {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	return e.stats
}

// Health 健康状态
type Health struct {
	State      string          `json:"state"`
	Clients    map[string]bool `json:"clients"`
	QueueDepth int             `json:"queue_depth"`
	OpenOrders int             `json:"open_orders"`
	Healthy    bool            `json:"healthy"`
}

// Health 返回引擎与客户端连接状态。
func (e *ExecutionEngine) Health() Health {
	h := Health{
		State:      e.GetState().String(),
		Clients:    make(map[string]bool),
		QueueDepth: e.queue.Len(),
		OpenOrders: len(e.cache.OpenOrders()),
	}
	h.Healthy = e.GetState() == StateRunning
	for _, c := range e.allClients() {
		h.Clients[c.ID()] = c.IsConnected()
		if !c.IsConnected() {
			h.Healthy = false
		}
	}
	return h
}

// Submit 把指令投递到分发队列，由 Execute 处理。
func (e *ExecutionEngine) Submit(cmd order.Command) error {
	if err := e.queue.PostSend(EndpointExecute, cmd); err != nil {
		return fmt.Errorf("submit %T: %w", cmd, err)
	}
	return nil
}

// PublishQuote 把行情投递到分发队列。
func (e *ExecutionEngine) PublishQuote(tick market.QuoteTick) error {
	return e.queue.PostPublish(market.QuoteTopic(tick.InstrumentID), tick)
}

// AddInstrument 运行期新增合约，在分发协程上写入缓存并通知客户端。
func (e *ExecutionEngine) AddInstrument(inst market.Instrument) error {
	return e.queue.PostSend(EndpointInstrument, inst)
}

func (e *ExecutionEngine) onExecute(msg interface{}) {
	cmd, ok := msg.(order.Command)
	if !ok {
		e.logger.Error("unexpected message at execute endpoint", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}
	e.Execute(cmd)
}

func (e *ExecutionEngine) onProcess(msg interface{}) {
	ev, ok := msg.(order.Event)
	if !ok {
		e.logger.Error("unexpected message at process endpoint", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}
	e.Process(ev)
}

func (e *ExecutionEngine) onInstrument(msg interface{}) {
	inst, ok := msg.(market.Instrument)
	if !ok {
		return
	}
	e.cache.AddInstrument(inst)
	for _, c := range e.allClients() {
		if adder, ok := c.(interface{ AddInstrument(market.Instrument) }); ok {
			adder.AddInstrument(inst)
		}
	}
	e.logger.Info("instrument added", zap.String("instrument", inst.ID.String()))
}

func (e *ExecutionEngine) onQuote(msg interface{}) {
	tick, ok := msg.(market.QuoteTick)
	if !ok {
		return
	}
	e.cache.UpdateQuote(tick)
	if c, ok := e.Client(tick.InstrumentID.Venue); ok {
		c.OnQuoteTick(tick)
	}
}

func (e *ExecutionEngine) bumpStats(fn func(s *Statistics)) {
	e.statsMu.Lock()
	fn(&e.stats)
	e.statsMu.Unlock()
}
