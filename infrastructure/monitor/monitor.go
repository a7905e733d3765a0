package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"exec-engine-go/msgbus"
)

// Monitor Prometheus监控指标收集器，使用独立 registry。
type Monitor struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	cfg      Config

	// 指令与事件
	commands    *prometheus.CounterVec
	events      *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	validations *prometheus.CounterVec
	openOrders  prometheus.Gauge

	// 成交
	fills          prometheus.Counter
	filledNotional prometheus.Counter

	// 场所连接
	wsConnections prometheus.Counter
	wsDisconnects prometheus.Counter
	restRequests  *prometheus.CounterVec
	restErrors    *prometheus.CounterVec
	restLatency   *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "exec",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,
		factory:  factory,
		cfg:      cfg,

		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "commands_total",
			Help:      "收到的交易指令数",
		}, []string{"command"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_applied_total",
			Help:      "已应用的订单事件数",
		}, []string{"event"}),
		discarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "events_discarded_total",
			Help:      "被丢弃的事件/指令数（重复、过期、非法转换等）",
		}, []string{"reason"}),
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "validation_rejects_total",
			Help:      "校验失败被拒绝的指令数",
		}, []string{"field"}),
		openOrders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_orders",
			Help:      "未终结订单数",
		}),

		fills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fills_total",
			Help:      "成交笔数",
		}),
		filledNotional: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filled_notional_total",
			Help:      "累计成交金额（报价币）",
		}),

		wsConnections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connections_total",
			Help:      "WebSocket连接次数",
		}),
		wsDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_disconnects_total",
			Help:      "WebSocket断开次数",
		}),
		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_requests_total",
			Help:      "REST请求总数",
		}, []string{"action"}),
		restErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_errors_total",
			Help:      "REST错误总数",
		}, []string{"action"}),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_latency_seconds",
			Help:      "REST请求延迟（秒）",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}
	return m
}

// 指令/事件相关方法，nil 接收者为空操作，便于测试时省略监控。
func (m *Monitor) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command).Inc()
}

func (m *Monitor) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Monitor) RecordDiscarded(reason string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(reason).Inc()
}

func (m *Monitor) RecordValidationReject(field string) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(field).Inc()
}

func (m *Monitor) AddOpenOrders(delta float64) {
	if m == nil {
		return
	}
	m.openOrders.Add(delta)
}

// RecordFill 记录一笔成交
func (m *Monitor) RecordFill(notional float64) {
	if m == nil {
		return
	}
	m.fills.Inc()
	m.filledNotional.Add(notional)
}

// 场所连接相关方法
func (m *Monitor) RecordWSConnection() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	if m == nil {
		return
	}
	m.wsDisconnects.Inc()
}

func (m *Monitor) RecordRESTRequest(action string) {
	if m == nil {
		return
	}
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	if m == nil {
		return
	}
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	if m == nil {
		return
	}
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// WatchBus 以 CounterFunc 暴露总线计数
func (m *Monitor) WatchBus(bus *msgbus.Bus) {
	stat := func(pick func(msgbus.Stats) uint64) func() float64 {
		return func() float64 { return float64(pick(bus.Stats())) }
	}
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: m.cfg.Namespace, Subsystem: m.cfg.Subsystem,
		Name: "bus_sent_total", Help: "总线点对点发送数",
	}, stat(func(s msgbus.Stats) uint64 { return s.Sent }))
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: m.cfg.Namespace, Subsystem: m.cfg.Subsystem,
		Name: "bus_published_total", Help: "总线发布数",
	}, stat(func(s msgbus.Stats) uint64 { return s.Published }))
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: m.cfg.Namespace, Subsystem: m.cfg.Subsystem,
		Name: "bus_no_endpoint_total", Help: "发往未注册端点被丢弃的消息数",
	}, stat(func(s msgbus.Stats) uint64 { return s.NoEndpoint }))
}

// WatchQueue 以 GaugeFunc 暴露分发队列积压
func (m *Monitor) WatchQueue(q *msgbus.Queue) {
	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.cfg.Namespace, Subsystem: m.cfg.Subsystem,
		Name: "dispatch_queue_depth", Help: "分发队列待处理消息数",
	}, func() float64 { return float64(q.Len()) })
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
