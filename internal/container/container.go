// Package container 依赖注入容器：按配置组装执行引擎、场所客户端与 HTTP 服务。
package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"exec-engine-go/config"
	"exec-engine-go/gateway"
	"exec-engine-go/infrastructure/alert"
	"exec-engine-go/infrastructure/logger"
	"exec-engine-go/infrastructure/monitor"
	"exec-engine-go/internal/api"
	"exec-engine-go/internal/engine"
	"exec-engine-go/internal/store"
	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/msgbus"
	"exec-engine-go/order"
	"exec-engine-go/sim"
)

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	cfgMu   sync.Mutex
	cfg     config.AppConfig
	cfgPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	cache   *store.Cache
	bus     *msgbus.Bus
	engine  *engine.ExecutionEngine
	clients []order.ExecutionClient
	api     *api.Server
	watcher *config.Watcher

	// HTTP服务器
	apiServer     *http.Server
	metricsServer *http.Server

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 从配置文件创建容器，并在 Start 后监听配置变更。
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewFromConfig(cfg)
	c.cfgPath = configPath
	return c, nil
}

// NewFromConfig 以已加载的配置创建容器，不监听文件。
func NewFromConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	if err := c.buildClients(); err != nil {
		return fmt.Errorf("build execution clients failed: %w", err)
	}

	if err := c.registerLifecycleComponents(); err != nil {
		return fmt.Errorf("register components failed: %w", err)
	}
	c.logger.Info("container built successfully", zap.String("env", c.cfg.Env), zap.Int("clients", len(c.clients)))
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Logger)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	monitorCfg := monitor.DefaultConfig()
	if c.cfg.Monitor.Namespace != "" {
		monitorCfg.Namespace = c.cfg.Monitor.Namespace
	}
	if c.cfg.Monitor.Subsystem != "" {
		monitorCfg.Subsystem = c.cfg.Monitor.Subsystem
	}
	c.monitor = monitor.New(monitorCfg)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices() error {
	c.cache = store.New()
	for _, ic := range c.cfg.Instruments {
		inst, err := ic.Instrument()
		if err != nil {
			return err
		}
		c.cache.AddInstrument(inst)
	}
	for _, ac := range c.cfg.Accounts {
		acc, err := ac.Account()
		if err != nil {
			return err
		}
		c.cache.AddAccount(market.Venue(ac.Venue), acc)
	}

	c.bus = msgbus.New(c.logger.Logger)
	c.monitor.WatchBus(c.bus)

	throttle := c.cfg.Alerts.Throttle
	if throttle <= 0 {
		throttle = time.Minute
	}
	c.alerts = alert.NewManager([]alert.Channel{alert.NewZapChannel("log", c.logger.Logger)}, throttle)
	alert.WatchOrders(c.bus, c.alerts)

	var err error
	c.engine, err = engine.New(engine.Config{
		QueueSize:   c.cfg.Engine.QueueSize,
		StopTimeout: c.cfg.Engine.StopTimeout,
	}, engine.Components{
		Cache:   c.cache,
		Bus:     c.bus,
		Logger:  c.logger,
		Monitor: c.monitor,
	})
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}

	c.api = api.NewServer(c.cache, c.engine, c.monitor.Handler(), c.cfg.API.AllowedOrigins, c.logger.Logger)
	c.logger.Info("core services built", zap.Int("instruments", len(c.cfg.Instruments)), zap.Int("accounts", len(c.cfg.Accounts)))
	return nil
}

func (c *Container) buildClients() error {
	for _, v := range c.cfg.Venues {
		instruments, err := c.instrumentsFor(v.Name)
		if err != nil {
			return err
		}
		var client order.ExecutionClient
		switch v.Kind {
		case config.VenueSandbox:
			maker, taker, err := v.Fees()
			if err != nil {
				return err
			}
			client = sim.NewSandboxClient(sim.SandboxConfig{
				Venue:    market.Venue(v.Name),
				MakerFee: maker,
				TakerFee: taker,
			}, instruments, c.engine.Sink(), c.logger.Logger)
		case config.VenueBinanceFutures:
			client = gateway.NewBinanceFuturesClient(gateway.BinanceConfig{
				Venue:        market.Venue(v.Name),
				AccountID:    accountID(v),
				BaseURL:      v.BaseURL,
				WSEndpoint:   v.WSEndpoint,
				APIKey:       v.APIKey,
				APISecret:    v.APISecret,
				RecvWindowMs: v.RecvWindowMs,
				RateLimit:    v.RateLimit,
				Burst:        v.Burst,
			}, instruments, c.engine.Sink(), c.monitor, c.logger.Logger)
		default:
			return fmt.Errorf("venue %s: unknown kind %q", v.Name, v.Kind)
		}
		c.engine.RegisterClient(client)
		c.clients = append(c.clients, client)
		c.logger.Info("execution client registered", zap.String("client", client.ID()))
	}
	return nil
}

func (c *Container) instrumentsFor(venue string) ([]market.Instrument, error) {
	var out []market.Instrument
	for _, ic := range c.cfg.InstrumentsFor(venue) {
		inst, err := ic.Instrument()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func (c *Container) registerLifecycleComponents() error {
	c.lifecycle.Register("engine", &engineComponent{engine: c.engine})

	for _, v := range c.cfg.Venues {
		if v.Kind != config.VenueBinanceFutures || !v.QuoteFeed {
			continue
		}
		var symbols []string
		for _, ic := range c.cfg.InstrumentsFor(v.Name) {
			id, err := market.ParseInstrumentID(ic.ID)
			if err != nil {
				return err
			}
			symbols = append(symbols, id.Symbol)
		}
		endpoint := v.WSEndpoint
		if endpoint == "" {
			endpoint = gateway.BinanceFuturesWSEndpoint
		}
		name := "quote_feed_" + v.Name
		c.lifecycle.Register(name, &quoteFeedComponent{
			name:    name,
			venue:   market.Venue(v.Name),
			symbols: symbols,
			ws:      gateway.NewBinanceWSReal(endpoint, c.logger.Logger.Named("quotes")),
			publish: c.engine.PublishQuote,
			logger:  c.logger,
		})
	}

	if c.cfg.API.Addr != "" {
		c.lifecycle.Register("api_server", &httpServerComponent{
			name:    "api_server",
			handler: c.api.Handler(),
			addr:    c.cfg.API.Addr,
			logger:  c.logger,
			server:  &c.apiServer,
		})
	}
	if c.cfg.Monitor.Addr != "" {
		c.lifecycle.Register("metrics_server", &httpServerComponent{
			name:    "metrics_server",
			handler: c.monitor.Handler(),
			addr:    c.cfg.Monitor.Addr,
			logger:  c.logger,
			server:  &c.metricsServer,
		})
	}

	if c.cfgPath != "" {
		w, err := config.NewWatcher(c.cfgPath, 2*time.Second, c.logger.Logger)
		if err != nil {
			return err
		}
		c.watcher = w
		c.lifecycle.Register("config_watcher", &watcherComponent{watcher: w, onUpdate: c.onConfigUpdate})
	}
	return nil
}

// onConfigUpdate 热加载只接受新增合约，其余变更需重启生效。
func (c *Container) onConfigUpdate(next config.AppConfig) {
	c.cfgMu.Lock()
	added := config.AddedInstruments(c.cfg, next)
	c.cfg.Instruments = next.Instruments
	c.cfgMu.Unlock()

	for _, ic := range added {
		inst, err := ic.Instrument()
		if err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "add_instrument", "instrument": ic.ID})
			continue
		}
		if err := c.engine.AddInstrument(inst); err != nil {
			c.logger.LogError(err, map[string]interface{}{"action": "add_instrument", "instrument": ic.ID})
		}
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	// 挂单留在场所，只记录未结订单以便下次启动对账
	if open := c.cache.OpenOrders(); len(open) > 0 {
		c.logger.Warn("open orders at shutdown", zap.Int("count", len(open)))
	}

	if c.logger != nil {
		c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

// Engine 执行引擎
func (c *Container) Engine() *engine.ExecutionEngine { return c.engine }

// Cache 缓存
func (c *Container) Cache() *store.Cache { return c.cache }

// Bus 消息总线
func (c *Container) Bus() *msgbus.Bus { return c.bus }

// Clients 已注册的执行客户端
func (c *Container) Clients() []order.ExecutionClient { return c.clients }

// API 只读 HTTP 接口
func (c *Container) API() *api.Server { return c.api }

// Alerts 告警管理器，可追加通道
func (c *Container) Alerts() *alert.Manager { return c.alerts }

// Logger 根日志器
func (c *Container) Logger() *logger.Logger { return c.logger }

func accountID(v config.VenueConfig) inventory.AccountID {
	return inventory.AccountID(v.AccountID)
}
