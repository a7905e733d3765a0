package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exec-engine-go/market"
	"exec-engine-go/order"
)

// ReasonNotConnected 客户端未连接时的拒绝原因。
const ReasonNotConnected = "execution client not connected"

// SandboxConfig 沙盒场所配置。
type SandboxConfig struct {
	Venue    market.Venue
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
}

// SandboxClient 把指令委托给模拟交易所的执行客户端。
type SandboxClient struct {
	cfg         SandboxConfig
	instruments []market.Instrument
	sink        order.EventSink
	logger      *zap.Logger

	mu        sync.Mutex
	exchange  *Exchange
	connected atomic.Bool
}

// NewSandboxClient 创建沙盒客户端，Connect 时才创建模拟交易所。
func NewSandboxClient(cfg SandboxConfig, instruments []market.Instrument, sink order.EventSink, logger *zap.Logger) *SandboxClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SandboxClient{
		cfg:         cfg,
		instruments: instruments,
		sink:        sink,
		logger:      logger.Named("sandbox").With(zap.String("venue", string(cfg.Venue))),
	}
}

func (c *SandboxClient) ID() string          { return "SANDBOX-" + string(c.cfg.Venue) }
func (c *SandboxClient) Venue() market.Venue { return c.cfg.Venue }
func (c *SandboxClient) IsConnected() bool   { return c.connected.Load() }

// Connect 创建模拟交易所；重复连接复用已有交易所。
func (c *SandboxClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.exchange == nil {
		c.exchange = NewExchange(ExchangeConfig{
			Venue:    c.cfg.Venue,
			MakerFee: c.cfg.MakerFee,
			TakerFee: c.cfg.TakerFee,
		}, c.instruments, c.sink, c.logger)
	}
	c.mu.Unlock()
	c.connected.Store(true)
	c.logger.Info("sandbox connected", zap.Int("instruments", len(c.instruments)))
	return nil
}

// Disconnect 断开；挂单保留在模拟交易所中。
func (c *SandboxClient) Disconnect() error {
	c.connected.Store(false)
	c.logger.Info("sandbox disconnected")
	return nil
}

// Exchange 返回模拟交易所，未连接过时为 nil。
func (c *SandboxClient) Exchange() *Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange
}

// AddInstrument 运行中新增合约。
func (c *SandboxClient) AddInstrument(inst market.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments = append(c.instruments, inst)
	if c.exchange != nil {
		c.exchange.AddInstrument(inst)
	}
}

func (c *SandboxClient) SubmitOrder(cmd order.SubmitOrder) {
	o := cmd.Order
	now := time.Now().UTC()
	if !c.IsConnected() {
		c.sink.Emit(order.Rejected{EventHeader: order.NewHeader(&o, now), Reason: ReasonNotConnected})
		return
	}
	c.sink.Emit(order.Submitted{EventHeader: order.NewHeader(&o, now)})
	c.Exchange().Submit(cmd)
}

func (c *SandboxClient) ModifyOrder(cmd order.ModifyOrder) {
	if !c.IsConnected() {
		c.sink.Emit(order.ModifyRejected{EventHeader: header(cmd.ClOrdID, cmd.VenueOrderID, cmd.Instrument), Reason: ReasonNotConnected})
		return
	}
	c.Exchange().Modify(cmd)
}

func (c *SandboxClient) CancelOrder(cmd order.CancelOrder) {
	if !c.IsConnected() {
		c.sink.Emit(order.CancelRejected{EventHeader: header(cmd.ClOrdID, cmd.VenueOrderID, cmd.Instrument), Reason: ReasonNotConnected})
		return
	}
	c.Exchange().Cancel(cmd)
}

func (c *SandboxClient) OnQuoteTick(tick market.QuoteTick) {
	if !c.IsConnected() {
		return
	}
	c.Exchange().Process(tick)
}

func (c *SandboxClient) String() string {
	return fmt.Sprintf("SandboxClient(%s, connected=%t)", c.cfg.Venue, c.IsConnected())
}

func header(id order.ClientOrderID, vid order.VenueOrderID, inst market.InstrumentID) order.EventHeader {
	o := order.Order{ClientOrderID: id, VenueOrderID: vid, InstrumentID: inst}
	return order.NewHeader(&o, time.Now().UTC())
}
