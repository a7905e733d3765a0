package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exec-engine-go/infrastructure/monitor"
	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
	"exec-engine-go/reconcile"
)

// ReasonNotConnected 客户端未连接时的拒绝原因。
const ReasonNotConnected = "binance client not connected"

// BinanceConfig 合约执行客户端配置。
type BinanceConfig struct {
	Venue        market.Venue
	AccountID    inventory.AccountID
	BaseURL      string
	WSEndpoint   string
	APIKey       string
	APISecret    string
	RecvWindowMs int64
	RateLimit    float64 // 每秒请求数
	Burst        int
	KeepAlive    time.Duration // listenKey 续期间隔
	Timeout      time.Duration // 单次 REST 请求超时
}

func (c *BinanceConfig) setDefaults() {
	if c.Venue == "" {
		c.Venue = "BINANCE"
	}
	if c.BaseURL == "" {
		c.BaseURL = BinanceFuturesRESTURL
	}
	if c.WSEndpoint == "" {
		c.WSEndpoint = BinanceFuturesWSEndpoint
	}
	if c.RecvWindowMs <= 0 {
		c.RecvWindowMs = 5000
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// claimKey 同一结果可能先后来自 REST 响应与用户数据流，只发出先到的一个。
// 改单结果按改后价格与数量区分，连续两次改单互不吞掉。
type claimKey struct {
	id     order.ClientOrderID
	exec   reconcile.ExecType
	detail string
}

// claimTTL 另一份副本迟迟不到（如用户数据流断开）时，标记在此之后清除。
const claimTTL = 5 * time.Minute

func outcomeKey(id order.ClientOrderID, exec reconcile.ExecType) claimKey {
	return claimKey{id: id, exec: exec}
}

func amendKey(id order.ClientOrderID, price, qty decimal.Decimal) claimKey {
	return claimKey{id: id, exec: reconcile.ExecAmendment, detail: qty.String() + "@" + price.String()}
}

// BinanceFuturesClient U 本位合约执行客户端：REST 下单/改单/撤单，用户数据流回报状态与成交。
// 所有事件经 sink 投递，不直接访问缓存。
type BinanceFuturesClient struct {
	cfg     BinanceConfig
	dialect *reconcile.Dialect
	rest    *BinanceRESTClient
	ws      *BinanceWSReal
	sink    order.EventSink
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	symbols map[string]market.InstrumentID
	orders  map[order.ClientOrderID]order.Order
	claimed map[claimKey]time.Time
	runCtx  context.Context
	cancel  context.CancelFunc

	connected atomic.Bool
	wg        sync.WaitGroup
}

// NewBinanceFuturesClient 创建客户端，Connect 之前不发起网络请求。
func NewBinanceFuturesClient(cfg BinanceConfig, instruments []market.Instrument, sink order.EventSink, mon *monitor.Monitor, logger *zap.Logger) *BinanceFuturesClient {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("binance").With(zap.String("venue", string(cfg.Venue)))
	c := &BinanceFuturesClient{
		cfg:     cfg,
		dialect: reconcile.BinanceFutures,
		rest: &BinanceRESTClient{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Secret:       cfg.APISecret,
			HTTPClient:   NewDefaultHTTPClient(),
			RecvWindowMs: cfg.RecvWindowMs,
			Limiter:      NewTokenBucketLimiter(cfg.RateLimit, cfg.Burst),
			Monitor:      mon,
		},
		sink:    sink,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		symbols: make(map[string]market.InstrumentID),
		orders:  make(map[order.ClientOrderID]order.Order),
		claimed: make(map[claimKey]time.Time),
	}
	c.ws = NewBinanceWSReal(cfg.WSEndpoint, logger)
	c.ws.Monitor = mon
	for _, inst := range instruments {
		c.AddInstrument(inst)
	}
	return c
}

func (c *BinanceFuturesClient) ID() string          { return "BINANCE_FUTURES-" + string(c.cfg.Venue) }
func (c *BinanceFuturesClient) Venue() market.Venue { return c.cfg.Venue }
func (c *BinanceFuturesClient) IsConnected() bool   { return c.connected.Load() }

// REST 底层 REST 客户端。
func (c *BinanceFuturesClient) REST() *BinanceRESTClient { return c.rest }

// AddInstrument 登记合约，交易所符号取 InstrumentID.Symbol。
func (c *BinanceFuturesClient) AddInstrument(inst market.Instrument) {
	if inst.ID.Venue != c.cfg.Venue {
		return
	}
	c.mu.Lock()
	c.symbols[inst.ID.Symbol] = inst.ID
	c.mu.Unlock()
}

func (c *BinanceFuturesClient) instrument(symbol string) (market.InstrumentID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.symbols[symbol]
	return id, ok
}

// Connect 申请 listenKey 并启动用户数据流与续期协程。
func (c *BinanceFuturesClient) Connect(ctx context.Context) error {
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return ErrMissingAPIKey
	}
	if c.IsConnected() {
		return nil
	}
	key, err := c.rest.NewListenKey(ctx)
	if err != nil {
		return fmt.Errorf("new listenKey: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runCtx, c.cancel = runCtx, cancel
	c.mu.Unlock()

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.keepAlive(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		if err := c.ws.Run(runCtx, UserStreamPath(key), c.onUserData); err != nil {
			c.logger.Error("user data stream stopped", zap.Error(err))
			c.connected.Store(false)
		}
	}()
	c.connected.Store(true)
	c.logger.Info("binance client connected")
	return nil
}

// Disconnect 停止数据流、等待在途请求并关闭 listenKey。
func (c *BinanceFuturesClient) Disconnect() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	c.connected.Store(false)
	cancel()
	c.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer done()
	if err := c.rest.CloseListenKey(ctx); err != nil {
		c.logger.Warn("close listenKey failed", zap.Error(err))
	}
	c.logger.Info("binance client disconnected")
	return nil
}

func (c *BinanceFuturesClient) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
			if err := c.rest.KeepAliveListenKey(rctx); err != nil {
				c.logger.Warn("listenKey keepalive failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// requestContext 单次请求的超时上下文，断开连接时一并取消。
func (c *BinanceFuturesClient) requestContext() (context.Context, context.CancelFunc) {
	c.mu.Lock()
	parent := c.runCtx
	c.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, c.cfg.Timeout)
}

func (c *BinanceFuturesClient) SubmitOrder(cmd order.SubmitOrder) {
	o := cmd.Order
	if !c.IsConnected() {
		c.sink.Emit(order.Rejected{EventHeader: order.NewHeader(&o, c.now()), Reason: ReasonNotConnected})
		return
	}
	params, err := c.orderParams(&o)
	if err != nil {
		c.sink.Emit(order.Rejected{EventHeader: order.NewHeader(&o, c.now()), Reason: err.Error()})
		return
	}
	c.remember(o)
	c.sink.Emit(order.Submitted{EventHeader: order.NewHeader(&o, c.now())})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.requestContext()
		defer cancel()
		resp, err := c.rest.PlaceOrder(ctx, params)
		if err != nil {
			c.forget(o.ClientOrderID)
			c.logger.Warn("place order failed", zap.String("client_order_id", string(o.ClientOrderID)), zap.Error(err))
			c.sink.Emit(order.Rejected{EventHeader: order.NewHeader(&o, c.now()), Reason: err.Error()})
			return
		}
		o.VenueOrderID = order.VenueOrderID(strconv.FormatInt(resp.OrderID, 10))
		c.remember(o)
		if c.claim(outcomeKey(o.ClientOrderID, reconcile.ExecNew)) {
			c.sink.Emit(order.Accepted{EventHeader: order.NewHeader(&o, c.now())})
		}
	}()
}

// ModifyOrder 合约只支持修改限价单，且价格与数量都必须给出，缺省值取本地记录。
func (c *BinanceFuturesClient) ModifyOrder(cmd order.ModifyOrder) {
	reject := func(reason string) {
		c.sink.Emit(order.ModifyRejected{EventHeader: c.commandHeader(cmd.ClOrdID, cmd.VenueOrderID, cmd.Instrument), Reason: reason})
	}
	if !c.IsConnected() {
		reject(ReasonNotConnected)
		return
	}
	o, ok := c.lookup(cmd.ClOrdID)
	if !ok {
		reject(fmt.Sprintf("%v: %s", ErrUnknownOrder, cmd.ClOrdID))
		return
	}
	if o.Type != order.TypeLimit {
		reject(fmt.Sprintf("%s orders cannot be modified", o.Type))
		return
	}
	if cmd.NewTriggerPrice != nil {
		reject("trigger price cannot be modified")
		return
	}
	price, qty := o.Price, o.Quantity
	if cmd.NewPrice != nil {
		price = *cmd.NewPrice
	}
	if cmd.NewQuantity != nil {
		qty = *cmd.NewQuantity
	}
	params := url.Values{}
	params.Set("symbol", o.InstrumentID.Symbol)
	params.Set("origClientOrderId", string(o.ClientOrderID))
	params.Set("side", string(o.Side))
	params.Set("quantity", qty.String())
	params.Set("price", price.String())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.requestContext()
		defer cancel()
		if _, err := c.rest.ModifyOrder(ctx, params); err != nil {
			c.logger.Warn("modify order failed", zap.String("client_order_id", string(o.ClientOrderID)), zap.Error(err))
			c.sink.Emit(order.ModifyRejected{EventHeader: order.NewHeader(&o, c.now()), Reason: err.Error()})
			return
		}
		o.Price, o.Quantity = price, qty
		c.remember(o)
		if c.claim(amendKey(o.ClientOrderID, price, qty)) {
			c.sink.Emit(order.Updated{EventHeader: order.NewHeader(&o, c.now()), Price: &price, Quantity: &qty})
		}
	}()
}

func (c *BinanceFuturesClient) CancelOrder(cmd order.CancelOrder) {
	h := c.commandHeader(cmd.ClOrdID, cmd.VenueOrderID, cmd.Instrument)
	if !c.IsConnected() {
		c.sink.Emit(order.CancelRejected{EventHeader: h, Reason: ReasonNotConnected})
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.requestContext()
		defer cancel()
		resp, err := c.rest.CancelOrder(ctx, cmd.Instrument.Symbol, string(cmd.ClOrdID))
		if err != nil {
			c.logger.Warn("cancel order failed", zap.String("client_order_id", string(cmd.ClOrdID)), zap.Error(err))
			c.sink.Emit(order.CancelRejected{EventHeader: h, Reason: err.Error()})
			return
		}
		if h.VenueOrderID == "" && resp.OrderID != 0 {
			h.VenueOrderID = order.VenueOrderID(strconv.FormatInt(resp.OrderID, 10))
		}
		c.forget(cmd.ClOrdID)
		if c.claim(outcomeKey(cmd.ClOrdID, reconcile.ExecCanceled)) {
			h.EventID, h.TsEvent, h.TsInit = uuid.New(), c.now(), c.now()
			c.sink.Emit(order.Canceled{EventHeader: h})
		}
	}()
}

// OnQuoteTick 实盘由交易所撮合，行情不驱动客户端。
func (c *BinanceFuturesClient) OnQuoteTick(market.QuoteTick) {}

// onUserData 用户数据流回调，运行在 WS 读协程上。
func (c *BinanceFuturesClient) onUserData(raw []byte) {
	typ, err := UserDataEventType(raw)
	if err != nil {
		if err != ErrNonUserData {
			c.logger.Warn("parse user data", zap.Error(err))
		}
		return
	}
	if typ != "ORDER_TRADE_UPDATE" {
		c.logger.Debug("user data event ignored", zap.String("event", typ))
		return
	}
	var msg reconcile.BinanceOrderUpdateMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("decode order update", zap.Error(err))
		return
	}
	inst, ok := c.instrument(msg.Order.Symbol)
	if !ok {
		c.logger.Warn("order update for unregistered symbol", zap.String("symbol", msg.Order.Symbol))
		return
	}
	ev, err := reconcile.ParseOrderUpdate(c.dialect, c.cfg.AccountID, inst, msg, uuid.New(), c.now())
	if err != nil {
		c.logger.Error("order update not reconciled", zap.String("client_order_id", msg.Order.ClientOrderID), zap.Error(err))
		return
	}
	id := ev.Header().ClientOrderID
	switch e := ev.(type) {
	case order.Accepted:
		if !c.claim(outcomeKey(id, reconcile.ExecNew)) {
			return
		}
	case order.Updated:
		if e.Price == nil || e.Quantity == nil {
			break
		}
		if !c.claim(amendKey(id, *e.Price, *e.Quantity)) {
			return
		}
	case order.Canceled:
		c.forget(id)
		if !c.claim(outcomeKey(id, reconcile.ExecCanceled)) {
			return
		}
	case order.Filled, order.Expired, order.Rejected:
		c.forget(id)
	}
	c.sink.Emit(ev)
}

// claim 第一次到达返回 true；第二次到达返回 false 并清除标记。过期标记顺带清理。
func (c *BinanceFuturesClient) claim(k claimKey) bool {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for old, at := range c.claimed {
		if now.Sub(at) > claimTTL {
			delete(c.claimed, old)
		}
	}
	if _, ok := c.claimed[k]; ok {
		delete(c.claimed, k)
		return false
	}
	c.claimed[k] = now
	return true
}

func (c *BinanceFuturesClient) remember(o order.Order) {
	c.mu.Lock()
	c.orders[o.ClientOrderID] = o
	c.mu.Unlock()
}

func (c *BinanceFuturesClient) forget(id order.ClientOrderID) {
	c.mu.Lock()
	delete(c.orders, id)
	c.mu.Unlock()
}

func (c *BinanceFuturesClient) lookup(id order.ClientOrderID) (order.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	return o, ok
}

func (c *BinanceFuturesClient) commandHeader(id order.ClientOrderID, vid order.VenueOrderID, inst market.InstrumentID) order.EventHeader {
	o := order.Order{ClientOrderID: id, VenueOrderID: vid, AccountID: c.cfg.AccountID, InstrumentID: inst}
	return order.NewHeader(&o, c.now())
}

// orderParams 把规范订单编码为 /fapi/v1/order 参数。
func (c *BinanceFuturesClient) orderParams(o *order.Order) (url.Values, error) {
	typ, err := c.dialect.WireOrderType(o.Type, o.PostOnly)
	if err != nil {
		return nil, err
	}
	p := url.Values{}
	p.Set("symbol", o.InstrumentID.Symbol)
	p.Set("side", string(o.Side))
	p.Set("type", typ)
	p.Set("quantity", o.Quantity.String())
	p.Set("newClientOrderId", string(o.ClientOrderID))
	if o.Type.HasPrice() {
		tif, err := c.dialect.WireTimeInForce(o.TimeInForce, o.PostOnly)
		if err != nil {
			return nil, err
		}
		p.Set("price", o.Price.String())
		if tif != "" {
			p.Set("timeInForce", tif)
		}
		if o.TimeInForce == order.TimeInForceGTD && !o.ExpireTime.IsZero() {
			p.Set("goodTillDate", strconv.FormatInt(o.ExpireTime.UnixMilli(), 10))
		}
	}
	if o.Type.HasTrigger() {
		if o.Type == order.TypeTrailingStopMarket {
			p.Set("activationPrice", o.TriggerPrice.String())
		} else {
			p.Set("stopPrice", o.TriggerPrice.String())
		}
		switch o.TriggerType {
		case order.TriggerMark:
			p.Set("workingType", "MARK_PRICE")
		case order.TriggerLast:
			p.Set("workingType", "CONTRACT_PRICE")
		}
	}
	if o.ReduceOnly {
		p.Set("reduceOnly", "true")
	}
	return p, nil
}

var _ order.ExecutionClient = (*BinanceFuturesClient)(nil)

