// Package sim 确定性的模拟撮合：每个订单独立地与行情 tick 撮合，不建模跨订单优先级。
package sim

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exec-engine-go/market"
	"exec-engine-go/order"
)

// ReasonMissingVenueOrderID 改单缺少场所订单号。
const ReasonMissingVenueOrderID = "ORDER MISSING VENUE_ORDER_ID"

// ExchangeConfig 模拟交易所参数。
type ExchangeConfig struct {
	Venue    market.Venue
	MakerFee decimal.Decimal // 费率，例如 0.0002
	TakerFee decimal.Decimal
}

// Exchange 模拟交易所。非并发安全，只能在分发协程上调用。
type Exchange struct {
	cfg    ExchangeConfig
	sink   order.EventSink
	logger *zap.Logger
	now    func() time.Time

	instruments map[market.InstrumentID]market.Instrument
	symbolIndex map[market.InstrumentID]int
	orderCount  map[market.InstrumentID]int
	tradeSeq    int

	quotes   map[market.InstrumentID]market.QuoteTick
	working  map[market.InstrumentID][]*workingOrder
	byClient map[order.ClientOrderID]*workingOrder
}

type workingOrder struct {
	order.Order
	triggered bool
	evaluated bool
}

// NewExchange 创建模拟交易所，事件通过 sink 发出。
func NewExchange(cfg ExchangeConfig, instruments []market.Instrument, sink order.EventSink, logger *zap.Logger) *Exchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Exchange{
		cfg:         cfg,
		sink:        sink,
		logger:      logger.With(zap.String("venue", string(cfg.Venue))),
		now:         func() time.Time { return time.Now().UTC() },
		instruments: make(map[market.InstrumentID]market.Instrument),
		symbolIndex: make(map[market.InstrumentID]int),
		orderCount:  make(map[market.InstrumentID]int),
		quotes:      make(map[market.InstrumentID]market.QuoteTick),
		working:     make(map[market.InstrumentID][]*workingOrder),
		byClient:    make(map[order.ClientOrderID]*workingOrder),
	}
	for _, inst := range instruments {
		e.AddInstrument(inst)
	}
	return e
}

// AddInstrument 登记合约；合约序号按登记顺序从 1 开始。
func (e *Exchange) AddInstrument(inst market.Instrument) {
	if _, ok := e.instruments[inst.ID]; ok {
		e.instruments[inst.ID] = inst
		return
	}
	e.instruments[inst.ID] = inst
	e.symbolIndex[inst.ID] = len(e.symbolIndex) + 1
}

// Venue 场所。
func (e *Exchange) Venue() market.Venue { return e.cfg.Venue }

// WorkingOrders 当前挂单数量。
func (e *Exchange) WorkingOrders() int { return len(e.byClient) }

// Quote 最近一次 tick。
func (e *Exchange) Quote(id market.InstrumentID) (market.QuoteTick, bool) {
	q, ok := e.quotes[id]
	return q, ok
}

// Submit 接受订单并立即回报 Accepted；市价单在已知报价时立即撮合。
func (e *Exchange) Submit(cmd order.SubmitOrder) {
	o := cmd.Order
	ts := e.now()
	if _, ok := e.instruments[o.InstrumentID]; !ok {
		e.sink.Emit(order.Rejected{EventHeader: order.NewHeader(&o, ts), Reason: fmt.Sprintf("instrument %s not found", o.InstrumentID)})
		return
	}
	if _, dup := e.byClient[o.ClientOrderID]; dup {
		e.sink.Emit(order.Rejected{EventHeader: order.NewHeader(&o, ts), Reason: fmt.Sprintf("duplicate client order id %s", o.ClientOrderID)})
		return
	}

	o.VenueOrderID = e.nextVenueOrderID(o.InstrumentID)
	o.Status = order.StatusAccepted
	e.sink.Emit(order.Accepted{EventHeader: order.NewHeader(&o, ts)})

	w := &workingOrder{Order: o}
	e.working[o.InstrumentID] = append(e.working[o.InstrumentID], w)
	e.byClient[o.ClientOrderID] = w

	if o.Type == order.TypeMarket {
		if q, ok := e.quotes[o.InstrumentID]; ok {
			e.evaluate(w, q, ts)
		}
	}
}

// Modify 改价/改量。
func (e *Exchange) Modify(cmd order.ModifyOrder) {
	ts := e.now()
	w, ok := e.byClient[cmd.ClOrdID]
	if cmd.VenueOrderID == "" {
		e.sink.Emit(order.ModifyRejected{EventHeader: e.commandHeader(w, cmd.ClOrdID, cmd.Instrument, ts), Reason: ReasonMissingVenueOrderID})
		return
	}
	if !ok {
		e.sink.Emit(order.ModifyRejected{EventHeader: e.commandHeader(nil, cmd.ClOrdID, cmd.Instrument, ts), Reason: fmt.Sprintf("order %s not found", cmd.ClOrdID)})
		return
	}
	if cmd.NewQuantity != nil && cmd.NewQuantity.LessThan(w.FilledQty) {
		e.sink.Emit(order.ModifyRejected{
			EventHeader: order.NewHeader(&w.Order, ts),
			Reason:      fmt.Sprintf("new quantity %s below filled %s", cmd.NewQuantity, w.FilledQty),
		})
		return
	}

	if cmd.NewPrice != nil {
		w.Price = *cmd.NewPrice
	}
	if cmd.NewQuantity != nil {
		w.Quantity = *cmd.NewQuantity
	}
	if cmd.NewTriggerPrice != nil {
		w.TriggerPrice = *cmd.NewTriggerPrice
	}
	e.sink.Emit(order.Updated{
		EventHeader:  order.NewHeader(&w.Order, ts),
		Price:        cmd.NewPrice,
		Quantity:     cmd.NewQuantity,
		TriggerPrice: cmd.NewTriggerPrice,
	})
	if w.LeavesQty().IsZero() {
		e.remove(w)
	}
}

// Cancel 撤单；未知订单回报 CancelRejected。
func (e *Exchange) Cancel(cmd order.CancelOrder) {
	ts := e.now()
	w, ok := e.byClient[cmd.ClOrdID]
	if !ok {
		e.sink.Emit(order.CancelRejected{EventHeader: e.commandHeader(nil, cmd.ClOrdID, cmd.Instrument, ts), Reason: fmt.Sprintf("order %s not found", cmd.ClOrdID)})
		return
	}
	e.remove(w)
	e.sink.Emit(order.Canceled{EventHeader: order.NewHeader(&w.Order, ts)})
}

// Process 处理一笔行情：按提交顺序逐个评估该合约的挂单。
func (e *Exchange) Process(tick market.QuoteTick) {
	e.quotes[tick.InstrumentID] = tick
	ts := tick.TsEvent
	if ts.IsZero() {
		ts = e.now()
	}
	orders := append([]*workingOrder(nil), e.working[tick.InstrumentID]...)
	for _, w := range orders {
		e.evaluate(w, tick, ts)
	}
}

func (e *Exchange) evaluate(w *workingOrder, q market.QuoteTick, ts time.Time) {
	if w.TimeInForce == order.TimeInForceGTD && !w.ExpireTime.IsZero() && !ts.Before(w.ExpireTime) {
		e.remove(w)
		e.sink.Emit(order.Expired{EventHeader: order.NewHeader(&w.Order, ts)})
		return
	}
	if w.Type.HasTrigger() && !w.triggered {
		if !triggerHit(w.Type, w.Side, w.TriggerPrice, q) {
			return
		}
		w.triggered = true
		e.logger.Debug("order triggered", zap.String("client_order_id", string(w.ClientOrderID)))
	}

	px, avail, liq, ok := e.match(w, q)
	first := !w.evaluated
	w.evaluated = true
	leaves := w.LeavesQty()

	if first && w.TimeInForce == order.TimeInForceFOK && (!ok || avail.LessThan(leaves)) {
		e.remove(w)
		e.sink.Emit(order.Canceled{EventHeader: order.NewHeader(&w.Order, ts)})
		return
	}
	if ok {
		qty := decimal.Min(leaves, avail)
		e.fill(w, qty, px, liq, ts)
	}
	if w.LeavesQty().IsZero() {
		return
	}
	if w.TimeInForce == order.TimeInForceIOC {
		e.remove(w)
		e.sink.Emit(order.Canceled{EventHeader: order.NewHeader(&w.Order, ts)})
	}
}

// match 返回成交价、可成交量、流动性方向。对手方数量为 0 时无可成交流动性。
func (e *Exchange) match(w *workingOrder, q market.QuoteTick) (px, avail decimal.Decimal, liq order.LiquiditySide, ok bool) {
	marketable := w.Type == order.TypeMarket || w.Type == order.TypeStopMarket ||
		w.Type == order.TypeMarketIfTouched || w.Type == order.TypeTrailingStopMarket

	if w.Side == order.SideBuy {
		if !q.Ask.IsPositive() || !q.AskSize.IsPositive() {
			return
		}
		if marketable {
			return q.Ask, q.AskSize, order.LiquidityTaker, true
		}
		if q.Ask.LessThanOrEqual(w.Price) {
			return w.Price, q.AskSize, order.LiquidityMaker, true
		}
		return
	}
	if !q.Bid.IsPositive() || !q.BidSize.IsPositive() {
		return
	}
	if marketable {
		return q.Bid, q.BidSize, order.LiquidityTaker, true
	}
	if q.Bid.GreaterThanOrEqual(w.Price) {
		return w.Price, q.BidSize, order.LiquidityMaker, true
	}
	return
}

// 止损单：买入 ask 上穿触发价，卖出 bid 下穿触发价。
// 触价单方向相反：买入 ask 回落到触发价，卖出 bid 上涨到触发价。
func triggerHit(t order.Type, side order.Side, trigger decimal.Decimal, q market.QuoteTick) bool {
	ifTouched := t == order.TypeMarketIfTouched || t == order.TypeLimitIfTouched
	if side == order.SideBuy {
		if !q.Ask.IsPositive() {
			return false
		}
		if ifTouched {
			return q.Ask.LessThanOrEqual(trigger)
		}
		return q.Ask.GreaterThanOrEqual(trigger)
	}
	if !q.Bid.IsPositive() {
		return false
	}
	if ifTouched {
		return q.Bid.GreaterThanOrEqual(trigger)
	}
	return q.Bid.LessThanOrEqual(trigger)
}

func (e *Exchange) fill(w *workingOrder, qty, px decimal.Decimal, liq order.LiquiditySide, ts time.Time) {
	inst := e.instruments[w.InstrumentID]
	rate := e.cfg.TakerFee
	if liq == order.LiquidityMaker {
		rate = e.cfg.MakerFee
	}
	e.tradeSeq++
	f := order.Fill{
		TradeID:    order.TradeID(fmt.Sprintf("%s-%d", e.cfg.Venue, e.tradeSeq)),
		Side:       w.Side,
		LastQty:    qty,
		LastPx:     px,
		Commission: market.NewMoney(qty.Mul(px).Mul(rate), inst.QuoteCurrency),
		Liquidity:  liq,
	}
	w.FilledQty = w.FilledQty.Add(qty)
	h := order.NewHeader(&w.Order, ts)
	if w.LeavesQty().IsZero() {
		e.remove(w)
		e.sink.Emit(order.Filled{EventHeader: h, Fill: f})
		return
	}
	e.sink.Emit(order.PartiallyFilled{EventHeader: h, Fill: f})
}

func (e *Exchange) remove(w *workingOrder) {
	delete(e.byClient, w.ClientOrderID)
	list := e.working[w.InstrumentID]
	for i, x := range list {
		if x == w {
			e.working[w.InstrumentID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

func (e *Exchange) nextVenueOrderID(id market.InstrumentID) order.VenueOrderID {
	e.orderCount[id]++
	return order.VenueOrderID(fmt.Sprintf("%s-%d-%03d", e.cfg.Venue, e.symbolIndex[id], e.orderCount[id]))
}

func (e *Exchange) commandHeader(w *workingOrder, id order.ClientOrderID, inst market.InstrumentID, ts time.Time) order.EventHeader {
	if w != nil {
		return order.NewHeader(&w.Order, ts)
	}
	o := order.Order{ClientOrderID: id, InstrumentID: inst}
	return order.NewHeader(&o, ts)
}
