package sim

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/market"
	"exec-engine-go/order"
)

var (
	aapl = market.NewInstrumentID("AAPL", "NASDAQ")
	msft = market.NewInstrumentID("MSFT", "NASDAQ")
)

type recorder struct{ events []order.Event }

func (r *recorder) Emit(ev order.Event) { r.events = append(r.events, ev) }

func (r *recorder) types() []order.EventType {
	out := make([]order.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type())
	}
	return out
}

func (r *recorder) last() order.Event { return r.events[len(r.events)-1] }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newExchange(rec *recorder) *Exchange {
	return NewExchange(ExchangeConfig{
		Venue:    "NASDAQ",
		MakerFee: d("0.001"),
		TakerFee: d("0.002"),
	}, []market.Instrument{
		{ID: aapl, BaseCurrency: "AAPL", QuoteCurrency: "USD"},
		{ID: msft, BaseCurrency: "MSFT", QuoteCurrency: "USD"},
	}, rec, nil)
}

func limit(id string, side order.Side, qty, px string) order.SubmitOrder {
	return order.NewSubmitOrder(order.NewLimitOrder(order.ClientOrderID(id), "NASDAQ-001", aapl, side, d(qty), d(px), order.TimeInForceGTC))
}

func tick(bid, ask, size string) market.QuoteTick {
	return market.QuoteTick{InstrumentID: aapl, Bid: d(bid), Ask: d(ask), BidSize: d(size), AskSize: d(size)}
}

func TestSubmitAcceptsWithVenueOrderID(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	ex.Submit(limit("O-1", order.SideBuy, "10", "10.00"))
	ex.Submit(limit("O-2", order.SideBuy, "10", "10.00"))

	m := order.NewLimitOrder("O-3", "NASDAQ-001", msft, order.SideBuy, d("1"), d("1"), order.TimeInForceGTC)
	ex.Submit(order.NewSubmitOrder(m))

	require.Len(t, rec.events, 3)
	assert.Equal(t, order.VenueOrderID("NASDAQ-1-001"), rec.events[0].Header().VenueOrderID)
	assert.Equal(t, order.VenueOrderID("NASDAQ-1-002"), rec.events[1].Header().VenueOrderID)
	assert.Equal(t, order.VenueOrderID("NASDAQ-2-001"), rec.events[2].Header().VenueOrderID)
	for _, ev := range rec.events {
		assert.Equal(t, order.EventAccepted, ev.Type())
	}
}

func TestLimitFillsIffPriceCrossed(t *testing.T) {
	cases := []struct {
		side     order.Side
		bid, ask string
		fills    bool
	}{
		{order.SideBuy, "9.98", "9.99", true},
		{order.SideBuy, "9.99", "10.00", true},
		{order.SideBuy, "10.00", "10.01", false},
		{order.SideSell, "10.00", "10.01", true},
		{order.SideSell, "10.01", "10.02", true},
		{order.SideSell, "9.99", "10.00", false},
	}
	for _, c := range cases {
		rec := &recorder{}
		ex := newExchange(rec)
		ex.Submit(limit("O-1", c.side, "10", "10.00"))
		ex.Process(tick(c.bid, c.ask, "100"))
		filled := rec.last().Type() == order.EventFilled
		assert.Equal(t, c.fills, filled, "%s bid=%s ask=%s", c.side, c.bid, c.ask)
	}
}

func TestLimitFillAtLimitPriceAsMaker(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	ex.Submit(limit("O-1", order.SideBuy, "10", "10.00"))
	ex.Process(tick("9.50", "9.60", "100"))

	f, ok := order.FillOf(rec.last())
	require.True(t, ok)
	assert.True(t, f.LastPx.Equal(d("10")))
	assert.Equal(t, order.LiquidityMaker, f.Liquidity)
	assert.Equal(t, order.TradeID("NASDAQ-1"), f.TradeID)
	assert.Equal(t, "USD", f.Commission.Currency)
	assert.True(t, f.Commission.Amount.Equal(d("0.1")), "10 * 10 * 0.001")
	assert.Equal(t, 0, ex.WorkingOrders())
}

func TestPartialFillCappedByTickSize(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	ex.Submit(limit("O-1", order.SideSell, "10", "10.00"))
	ex.Process(tick("10.00", "10.01", "4"))
	ex.Process(tick("10.00", "10.01", "4"))
	ex.Process(tick("10.00", "10.01", "4"))

	assert.Equal(t, []order.EventType{
		order.EventAccepted, order.EventPartiallyFilled, order.EventPartiallyFilled, order.EventFilled,
	}, rec.types())
	f, _ := order.FillOf(rec.last())
	assert.True(t, f.LastQty.Equal(d("2")))
	assert.Equal(t, order.TradeID("NASDAQ-3"), f.TradeID)
}

func TestMarketOrderFillsAtTouch(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)

	// 没有行情时等待下一个 tick
	mkt := order.NewMarketOrder("O-1", "NASDAQ-001", aapl, order.SideBuy, d("5"))
	mkt.TimeInForce = order.TimeInForceGTC
	ex.Submit(order.NewSubmitOrder(mkt))
	assert.Equal(t, []order.EventType{order.EventAccepted}, rec.types())

	ex.Process(tick("10.00", "10.05", "100"))
	f, ok := order.FillOf(rec.last())
	require.True(t, ok)
	assert.True(t, f.LastPx.Equal(d("10.05")))
	assert.Equal(t, order.LiquidityTaker, f.Liquidity)

	// 已有行情时立即成交
	sell := order.NewMarketOrder("O-2", "NASDAQ-001", aapl, order.SideSell, d("5"))
	ex.Submit(order.NewSubmitOrder(sell))
	assert.Equal(t, order.EventFilled, rec.last().Type())
	f, _ = order.FillOf(rec.last())
	assert.True(t, f.LastPx.Equal(d("10")))
}

func TestIOCCancelsRemainder(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	mkt := order.NewMarketOrder("O-1", "NASDAQ-001", aapl, order.SideBuy, d("10"))
	ex.Submit(order.NewSubmitOrder(mkt))
	ex.Process(tick("9.99", "10.00", "3"))
	assert.Equal(t, []order.EventType{order.EventAccepted, order.EventPartiallyFilled, order.EventCanceled}, rec.types())
	assert.Equal(t, 0, ex.WorkingOrders())
}

func TestFOKRequiresFullSize(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	o := order.NewLimitOrder("O-1", "NASDAQ-001", aapl, order.SideBuy, d("10"), d("10"), order.TimeInForceFOK)
	ex.Submit(order.NewSubmitOrder(o))
	ex.Process(tick("9.99", "10.00", "3"))
	assert.Equal(t, []order.EventType{order.EventAccepted, order.EventCanceled}, rec.types())
}

func TestStopTriggers(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	o := order.NewMarketOrder("O-1", "NASDAQ-001", aapl, order.SideSell, d("1"))
	o.Type = order.TypeStopMarket
	o.TimeInForce = order.TimeInForceGTC
	o.TriggerPrice = d("9.50")
	ex.Submit(order.NewSubmitOrder(o))

	ex.Process(tick("9.60", "9.61", "10"))
	assert.Equal(t, []order.EventType{order.EventAccepted}, rec.types())
	ex.Process(tick("9.50", "9.51", "10"))
	f, ok := order.FillOf(rec.last())
	require.True(t, ok)
	assert.True(t, f.LastPx.Equal(d("9.5")))
}

func TestTriggerDirectionByType(t *testing.T) {
	cases := []struct {
		name     string
		typ      order.Type
		side     order.Side
		trigger  string
		bid, ask string
		fires    bool
	}{
		{"买入止损 ask 未到", order.TypeStopMarket, order.SideBuy, "10.50", "10.39", "10.40", false},
		{"买入止损 ask 上穿", order.TypeStopMarket, order.SideBuy, "10.50", "10.49", "10.50", true},
		{"卖出止损 bid 下穿", order.TypeStopMarket, order.SideSell, "9.50", "9.50", "9.51", true},
		{"买入触价 ask 高于触发价", order.TypeMarketIfTouched, order.SideBuy, "9.00", "9.99", "10.00", false},
		{"买入触价 ask 回落", order.TypeMarketIfTouched, order.SideBuy, "9.00", "8.99", "9.00", true},
		{"卖出触价 bid 低于触发价", order.TypeMarketIfTouched, order.SideSell, "11.00", "10.00", "10.01", false},
		{"卖出触价 bid 上涨", order.TypeMarketIfTouched, order.SideSell, "11.00", "11.00", "11.01", true},
		{"买入限价触价 ask 高于触发价", order.TypeLimitIfTouched, order.SideBuy, "9.00", "9.99", "10.00", false},
		{"买入限价触价 ask 回落", order.TypeLimitIfTouched, order.SideBuy, "9.00", "8.98", "8.99", true},
		{"卖出限价触价 bid 上涨", order.TypeLimitIfTouched, order.SideSell, "11.00", "11.01", "11.02", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := &recorder{}
			ex := newExchange(rec)
			o := order.NewLimitOrder("O-1", "NASDAQ-001", aapl, c.side, d("1"), d(c.trigger), order.TimeInForceGTC)
			o.Type = c.typ
			o.TriggerPrice = d(c.trigger)
			if !c.typ.HasPrice() {
				o.Price = decimal.Zero
			}
			ex.Submit(order.NewSubmitOrder(o))

			ex.Process(tick(c.bid, c.ask, "10"))
			if !c.fires {
				assert.Equal(t, []order.EventType{order.EventAccepted}, rec.types())
				assert.Equal(t, 1, ex.WorkingOrders())
				return
			}
			assert.Equal(t, []order.EventType{order.EventAccepted, order.EventFilled}, rec.types())
		})
	}
}

func TestMarketIfTouchedFillsAfterPullback(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	o := order.NewMarketOrder("O-1", "NASDAQ-001", aapl, order.SideBuy, d("1"))
	o.Type = order.TypeMarketIfTouched
	o.TimeInForce = order.TimeInForceGTC
	o.TriggerPrice = d("9.00")
	ex.Submit(order.NewSubmitOrder(o))

	ex.Process(tick("9.99", "10.00", "10"))
	assert.Equal(t, []order.EventType{order.EventAccepted}, rec.types())

	ex.Process(tick("8.97", "8.98", "10"))
	f, ok := order.FillOf(rec.last())
	require.True(t, ok)
	assert.True(t, f.LastPx.Equal(d("8.98")))
	assert.Equal(t, order.LiquidityTaker, f.Liquidity)
}

func TestZeroOpposingSizeDoesNotFill(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	ex.Submit(limit("O-1", order.SideBuy, "1000000", "10.00"))
	ex.Process(tick("9.98", "9.99", "0"))
	assert.Equal(t, []order.EventType{order.EventAccepted}, rec.types())

	ex.Process(tick("9.98", "9.99", "5"))
	f, ok := order.FillOf(rec.last())
	require.True(t, ok)
	assert.True(t, f.LastQty.Equal(d("5")))
	assert.Equal(t, order.EventPartiallyFilled, rec.last().Type())

	// FOK 遇到零数量直接撤销
	rec2 := &recorder{}
	ex2 := newExchange(rec2)
	fok := order.NewLimitOrder("O-2", "NASDAQ-001", aapl, order.SideBuy, d("1"), d("10"), order.TimeInForceFOK)
	ex2.Submit(order.NewSubmitOrder(fok))
	ex2.Process(tick("9.98", "9.99", "0"))
	assert.Equal(t, []order.EventType{order.EventAccepted, order.EventCanceled}, rec2.types())
}

func TestGTDExpires(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	exp := time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)
	o := order.NewLimitOrder("O-1", "NASDAQ-001", aapl, order.SideBuy, d("1"), d("9"), order.TimeInForceGTD)
	o.ExpireTime = exp
	ex.Submit(order.NewSubmitOrder(o))

	q := tick("10", "10.01", "1")
	q.TsEvent = exp.Add(-time.Second)
	ex.Process(q)
	q.TsEvent = exp
	ex.Process(q)
	assert.Equal(t, []order.EventType{order.EventAccepted, order.EventExpired}, rec.types())
}

func TestModifyAndCancel(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	ex.Submit(limit("O-1", order.SideBuy, "10", "9.00"))
	vid := rec.last().Header().VenueOrderID

	px := d("10.00")
	ex.Modify(order.ModifyOrder{ClOrdID: "O-1", Instrument: aapl, NewPrice: &px})
	rej, ok := rec.last().(order.ModifyRejected)
	require.True(t, ok)
	assert.Equal(t, ReasonMissingVenueOrderID, rej.Reason)

	ex.Modify(order.ModifyOrder{ClOrdID: "O-1", VenueOrderID: vid, Instrument: aapl, NewPrice: &px})
	up, ok := rec.last().(order.Updated)
	require.True(t, ok)
	assert.True(t, up.Price.Equal(px))

	ex.Process(tick("9.99", "10.00", "100"))
	assert.Equal(t, order.EventFilled, rec.last().Type())

	ex.Cancel(order.CancelOrder{ClOrdID: "O-1", VenueOrderID: vid, Instrument: aapl})
	assert.Equal(t, order.EventCancelRejected, rec.last().Type())
}

func TestCancelRemovesWorkingOrder(t *testing.T) {
	rec := &recorder{}
	ex := newExchange(rec)
	ex.Submit(limit("O-1", order.SideBuy, "10", "9.00"))
	ex.Cancel(order.CancelOrder{ClOrdID: "O-1", Instrument: aapl})
	assert.Equal(t, order.EventCanceled, rec.last().Type())
	ex.Process(tick("8", "8.5", "100"))
	assert.Len(t, rec.events, 2)
}
