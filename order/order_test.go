package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/market"
)

var aapl = market.NewInstrumentID("AAPL", "NASDAQ")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newLimit() *Order {
	o := NewLimitOrder("O-1", "NASDAQ-001", aapl, SideBuy, d("10"), d("10"), TimeInForceGTC)
	return &o
}

func hdr(o *Order) EventHeader { return NewHeader(o, time.Now().UTC()) }

func fill(o *Order, trade, qty, px string) Fill {
	return Fill{TradeID: TradeID(trade), Side: o.Side, LastQty: d(qty), LastPx: d(px), Liquidity: LiquidityMaker}
}

func accepted(t *testing.T) *Order {
	t.Helper()
	o := newLimit()
	h := hdr(o)
	h.VenueOrderID = "NASDAQ-1-001"
	require.NoError(t, o.Apply(Accepted{EventHeader: h}))
	return o
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(o *Order)
		ok   bool
	}{
		{"合法限价单", func(o *Order) {}, true},
		{"缺少编号", func(o *Order) { o.ClientOrderID = "" }, false},
		{"缺少合约", func(o *Order) { o.InstrumentID = market.InstrumentID{} }, false},
		{"方向非法", func(o *Order) { o.Side = "HOLD" }, false},
		{"数量为零", func(o *Order) { o.Quantity = decimal.Zero }, false},
		{"限价单无价格", func(o *Order) { o.Price = decimal.Zero }, false},
		{"止损单无触发价", func(o *Order) { o.Type = TypeStopLimit }, false},
		{"GTD 无到期时间", func(o *Order) { o.TimeInForce = TimeInForceGTD }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newLimit()
			tt.mut(o)
			if tt.ok {
				assert.NoError(t, o.Validate())
			} else {
				assert.Error(t, o.Validate())
			}
		})
	}
}

func TestSubmitAcceptFill(t *testing.T) {
	o := newLimit()
	require.NoError(t, o.Apply(Submitted{EventHeader: hdr(o)}))
	assert.Equal(t, StatusSubmitted, o.Status)
	assert.False(t, o.TsSubmitted.IsZero())

	h := hdr(o)
	h.VenueOrderID = "NASDAQ-1-001"
	require.NoError(t, o.Apply(Accepted{EventHeader: h}))
	assert.Equal(t, StatusAccepted, o.Status)
	assert.Equal(t, VenueOrderID("NASDAQ-1-001"), o.VenueOrderID)

	_, ok := o.AveragePrice()
	assert.False(t, ok)

	require.NoError(t, o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "4", "10")}))
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, o.LeavesQty().Equal(d("6")))

	require.NoError(t, o.Apply(Filled{EventHeader: hdr(o), Fill: fill(o, "T-2", "6", "11")}))
	assert.Equal(t, StatusFilled, o.Status)
	px, ok := o.AveragePrice()
	require.True(t, ok)
	assert.True(t, px.Equal(d("10.6")), px.String())
	assert.Equal(t, []TradeID{"T-1", "T-2"}, o.TradeIDs)
}

func TestTerminalOrderIgnoresEvents(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(Canceled{EventHeader: hdr(o)}))

	before := *o
	err := o.Apply(Filled{EventHeader: hdr(o), Fill: fill(o, "T-1", "10", "10")})
	assert.ErrorIs(t, err, ErrStaleEvent)
	var stale *StaleEventError
	require.True(t, errors.As(err, &stale))
	assert.Equal(t, StatusCanceled, stale.Status)
	assert.Equal(t, before.Status, o.Status)
	assert.True(t, o.FilledQty.IsZero())
}

func TestDuplicateAndOverfill(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "4", "10")}))

	err := o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "4", "10")})
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	err = o.Apply(Filled{EventHeader: hdr(o), Fill: fill(o, "T-2", "7", "10")})
	assert.ErrorIs(t, err, ErrOverfill)
	assert.True(t, o.FilledQty.Equal(d("4")), "failed fills leave the order unchanged")

	err = o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "", "1", "10")})
	assert.ErrorIs(t, err, ErrInvalidFill)
}

func TestPendingCancelRollback(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(PendingCancel{EventHeader: hdr(o)}))
	assert.Equal(t, StatusPendingCancel, o.Status)
	assert.Equal(t, StatusAccepted, o.PreviousStatus)

	require.NoError(t, o.Apply(CancelRejected{EventHeader: hdr(o), Reason: "too late"}))
	assert.Equal(t, StatusAccepted, o.Status)
	assert.Equal(t, "too late", o.LastError)
}

func TestFillWhilePendingCancel(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(PendingCancel{EventHeader: hdr(o)}))
	require.NoError(t, o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "3", "10")}))
	assert.Equal(t, StatusPendingCancel, o.Status)
	assert.Equal(t, StatusPartiallyFilled, o.PreviousStatus)

	require.NoError(t, o.Apply(CancelRejected{EventHeader: hdr(o)}))
	assert.Equal(t, StatusPartiallyFilled, o.Status)

	require.NoError(t, o.Apply(PendingCancel{EventHeader: hdr(o)}))
	require.NoError(t, o.Apply(Filled{EventHeader: hdr(o), Fill: fill(o, "T-2", "7", "10")}))
	assert.Equal(t, StatusFilled, o.Status)
}

func TestModifyFlow(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "4", "10")}))
	require.NoError(t, o.Apply(PendingUpdate{EventHeader: hdr(o)}))
	assert.Equal(t, StatusPendingUpdate, o.Status)

	require.NoError(t, o.Apply(ModifyRejected{EventHeader: hdr(o), Reason: "no"}))
	assert.Equal(t, StatusPartiallyFilled, o.Status)

	require.NoError(t, o.Apply(PendingUpdate{EventHeader: hdr(o)}))
	low := d("3")
	err := o.Apply(Updated{EventHeader: hdr(o), Quantity: &low})
	assert.ErrorIs(t, err, ErrInvalidModify)

	px, qty := d("9.5"), d("8")
	require.NoError(t, o.Apply(Updated{EventHeader: hdr(o), Price: &px, Quantity: &qty}))
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.True(t, o.Price.Equal(px))
	assert.True(t, o.Quantity.Equal(qty))

	exact := d("4")
	require.NoError(t, o.Apply(Updated{EventHeader: hdr(o), Quantity: &exact}))
	assert.Equal(t, StatusFilled, o.Status, "shrinking to the filled quantity completes the order")
}

func TestUpdatedWhilePendingCancel(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(PendingUpdate{EventHeader: hdr(o)}))
	require.NoError(t, o.Apply(PendingCancel{EventHeader: hdr(o)}))
	assert.Equal(t, StatusAccepted, o.PreviousStatus)

	px := d("11")
	require.NoError(t, o.Apply(Updated{EventHeader: hdr(o), Price: &px}))
	assert.Equal(t, StatusPendingCancel, o.Status)
	assert.True(t, o.Price.Equal(px))

	require.NoError(t, o.Apply(CancelRejected{EventHeader: hdr(o), Reason: "too late"}))
	assert.Equal(t, StatusAccepted, o.Status)
	assert.True(t, o.Price.Equal(d("11")), "场所已生效的改价保留")

	// 部分成交后撤单中改单，回退到部分成交
	require.NoError(t, o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "4", "11")}))
	require.NoError(t, o.Apply(PendingUpdate{EventHeader: hdr(o)}))
	require.NoError(t, o.Apply(PendingCancel{EventHeader: hdr(o)}))
	qty := d("6")
	require.NoError(t, o.Apply(Updated{EventHeader: hdr(o), Quantity: &qty}))
	assert.Equal(t, StatusPendingCancel, o.Status)
	assert.Equal(t, StatusPartiallyFilled, o.PreviousStatus)
	assert.True(t, o.LeavesQty().Equal(d("2")))

	require.NoError(t, o.Apply(Canceled{EventHeader: hdr(o)}))
	assert.Equal(t, StatusCanceled, o.Status)
}

func TestIllegalTransition(t *testing.T) {
	o := accepted(t)
	err := o.Apply(Rejected{EventHeader: hdr(o), Reason: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusAccepted, te.From)
	assert.Equal(t, StatusAccepted, o.Status)

	err = o.Apply(Accepted{EventHeader: hdr(o)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCloneIsDeep(t *testing.T) {
	o := accepted(t)
	require.NoError(t, o.Apply(PartiallyFilled{EventHeader: hdr(o), Fill: fill(o, "T-1", "1", "10")}))
	c := o.Clone()
	c.TradeIDs[0] = "X"
	assert.Equal(t, TradeID("T-1"), o.TradeIDs[0])
}
