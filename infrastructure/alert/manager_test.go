package alert

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"exec-engine-go/market"
	"exec-engine-go/msgbus"
	"exec-engine-go/order"
)

var aapl = market.NewInstrumentID("AAPL", "NASDAQ")

func testOrder(id string) *order.Order {
	o := order.NewLimitOrder(order.ClientOrderID(id), "NASDAQ-001", aapl, order.SideBuy,
		decimal.NewFromInt(1), decimal.NewFromInt(10), order.TimeInForceGTC)
	return &o
}

func TestSendFansOutToChannels(t *testing.T) {
	a, b := NewMockChannel("a"), NewMockChannel("b")
	mgr := NewManager([]Channel{a, b}, time.Minute)

	require.NoError(t, mgr.Send(Alert{Level: LevelError, Message: "boom", Fields: map[string]interface{}{"k": "v"}}))
	require.Len(t, a.Alerts(), 1)
	require.Len(t, b.Alerts(), 1)
	assert.Equal(t, "v", a.Alerts()[0].Fields["k"])
	assert.False(t, a.Alerts()[0].Timestamp.IsZero())
	assert.Equal(t, []string{"a", "b"}, mgr.Channels())
}

func TestSendThrottlesByKey(t *testing.T) {
	ch := NewMockChannel("mock")
	mgr := NewManager([]Channel{ch}, time.Hour)

	for i := 0; i < 3; i++ {
		require.NoError(t, mgr.Send(Alert{Level: LevelWarning, Message: "same"}))
	}
	require.NoError(t, mgr.Send(Alert{Level: LevelWarning, Message: "same", Key: "other"}))
	assert.Len(t, ch.Alerts(), 2)

	mgr.ResetThrottle()
	require.NoError(t, mgr.Send(Alert{Level: LevelWarning, Message: "same"}))
	assert.Len(t, ch.Alerts(), 3)
}

func TestThrottlerWindow(t *testing.T) {
	th := NewThrottler(time.Second)
	now := time.Unix(0, 0)
	th.now = func() time.Time { return now }

	assert.True(t, th.Allow("k"))
	assert.False(t, th.Allow("k"))
	now = now.Add(time.Second)
	assert.True(t, th.Allow("k"))
}

func TestSendErrorsOnlyWhenAllChannelsFail(t *testing.T) {
	bad, good := NewMockChannel("bad"), NewMockChannel("good")
	bad.SetShouldError(true)

	mgr := NewManager([]Channel{bad, good}, 0)
	assert.NoError(t, mgr.Send(Alert{Level: LevelInfo, Message: "x"}))

	good.SetShouldError(true)
	assert.ErrorContains(t, mgr.Send(Alert{Level: LevelInfo, Message: "y"}), "channel good failed")
}

func TestZapChannelLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ch := NewZapChannel("log", zap.New(core))

	require.NoError(t, ch.Send(Alert{Level: LevelWarning, Message: "OrderRejected", Fields: map[string]interface{}{"reason": "no funds"}}))
	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "disconnected"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "no funds", entries[0].ContextMap()["reason"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
}

func TestFromEvent(t *testing.T) {
	o := testOrder("O-1")
	h := order.NewHeader(o, time.Now())

	a, ok := FromEvent(order.Rejected{EventHeader: h, Reason: "insufficient balance"})
	require.True(t, ok)
	assert.Equal(t, LevelWarning, a.Level)
	assert.Equal(t, string(order.EventRejected), a.Message)
	assert.Equal(t, "O-1", a.Fields["client_order_id"])

	_, ok = FromEvent(order.CancelRejected{EventHeader: h, Reason: "unknown order"})
	assert.True(t, ok)
	_, ok = FromEvent(order.Accepted{EventHeader: h})
	assert.False(t, ok)
}

func TestWatchOrders(t *testing.T) {
	bus := msgbus.New(nil)
	ch := NewMockChannel("mock")
	WatchOrders(bus, NewManager([]Channel{ch}, time.Minute))

	o := testOrder("O-1")
	h := order.NewHeader(o, time.Now())
	bus.Publish(order.EventTopic(aapl), order.Accepted{EventHeader: h})
	bus.Publish(order.EventTopic(aapl), order.Rejected{EventHeader: h, Reason: "r"})
	bus.Publish(order.EventTopic(aapl), order.Rejected{EventHeader: h, Reason: "r"})

	alerts := ch.Alerts()
	require.Len(t, alerts, 1, "duplicate rejections are throttled")
	assert.Equal(t, "r", alerts[0].Fields["reason"])
}
