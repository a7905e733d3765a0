package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/market"
	"exec-engine-go/order"
)

func TestSandboxConnectCreatesExchange(t *testing.T) {
	c := NewSandboxClient(SandboxConfig{Venue: "NASDAQ"}, []market.Instrument{{ID: aapl, QuoteCurrency: "USD"}}, &recorder{}, nil)
	assert.Nil(t, c.Exchange())
	require.NoError(t, c.Connect(context.Background()))
	assert.NotNil(t, c.Exchange())
	assert.True(t, c.IsConnected())
	assert.Equal(t, market.Venue("NASDAQ"), c.Venue())
}

func TestSandboxRejectsWhileDisconnected(t *testing.T) {
	rec := &recorder{}
	c := NewSandboxClient(SandboxConfig{Venue: "NASDAQ"}, []market.Instrument{{ID: aapl, QuoteCurrency: "USD"}}, rec, nil)
	cmd := limit("O-1", order.SideBuy, "10", "10.00")
	c.SubmitOrder(cmd)
	c.CancelOrder(order.NewCancelOrder(&cmd.Order))
	c.ModifyOrder(order.NewModifyOrder(&cmd.Order, nil, nil))

	assert.Equal(t, []order.EventType{order.EventRejected, order.EventCancelRejected, order.EventModifyRejected}, rec.types())
	assert.Equal(t, ReasonNotConnected, rec.events[0].(order.Rejected).Reason)
}

func TestSandboxSubmitSequence(t *testing.T) {
	rec := &recorder{}
	c := NewSandboxClient(SandboxConfig{Venue: "NASDAQ"}, []market.Instrument{{ID: aapl, QuoteCurrency: "USD"}}, rec, nil)
	require.NoError(t, c.Connect(context.Background()))

	c.SubmitOrder(limit("O-1", order.SideBuy, "10", "10.00"))
	c.OnQuoteTick(tick("10.00", "10.00", "100"))

	assert.Equal(t, []order.EventType{order.EventSubmitted, order.EventAccepted, order.EventFilled}, rec.types())
	assert.Equal(t, order.VenueOrderID("NASDAQ-1-001"), rec.events[1].Header().VenueOrderID)
	f, _ := order.FillOf(rec.events[2])
	assert.True(t, f.LastQty.Equal(d("10")))
	assert.True(t, f.LastPx.Equal(d("10.00")))
}
