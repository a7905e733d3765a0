package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/msgbus"
)

func TestCounters(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordCommand("SubmitOrder")
	m.RecordCommand("SubmitOrder")
	m.RecordDiscarded("duplicate")
	m.RecordFill(100.5)
	m.AddOpenOrders(2)
	m.AddOpenOrders(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("SubmitOrder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discarded.WithLabelValues("duplicate")))
	assert.Equal(t, 100.5, testutil.ToFloat64(m.filledNotional))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openOrders))
}

func TestNilMonitorIsNoop(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.RecordEvent("OrderFilled")
		m.RecordFill(1)
		m.RecordRESTError("submit")
	})
}

func TestHandlerExposesBusStats(t *testing.T) {
	m := New(DefaultConfig())
	bus := msgbus.New(nil)
	m.WatchBus(bus)
	m.WatchQueue(msgbus.NewQueue(bus, 4, nil))
	_ = bus.Send("missing", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "exec_engine_bus_no_endpoint_total 1"), body)
	assert.Contains(t, body, "exec_engine_dispatch_queue_depth 0")
}
