package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/internal/engine"
	"exec-engine-go/internal/store"
	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

var aapl = market.NewInstrumentID("AAPL", "NASDAQ")

type staticHealth engine.Health

func (h staticHealth) Health() engine.Health { return engine.Health(h) }

func newTestServer(t *testing.T, healthy bool) (*Server, *store.Cache) {
	t.Helper()
	cache := store.New()

	acc := inventory.NewAccount("NASDAQ-001", inventory.AccountCash, "USD")
	acc.SetBalance("USD", decimal.NewFromInt(99900))
	cache.AddAccount("NASDAQ", acc)

	open := order.NewLimitOrder("O-1", "NASDAQ-001", aapl, order.SideBuy,
		decimal.NewFromInt(10), decimal.NewFromInt(100), order.TimeInForceGTC)
	require.NoError(t, cache.AddOrder(&open))
	done := order.NewMarketOrder("O-2", "NASDAQ-001", aapl, order.SideSell, decimal.NewFromInt(5))
	done.Status = order.StatusFilled
	done.FilledQty = decimal.NewFromInt(5)
	done.AvgPx = decimal.NewFromInt(101)
	require.NoError(t, cache.AddOrder(&done))

	pos := inventory.NewPosition("NASDAQ-001", aapl)
	pos.Update(decimal.NewFromInt(10), decimal.NewFromInt(100))
	cache.UpdatePosition(pos)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("exec_engine_fills_total 1\n"))
	})
	h := staticHealth{State: "RUNNING", Healthy: healthy, Clients: map[string]bool{"SANDBOX-NASDAQ": healthy}}
	return NewServer(cache, h, metrics, nil, nil), cache
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetOrders(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := get(t, s, "/api/v1/orders")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "O-1", all[0].ClientOrderID)
	assert.Equal(t, "100", all[0].Price)
	assert.Empty(t, all[0].AvgPx)
	assert.Equal(t, "101", all[1].AvgPx)

	rec = get(t, s, "/api/v1/orders?status=open")
	var open []OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	require.Len(t, open, 1)
	assert.Equal(t, "SUBMITTED", open[0].Status)

	rec = get(t, s, "/api/v1/orders?instrument=MSFT.NASDAQ")
	var none []OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &none))
	assert.Empty(t, none)
}

func TestGetOrder(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := get(t, s, "/api/v1/orders/O-2")
	require.Equal(t, http.StatusOK, rec.Code)
	var v OrderView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "FILLED", v.Status)
	assert.Equal(t, "AAPL.NASDAQ", v.InstrumentID)

	rec = get(t, s, "/api/v1/orders/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAccount(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := get(t, s, "/api/v1/accounts/NASDAQ-001")
	require.Equal(t, http.StatusOK, rec.Code)
	var v AccountView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "CASH", v.Type)
	require.Len(t, v.Balances, 1)
	assert.True(t, v.Balances[0].Total.Equal(decimal.NewFromInt(99900)))

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/accounts/nope").Code)
}

func TestGetPositions(t *testing.T) {
	s, _ := newTestServer(t, true)

	rec := get(t, s, "/api/v1/positions")
	require.Equal(t, http.StatusOK, rec.Code)
	var v []PositionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.Len(t, v, 1)
	assert.Equal(t, "LONG", v[0].Side)
	assert.Equal(t, "10", v[0].Quantity)

	rec = get(t, s, "/api/v1/positions?account=OTHER")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Empty(t, v)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, true)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)

	s, _ = newTestServer(t, false)
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":false`)
}

func TestMetricsAndMethods(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "exec_engine_fills_total")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
