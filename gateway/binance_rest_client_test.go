package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/infrastructure/monitor"
)

func fixedClock(t *testing.T) {
	timeNowMillis = func() int64 { return 1234567890000 }
	t.Cleanup(func() { timeNowMillis = func() int64 { return time.Now().UnixMilli() } })
}

func TestSignParams(t *testing.T) {
	p := url.Values{}
	p.Set("symbol", "BTCUSDT")
	p.Set("side", "BUY")
	query, sig := SignParams(p, "secret")
	assert.Equal(t, "side=BUY&symbol=BTCUSDT", query)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(query))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestBinanceRESTClientPlaceCancel(t *testing.T) {
	fixedClock(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
		q := r.URL.Query()
		assert.Equal(t, "1234567890000", q.Get("timestamp"))
		require.NotEmpty(t, q.Get("signature"))

		// 签名覆盖 signature 之前的全部参数
		raw := r.URL.RawQuery[:strings.Index(r.URL.RawQuery, "&signature=")]
		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte(raw))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), q.Get("signature"))

		switch r.Method {
		case http.MethodPost:
			io.WriteString(w, `{"orderId":1001,"clientOrderId":"cid","status":"NEW"}`)
		case http.MethodDelete:
			assert.Equal(t, "cid", q.Get("origClientOrderId"))
			io.WriteString(w, `{"orderId":1001,"status":"CANCELED"}`)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer ts.Close()

	cli := &BinanceRESTClient{BaseURL: ts.URL, APIKey: "key", Secret: "secret", HTTPClient: ts.Client(), RecvWindowMs: 5000}
	params := url.Values{}
	params.Set("symbol", "BTCUSDT")
	params.Set("newClientOrderId", "cid")
	resp, err := cli.PlaceOrder(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), resp.OrderID)

	_, err = cli.CancelOrder(context.Background(), "BTCUSDT", "cid")
	require.NoError(t, err)
}

func TestBinanceRESTClientErrorBody(t *testing.T) {
	fixedClock(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":-2019,"msg":"Margin is insufficient."}`)
	}))
	defer ts.Close()

	mon := monitor.New(monitor.DefaultConfig())
	cli := &BinanceRESTClient{BaseURL: ts.URL, APIKey: "key", Secret: "secret", HTTPClient: ts.Client(), Monitor: mon}
	_, err := cli.PlaceOrder(context.Background(), url.Values{})
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "place", te.Op)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Equal(t, -2019, te.Code)
	assert.Contains(t, err.Error(), "Margin is insufficient.")
	n, err := testutil.GatherAndCount(mon.Registry(), "exec_engine_rest_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBinanceRESTClientNetworkError(t *testing.T) {
	cli := &BinanceRESTClient{BaseURL: "http://127.0.0.1:1", HTTPClient: &http.Client{Timeout: time.Second}}
	err := cli.KeepAliveListenKey(context.Background())
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Zero(t, te.StatusCode)
	assert.Equal(t, "listen_key_keepalive", te.Op)
}

func TestBinanceRESTClientLimiterHonoursContext(t *testing.T) {
	cli := &BinanceRESTClient{BaseURL: "http://unused", HTTPClient: http.DefaultClient, Limiter: NewTokenBucketLimiter(0.001, 1)}
	require.NoError(t, cli.Limiter.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cli.OpenOrders(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewListenKey(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("signature"), "listenKey requests are not signed")
		io.WriteString(w, `{"listenKey":"abc"}`)
	}))
	defer ts.Close()
	cli := &BinanceRESTClient{BaseURL: ts.URL, APIKey: "key", HTTPClient: ts.Client()}
	key, err := cli.NewListenKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
}
