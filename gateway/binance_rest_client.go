package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"exec-engine-go/infrastructure/monitor"
	"exec-engine-go/reconcile"
)

const (
	BinanceFuturesRESTURL    = "https://fapi.binance.com"
	BinanceFuturesWSEndpoint = "wss://fstream.binance.com"
)

var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// BinanceRESTClient U 本位合约签名 REST 客户端；HTTPClient 可注入 httptest。
type BinanceRESTClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	HTTPClient   *http.Client
	RecvWindowMs int64
	Limiter      RateLimiter
	Monitor      *monitor.Monitor // 可选
}

// SignParams 按参数名排序编码后做 HMAC-SHA256 签名。
func SignParams(params url.Values, secret string) (query, signature string) {
	query = params.Encode()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return query, hex.EncodeToString(mac.Sum(nil))
}

// PlaceOrder POST /fapi/v1/order。
func (c *BinanceRESTClient) PlaceOrder(ctx context.Context, params url.Values) (reconcile.BinanceOrder, error) {
	var out reconcile.BinanceOrder
	err := c.do(ctx, "place", http.MethodPost, "/fapi/v1/order", params, true, &out)
	return out, err
}

// ModifyOrder PUT /fapi/v1/order，仅限价单可改。
func (c *BinanceRESTClient) ModifyOrder(ctx context.Context, params url.Values) (reconcile.BinanceOrder, error) {
	var out reconcile.BinanceOrder
	err := c.do(ctx, "modify", http.MethodPut, "/fapi/v1/order", params, true, &out)
	return out, err
}

// CancelOrder DELETE /fapi/v1/order，按客户端订单号撤单。
func (c *BinanceRESTClient) CancelOrder(ctx context.Context, symbol, clientOrderID string) (reconcile.BinanceOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)
	var out reconcile.BinanceOrder
	err := c.do(ctx, "cancel", http.MethodDelete, "/fapi/v1/order", params, true, &out)
	return out, err
}

// OpenOrders GET /fapi/v1/openOrders；symbol 为空时返回全部。
func (c *BinanceRESTClient) OpenOrders(ctx context.Context, symbol string) ([]reconcile.BinanceOrder, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	var out []reconcile.BinanceOrder
	err := c.do(ctx, "open_orders", http.MethodGet, "/fapi/v1/openOrders", params, true, &out)
	return out, err
}

// UserTrades GET /fapi/v1/userTrades；startTime 为 0 时由交易所取默认窗口。
func (c *BinanceRESTClient) UserTrades(ctx context.Context, symbol string, startTime int64) ([]reconcile.BinanceFuturesTrade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	var out []reconcile.BinanceFuturesTrade
	err := c.do(ctx, "user_trades", http.MethodGet, "/fapi/v1/userTrades", params, true, &out)
	return out, err
}

// PositionRisk GET /fapi/v2/positionRisk。
func (c *BinanceRESTClient) PositionRisk(ctx context.Context) ([]reconcile.BinancePosition, error) {
	var out []reconcile.BinancePosition
	err := c.do(ctx, "position_risk", http.MethodGet, "/fapi/v2/positionRisk", nil, true, &out)
	return out, err
}

// NewListenKey 创建用户数据流 listenKey。
func (c *BinanceRESTClient) NewListenKey(ctx context.Context) (string, error) {
	var out struct {
		ListenKey string `json:"listenKey"`
	}
	if err := c.do(ctx, "listen_key", http.MethodPost, "/fapi/v1/listenKey", nil, false, &out); err != nil {
		return "", err
	}
	if out.ListenKey == "" {
		return "", &TransportError{Op: "listen_key", Err: ErrEmptyListenKey}
	}
	return out.ListenKey, nil
}

// KeepAliveListenKey 延长 listenKey 有效期（60 分钟）。
func (c *BinanceRESTClient) KeepAliveListenKey(ctx context.Context) error {
	return c.do(ctx, "listen_key_keepalive", http.MethodPut, "/fapi/v1/listenKey", nil, false, nil)
}

// CloseListenKey 关闭用户数据流。
func (c *BinanceRESTClient) CloseListenKey(ctx context.Context) error {
	return c.do(ctx, "listen_key_close", http.MethodDelete, "/fapi/v1/listenKey", nil, false, nil)
}

func (c *BinanceRESTClient) do(ctx context.Context, op, method, path string, params url.Values, signed bool, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return &TransportError{Op: op, Err: errors.New("http client not set")}
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Err: err}
		}
	}
	start := time.Now()
	c.Monitor.RecordRESTRequest(op)
	defer func() { c.Monitor.RecordRESTLatency(op, time.Since(start).Seconds()) }()

	if params == nil {
		params = url.Values{}
	}
	query := params.Encode()
	if signed {
		params.Set("timestamp", strconv.FormatInt(timeNowMillis(), 10))
		if c.RecvWindowMs > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.RecvWindowMs, 10))
		}
		q, sig := SignParams(params, c.Secret)
		query = q + "&signature=" + sig
	}
	endpoint := c.BaseURL + path
	if query != "" {
		endpoint += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("X-MBX-APIKEY", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Monitor.RecordRESTError(op)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Monitor.RecordRESTError(op)
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		c.Monitor.RecordRESTError(op)
		te := &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(string(body))}
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil {
			te.Code, te.Msg = apiErr.Code, apiErr.Msg
		}
		return te
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
