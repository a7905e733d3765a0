package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"exec-engine-go/infrastructure/monitor"
)

// BinanceWSReal 连接 Binance WS 并把原始消息交给回调；断线自动重连。
type BinanceWSReal struct {
	BaseEndpoint string // 默认 wss://fstream.binance.com
	Dialer       *websocket.Dialer
	MaxRetries   int // 连续拨号失败上限，0 表示不限
	RetryBackoff time.Duration
	ReadTimeout  time.Duration
	OnConnected  func()
	Monitor      *monitor.Monitor
	Logger       *zap.Logger
}

func NewBinanceWSReal(endpoint string, logger *zap.Logger) *BinanceWSReal {
	if endpoint == "" {
		endpoint = BinanceFuturesWSEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceWSReal{
		BaseEndpoint: strings.TrimSuffix(endpoint, "/"),
		Dialer:       websocket.DefaultDialer,
		MaxRetries:   5,
		RetryBackoff: 3 * time.Second,
		ReadTimeout:  10 * time.Minute,
		Logger:       logger,
	}
}

// UserStreamPath 用户数据流路径。
func UserStreamPath(listenKey string) string { return "/ws/" + listenKey }

// CombinedStreamPath 组合流路径，例如 btcusdt@bookTicker。
func CombinedStreamPath(streams []string) (string, error) {
	if len(streams) == 0 {
		return "", ErrNoStreams
	}
	return "/stream?streams=" + strings.Join(streams, "/"), nil
}

// Run 连接 path 并逐条回调消息，直到 ctx 取消（返回 nil）或重连次数耗尽。
func (b *BinanceWSReal) Run(ctx context.Context, path string, handle func([]byte)) error {
	retries := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, _, err := b.Dialer.DialContext(ctx, b.BaseEndpoint+path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if b.MaxRetries > 0 && retries >= b.MaxRetries {
				return fmt.Errorf("websocket reconnection failed after %d retries: %w", b.MaxRetries, err)
			}
			retries++
			backoff := time.Duration(retries) * b.RetryBackoff
			b.Logger.Warn("ws dial failed", zap.Int("retry", retries), zap.Duration("backoff", backoff), zap.Error(err))
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			continue
		}
		retries = 0
		b.Monitor.RecordWSConnection()
		b.Logger.Info("ws connected", zap.String("path", redact(path)))
		if b.OnConnected != nil {
			b.OnConnected()
		}

		err = b.readLoop(ctx, conn, handle)
		b.Monitor.RecordWSDisconnect()
		if ctx.Err() != nil {
			return nil
		}
		b.Logger.Warn("ws disconnected, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, b.RetryBackoff) {
			return nil
		}
	}
}

func (b *BinanceWSReal) readLoop(ctx context.Context, conn *websocket.Conn, handle func([]byte)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	extend := func() {
		if b.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(b.ReadTimeout))
		}
	}
	extend()
	conn.SetPingHandler(func(data string) error {
		extend()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		extend()
		handle(msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// listenKey 属于凭据，日志中只保留前缀。
func redact(path string) string {
	if !strings.HasPrefix(path, "/ws/") || len(path) <= 12 {
		return path
	}
	return path[:12] + "..."
}
