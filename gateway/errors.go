package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected   = errors.New("binance client not connected")
	ErrUnknownOrder   = errors.New("order not known to client")
	ErrMissingAPIKey  = errors.New("api key and secret required")
	ErrNonUserData    = errors.New("not a user data event")
	ErrUnknownSymbol  = errors.New("symbol not registered")
	ErrNoStreams      = errors.New("no streams subscribed")
	ErrEmptyListenKey = errors.New("empty listenKey")
)

// TransportError REST/WS 调用失败。StatusCode 为 0 表示请求未到达交易所。
type TransportError struct {
	Op         string
	StatusCode int
	Code       int    // 交易所错误码
	Msg        string // 交易所错误信息
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: status %d: binance error %d: %s", e.Op, e.StatusCode, e.Code, e.Msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }
