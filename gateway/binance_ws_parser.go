package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"exec-engine-go/market"
)

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTicker bookTicker 推送的最优买卖价。
type BookTicker struct {
	Symbol    string `json:"s"`
	Bid       string `json:"b"`
	BidQty    string `json:"B"`
	Ask       string `json:"a"`
	AskQty    string `json:"A"`
	TxTime    int64  `json:"T"`
	EventTime int64  `json:"E"`
}

// BookTickerStream 合约 bookTicker 流名。
func BookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

// unwrap 组合流取 data，单流原样返回。
func unwrap(raw []byte) ([]byte, error) {
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if msg.Stream == "" || len(msg.Data) == 0 {
		return raw, nil
	}
	return msg.Data, nil
}

// ParseBookTicker 把 bookTicker 消息（单流或组合流）转换为 QuoteTick。
func ParseBookTicker(raw []byte, venue market.Venue, tsInit time.Time) (market.QuoteTick, error) {
	data, err := unwrap(raw)
	if err != nil {
		return market.QuoteTick{}, err
	}
	var bt BookTicker
	if err := json.Unmarshal(data, &bt); err != nil {
		return market.QuoteTick{}, err
	}
	if bt.Symbol == "" {
		return market.QuoteTick{}, fmt.Errorf("bookTicker without symbol")
	}
	q := market.QuoteTick{
		InstrumentID: market.NewInstrumentID(bt.Symbol, venue),
		TsInit:       tsInit,
	}
	fields := []struct {
		dst  *decimal.Decimal
		name string
		text string
	}{
		{&q.Bid, "b", bt.Bid}, {&q.BidSize, "B", bt.BidQty},
		{&q.Ask, "a", bt.Ask}, {&q.AskSize, "A", bt.AskQty},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.text)
		if err != nil {
			return market.QuoteTick{}, fmt.Errorf("bookTicker %s %q: %w", f.name, f.text, err)
		}
		*f.dst = v
	}
	ts := bt.TxTime
	if ts == 0 {
		ts = bt.EventTime
	}
	q.TsEvent = time.UnixMilli(ts).UTC()
	return q, nil
}

// UserDataEventType 读取用户数据流消息的事件类型（e 字段）。
func UserDataEventType(raw []byte) (string, error) {
	var head struct {
		Event string `json:"e"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", err
	}
	if head.Event == "" {
		return "", ErrNonUserData
	}
	return head.Event, nil
}
