package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"exec-engine-go/market"
)

// RunQuoteFeed 订阅合约 bookTicker 并把行情交给 publish，直到 ctx 取消。
func RunQuoteFeed(ctx context.Context, ws *BinanceWSReal, venue market.Venue, symbols []string, publish func(market.QuoteTick) error) error {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, BookTickerStream(s))
	}
	path, err := CombinedStreamPath(streams)
	if err != nil {
		return err
	}
	return ws.Run(ctx, path, func(raw []byte) {
		q, err := ParseBookTicker(raw, venue, time.Now().UTC())
		if err != nil {
			ws.Logger.Debug("bookTicker skipped", zap.Error(err))
			return
		}
		if err := publish(q); err != nil {
			ws.Logger.Warn("quote dropped", zap.String("instrument", q.InstrumentID.String()), zap.Error(err))
		}
	})
}
