package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"exec-engine-go/config"
	"exec-engine-go/infrastructure/logger"
	"exec-engine-go/internal/container"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

// 本地沙盒演示：随机游走报价驱动模拟场所，按固定间隔提交限价单并打印结果。
// 不连接真实交易所。
func main() {
	symbol := flag.String("symbol", "AAPL", "合约代码")
	venue := flag.String("venue", "SIM", "沙盒场所名")
	ticks := flag.Int("ticks", 20, "随机报价次数")
	base := flag.Float64("base", 100, "初始中间价")
	every := flag.Int("every", 5, "每隔多少个报价提交一笔限价单")
	qty := flag.String("qty", "1", "单笔数量")
	apiAddr := flag.String("api", "", "只读 API 监听地址，为空不启动")
	flag.Parse()

	cfg := config.AppConfig{
		Env:    "sandbox",
		Logger: logger.Config{Level: "warn", Format: "console"},
		API:    config.APIConfig{Addr: *apiAddr},
		Instruments: []config.InstrumentConfig{{
			ID: *symbol + "." + *venue, BaseCurrency: *symbol, QuoteCurrency: "USD",
			PricePrecision: 2, SizePrecision: 0, TickSize: "0.01",
		}},
		Accounts: []config.AccountConfig{{
			ID: *venue + "-001", Venue: *venue, Type: "CASH", BaseCurrency: "USD",
			Balances: map[string]string{"USD": "1000000"},
		}},
		Venues: []config.VenueConfig{{Name: *venue, Kind: config.VenueSandbox, AccountID: *venue + "-001", TakerFee: "0.0005"}},
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid sandbox config: %v\n", err)
		os.Exit(1)
	}

	c := container.NewFromConfig(cfg)
	if err := c.Build(); err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "start failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Stop()

	c.Bus().Subscribe("events.order.*", func(msg interface{}) {
		ev := msg.(order.Event)
		h := ev.Header()
		fmt.Printf("event %-16s %s venue_id=%s\n", ev.Type(), h.ClientOrderID, h.VenueOrderID)
	})

	id := market.NewInstrumentID(*symbol, market.Venue(*venue))
	size := decimal.RequireFromString(*qty)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	mid := *base
	placed := 0
	for i := 0; i < *ticks; i++ {
		mid += rng.NormFloat64() * 0.1 // 简单高斯扰动
		m := decimal.NewFromFloat(mid).Round(2)
		spread := decimal.RequireFromString("0.02")
		tick := market.QuoteTick{
			InstrumentID: id,
			Bid:          m.Sub(spread),
			Ask:          m.Add(spread),
			BidSize:      decimal.NewFromInt(100),
			AskSize:      decimal.NewFromInt(100),
			TsEvent:      time.Now().UTC(),
		}
		if err := c.Engine().PublishQuote(tick); err != nil {
			c.Logger().Warn("quote dropped", zap.Error(err))
		}

		if *every > 0 && i%*every == 0 {
			side := order.SideBuy
			px := tick.Bid
			if rng.Intn(2) == 1 {
				side, px = order.SideSell, tick.Ask
			}
			placed++
			o := order.NewLimitOrder(order.ClientOrderID(fmt.Sprintf("SBX-%03d", placed)), "", id, side, size, px, order.TimeInForceGTC)
			if err := c.Engine().Submit(order.NewSubmitOrder(o)); err != nil {
				c.Logger().Warn("submit failed", zap.Error(err))
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	filled := 0
	for _, o := range c.Cache().Orders(nil) {
		if o.Status == order.StatusFilled {
			filled++
		}
		fmt.Printf("order %s %s %s %s@%s filled=%s\n", o.ClientOrderID, o.Status, o.Side, o.Quantity, o.Price, o.FilledQty)
	}
	for _, p := range c.Cache().Positions() {
		fmt.Printf("position %s %s %s avg=%s\n", p.InstrumentID, p.Side(), p.Quantity(), p.AvgOpen)
	}
	fmt.Printf("orders=%d filled=%d\n", placed, filled)
}
