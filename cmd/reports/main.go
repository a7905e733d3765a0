package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"exec-engine-go/config"
	"exec-engine-go/gateway"
	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

// 查询 Binance 合约场所的挂单、仓位与近期成交并打印对账报告，不下单。
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	venueName := flag.String("venue", "BINANCE", "binance_futures 场所名")
	since := flag.Duration("since", 24*time.Hour, "成交回溯时长")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	var venue *config.VenueConfig
	for i := range cfg.Venues {
		if cfg.Venues[i].Name == *venueName && cfg.Venues[i].Kind == config.VenueBinanceFutures {
			venue = &cfg.Venues[i]
		}
	}
	if venue == nil {
		log.Fatalf("未找到 binance_futures 场所 %s", *venueName)
	}

	var instruments []market.Instrument
	for _, ic := range cfg.InstrumentsFor(venue.Name) {
		inst, err := ic.Instrument()
		if err != nil {
			log.Fatalf("合约配置错误: %v", err)
		}
		instruments = append(instruments, inst)
	}

	client := gateway.NewBinanceFuturesClient(gateway.BinanceConfig{
		Venue:        market.Venue(venue.Name),
		AccountID:    inventory.AccountID(venue.AccountID),
		BaseURL:      venue.BaseURL,
		APIKey:       venue.APIKey,
		APISecret:    venue.APISecret,
		RecvWindowMs: venue.RecvWindowMs,
		RateLimit:    venue.RateLimit,
		Burst:        venue.Burst,
	}, instruments, order.EventSinkFunc(func(order.Event) {}), nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	orders, err := client.OrderStatusReports(ctx, market.InstrumentID{})
	if err != nil {
		log.Fatalf("查询挂单失败: %v", err)
	}
	fmt.Printf("open orders: %d\n", len(orders))
	for _, r := range orders {
		fmt.Printf("  %s %s %s %s %s@%s filled=%s status=%s\n",
			r.InstrumentID, r.VenueOrderID, r.ClientOrderID, r.Side, r.Quantity, r.Price, r.FilledQty, r.Status)
	}

	positions, err := client.PositionStatusReports(ctx)
	if err != nil {
		log.Fatalf("查询持仓失败: %v", err)
	}
	fmt.Printf("positions: %d\n", len(positions))
	for _, p := range positions {
		fmt.Printf("  %s %s qty=%s\n", p.InstrumentID, p.Side, p.Quantity)
	}

	startMs := time.Now().Add(-*since).UnixMilli()
	for _, inst := range instruments {
		trades, err := client.TradeReports(ctx, inst.ID, startMs)
		if err != nil {
			log.Printf("查询 %s 成交失败: %v", inst.ID, err)
			continue
		}
		fmt.Printf("trades %s: %d\n", inst.ID, len(trades))
		for _, tr := range trades {
			fmt.Printf("  %s %s %s@%s fee=%s %s\n", tr.TradeID, tr.Side, tr.LastQty, tr.LastPx, tr.Commission, tr.Liquidity)
		}
	}
}
