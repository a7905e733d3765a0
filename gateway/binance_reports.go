package gateway

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"exec-engine-go/market"
	"exec-engine-go/reconcile"
)

// OrderStatusReports 查询挂单并翻译为订单报告；id 为空时查询全部已登记合约。
// 任一记录无法翻译时整体失败，不做部分返回。
func (c *BinanceFuturesClient) OrderStatusReports(ctx context.Context, id market.InstrumentID) ([]reconcile.OrderStatusReport, error) {
	raws, err := c.rest.OpenOrders(ctx, id.Symbol)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.OrderStatusReport, 0, len(raws))
	for _, raw := range raws {
		inst, ok := c.instrument(raw.Symbol)
		if !ok {
			continue
		}
		r, err := reconcile.ParseOrderStatusReport(c.dialect, c.cfg.AccountID, inst, raw, uuid.New(), c.now())
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", raw.OrderID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// TradeReports 查询某合约 sinceMillis 之后的成交。
func (c *BinanceFuturesClient) TradeReports(ctx context.Context, id market.InstrumentID, sinceMillis int64) ([]reconcile.TradeReport, error) {
	if _, ok := c.instrument(id.Symbol); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, id)
	}
	raws, err := c.rest.UserTrades(ctx, id.Symbol, sinceMillis)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.TradeReport, 0, len(raws))
	for _, raw := range raws {
		r, err := reconcile.ParseFuturesTradeReport(c.dialect, c.cfg.AccountID, id, raw, uuid.New(), c.now())
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", strconv.FormatInt(raw.ID, 10), err)
		}
		out = append(out, r)
	}
	return out, nil
}

// PositionStatusReports 查询仓位，只返回已登记合约。
func (c *BinanceFuturesClient) PositionStatusReports(ctx context.Context) ([]reconcile.PositionStatusReport, error) {
	raws, err := c.rest.PositionRisk(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.PositionStatusReport, 0, len(raws))
	for _, raw := range raws {
		inst, ok := c.instrument(raw.Symbol)
		if !ok {
			continue
		}
		r, err := reconcile.ParsePositionStatusReport(c.dialect, c.cfg.AccountID, inst, raw, uuid.New(), c.now())
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", raw.Symbol, err)
		}
		out = append(out, r)
	}
	return out, nil
}
