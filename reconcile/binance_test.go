package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

var (
	testAccount    = inventory.AccountID("BINANCE-001")
	testInstrument = market.NewInstrumentID("BTCUSDT-PERP", "BINANCE")
	testReportID   = uuid.MustParse("2d89666b-1a1e-4a75-b193-4eb3b454c757")
	testTsInit     = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
)

func futuresOrder() BinanceOrder {
	return BinanceOrder{
		Symbol:        "BTCUSDT",
		OrderID:       8886774,
		ClientOrderID: "O-20240102-001",
		Price:         "43000.10",
		AvgPrice:      "0.00000",
		OrigQty:       "0.010",
		ExecutedQty:   "0",
		Status:        "NEW",
		TimeInForce:   "GTC",
		Type:          "LIMIT",
		Side:          "BUY",
		StopPrice:     "0",
		WorkingType:   "CONTRACT_PRICE",
		Time:          1704164645000,
		UpdateTime:    1704164646500,
	}
}

func TestParseOrderStatusReportNew(t *testing.T) {
	r, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, futuresOrder(), testReportID, testTsInit)
	require.NoError(t, err)

	assert.Equal(t, order.StatusAccepted, r.Status)
	assert.Equal(t, order.SideBuy, r.Side)
	assert.Equal(t, order.TypeLimit, r.Type)
	assert.Equal(t, order.TimeInForceGTC, r.TimeInForce)
	assert.Equal(t, order.TriggerLast, r.TriggerType)
	assert.Equal(t, order.VenueOrderID("8886774"), r.VenueOrderID)
	assert.Equal(t, order.ClientOrderID("O-20240102-001"), r.ClientOrderID)
	assert.Equal(t, "43000.1", r.Price.String())
	assert.Nil(t, r.AvgPx, "zero avg price is not reported")
	assert.Nil(t, r.TriggerPrice, "zero stop price is not reported")
	assert.False(t, r.PostOnly)
	assert.Equal(t, time.UnixMilli(1704164645000).UTC(), r.TsAccepted)
	assert.Equal(t, time.UnixMilli(1704164646500).UTC(), r.TsLast)
	assert.Equal(t, testTsInit, r.TsInit)
	assert.Equal(t, testReportID, r.ReportID)
}

func TestParseOrderStatusReportPartiallyFilledPostOnly(t *testing.T) {
	raw := futuresOrder()
	raw.Status = "PARTIALLY_FILLED"
	raw.ExecutedQty = "0.004"
	raw.AvgPrice = "42999.95"
	raw.TimeInForce = "GTX"
	raw.Type = "STOP"
	raw.StopPrice = "42900"
	raw.WorkingType = "MARK_PRICE"

	r, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, raw, testReportID, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyFilled, r.Status)
	assert.Equal(t, order.TypeStopLimit, r.Type)
	assert.Equal(t, order.TimeInForceGTC, r.TimeInForce)
	assert.True(t, r.PostOnly)
	require.NotNil(t, r.AvgPx)
	assert.True(t, r.AvgPx.Equal(decimal.RequireFromString("42999.95")))
	require.NotNil(t, r.TriggerPrice)
	assert.Equal(t, "42900", r.TriggerPrice.String())
	assert.Equal(t, order.TriggerMark, r.TriggerType)
}

func TestUnmappedStatusIsFatal(t *testing.T) {
	raw := futuresOrder()
	raw.Status = "NEW_INSURANCE"
	_, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, raw, testReportID, testTsInit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnmappedEnum))

	var ue *UnmappedEnumError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "order status", ue.Field)
	assert.Equal(t, "NEW_INSURANCE", ue.Token)
	assert.Equal(t, "BINANCE_FUTURES", ue.Dialect)
}

func TestUnmappedWorkingType(t *testing.T) {
	raw := futuresOrder()
	raw.WorkingType = "INDEX_PRICE"
	_, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, raw, testReportID, testTsInit)
	assert.ErrorIs(t, err, ErrUnmappedEnum)

	raw.WorkingType = ""
	r, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, raw, testReportID, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.TriggerNone, r.TriggerType)
}

func TestMalformedDecimal(t *testing.T) {
	raw := futuresOrder()
	raw.OrigQty = "1e-x"
	_, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, raw, testReportID, testTsInit)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecimalPrecisionPreserved(t *testing.T) {
	raw := futuresOrder()
	raw.OrigQty = "0.1000000000000000055511151231257827"
	r, err := ParseOrderStatusReport(BinanceFutures, testAccount, testInstrument, raw, testReportID, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, "0.1000000000000000055511151231257827", r.Quantity.String())
}

func TestSpotDialect(t *testing.T) {
	raw := BinanceOrder{
		OrderID:             12,
		ClientOrderID:       "S-1",
		Price:               "2.50",
		OrigQty:             "10",
		ExecutedQty:         "4",
		CummulativeQuoteQty: "10.00",
		Status:              "EXPIRED_IN_MATCH",
		TimeInForce:         "GTC",
		Type:                "LIMIT_MAKER",
		Side:                "SELL",
		Time:                1,
		UpdateTime:          2,
	}
	r, err := ParseOrderStatusReport(BinanceSpot, testAccount, testInstrument, raw, testReportID, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.StatusExpired, r.Status)
	assert.Equal(t, order.TypeLimit, r.Type)
	assert.True(t, r.PostOnly)
	require.NotNil(t, r.AvgPx)
	assert.Equal(t, "2.5", r.AvgPx.String())

	raw.TimeInForce = "GTD"
	_, err = ParseOrderStatusReport(BinanceSpot, testAccount, testInstrument, raw, testReportID, testTsInit)
	assert.ErrorIs(t, err, ErrUnmappedEnum, "spot has no GTD")
}

func TestReconciliationIsPure(t *testing.T) {
	for _, d := range []*Dialect{BinanceFutures, BinanceSpot} {
		raw := futuresOrder()
		raw.WorkingType = ""
		a, err := ParseOrderStatusReport(d, testAccount, testInstrument, raw, testReportID, testTsInit)
		require.NoError(t, err)
		b, err := ParseOrderStatusReport(d, testAccount, testInstrument, raw, testReportID, testTsInit)
		require.NoError(t, err)
		assert.Equal(t, a, b, d.Name)
	}
}

func TestParseTradeReports(t *testing.T) {
	ft := BinanceFuturesTrade{
		ID: 698759, OrderID: 8886774, Side: "SELL",
		Price: "7819.01", Qty: "0.002",
		Commission: "-0.07819010", CommissionAsset: "USDT",
		Maker: true, Time: 1569514978020,
	}
	r, err := ParseFuturesTradeReport(BinanceFutures, testAccount, testInstrument, ft, testReportID, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.TradeID("698759"), r.TradeID)
	assert.Equal(t, order.SideSell, r.Side)
	assert.Equal(t, order.LiquidityMaker, r.Liquidity)
	assert.Equal(t, "USDT", r.Commission.Currency)
	assert.Equal(t, "-0.0781901", r.Commission.Amount.String())
	assert.Equal(t, time.UnixMilli(1569514978020).UTC(), r.TsEvent)

	st := BinanceSpotTrade{
		ID: 28457, OrderID: 100234, Price: "4.00000100", Qty: "12.00000000",
		Commission: "10.10000000", CommissionAsset: "BNB",
		IsBuyer: true, IsMaker: false, Time: 1499865549590,
	}
	s, err := ParseSpotTradeReport(BinanceSpot, testAccount, testInstrument, st, testReportID, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.SideBuy, s.Side)
	assert.Equal(t, order.LiquidityTaker, s.Liquidity)
	assert.Equal(t, order.VenueOrderID("100234"), s.VenueOrderID)

	ft.Side = "HOLD"
	_, err = ParseFuturesTradeReport(BinanceFutures, testAccount, testInstrument, ft, testReportID, testTsInit)
	assert.ErrorIs(t, err, ErrUnmappedEnum)
}

func TestParsePositionStatusReport(t *testing.T) {
	cases := []struct {
		amt  string
		side inventory.PositionSide
		qty  string
	}{
		{"-5", inventory.PositionShort, "5"},
		{"0", inventory.PositionShort, "0"},
		{"0.250", inventory.PositionLong, "0.25"},
	}
	for _, c := range cases {
		r, err := ParsePositionStatusReport(BinanceFutures, testAccount, testInstrument, BinancePosition{PositionAmt: c.amt}, testReportID, testTsInit)
		require.NoError(t, err)
		assert.Equal(t, c.side, r.Side, c.amt)
		assert.True(t, r.Quantity.Equal(decimal.RequireFromString(c.qty)), c.amt)
		assert.Equal(t, testTsInit, r.TsLast)
	}
}

func TestParseOrderUpdate(t *testing.T) {
	msg := BinanceOrderUpdateMsg{
		EventType:       "ORDER_TRADE_UPDATE",
		TransactionTime: 1568879465650,
		Order: BinanceOrderUpdateBody{
			ClientOrderID: "O-1", Side: "BUY", Type: "LIMIT", TimeInForce: "GTC",
			OrigQty: "0.010", Price: "9000", ExecType: "TRADE", Status: "PARTIALLY_FILLED",
			OrderID: 8886774, LastQty: "0.004", LastPx: "8999.5",
			CommissionAsset: "USDT", Commission: "0.0072", TradeTime: 1568879465651, TradeID: 42,
		},
	}
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	ev, err := ParseOrderUpdate(BinanceFutures, testAccount, testInstrument, msg, id, testTsInit)
	require.NoError(t, err)
	pf, ok := ev.(order.PartiallyFilled)
	require.True(t, ok, "got %T", ev)
	assert.Equal(t, order.TradeID("42"), pf.TradeID)
	assert.Equal(t, order.ClientOrderID("O-1"), pf.ClientOrderID)
	assert.Equal(t, order.LiquidityTaker, pf.Liquidity)
	assert.Equal(t, id, pf.EventID)

	msg.Order.Status = "FILLED"
	ev, err = ParseOrderUpdate(BinanceFutures, testAccount, testInstrument, msg, id, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.EventFilled, ev.Type())

	msg.Order.ExecType = "NEW"
	msg.Order.Status = "NEW"
	ev, err = ParseOrderUpdate(BinanceFutures, testAccount, testInstrument, msg, id, testTsInit)
	require.NoError(t, err)
	assert.Equal(t, order.EventAccepted, ev.Type())
	assert.Equal(t, order.VenueOrderID("8886774"), ev.Header().VenueOrderID)

	msg.Order.ExecType = "AMENDMENT"
	ev, err = ParseOrderUpdate(BinanceFutures, testAccount, testInstrument, msg, id, testTsInit)
	require.NoError(t, err)
	up := ev.(order.Updated)
	assert.Equal(t, "9000", up.Price.String())

	msg.Order.ExecType = "REPLACED"
	_, err = ParseOrderUpdate(BinanceFutures, testAccount, testInstrument, msg, id, testTsInit)
	assert.ErrorIs(t, err, ErrUnmappedEnum, "REPLACED is spot only")
}

func TestWireEncoding(t *testing.T) {
	s, err := BinanceFutures.WireOrderType(order.TypeLimitIfTouched, false)
	require.NoError(t, err)
	assert.Equal(t, "TAKE_PROFIT", s)

	tif, err := BinanceFutures.WireTimeInForce(order.TimeInForceGTC, true)
	require.NoError(t, err)
	assert.Equal(t, "GTX", tif)

	s, err = BinanceSpot.WireOrderType(order.TypeLimit, true)
	require.NoError(t, err)
	assert.Equal(t, "LIMIT_MAKER", s)

	_, err = BinanceSpot.WireOrderType(order.TypeTrailingStopMarket, false)
	assert.ErrorIs(t, err, ErrUnmappedEnum)
	_, err = BinanceFutures.WireTimeInForce(order.TimeInForceDay, false)
	assert.ErrorIs(t, err, ErrUnmappedEnum)
}
