package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteTick 最优买卖价及挂单量。
type QuoteTick struct {
	InstrumentID InstrumentID
	Bid          decimal.Decimal
	Ask          decimal.Decimal
	BidSize      decimal.Decimal
	AskSize      decimal.Decimal
	TsEvent      time.Time
	TsInit       time.Time
}

// Mid 中间价；任一侧缺失时返回 0。
func (q QuoteTick) Mid() decimal.Decimal {
	if !q.Bid.IsPositive() || !q.Ask.IsPositive() {
		return decimal.Zero
	}
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Spread ask-bid。
func (q QuoteTick) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// QuoteTopic 行情在总线上的主题。
func QuoteTopic(id InstrumentID) string {
	return "data.quotes." + id.String()
}
