package inventory

import (
	"github.com/shopspring/decimal"

	"exec-engine-go/market"
)

// PositionSide 仓位方向。
type PositionSide string

const (
	PositionFlat  PositionSide = "FLAT"
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Position 维护单个合约的净仓位（带符号）与开仓均价。
type Position struct {
	InstrumentID market.InstrumentID
	AccountID    AccountID
	Net          decimal.Decimal
	AvgOpen      decimal.Decimal
	RealizedPnL  decimal.Decimal
}

// NewPosition 创建空仓位。
func NewPosition(account AccountID, instrument market.InstrumentID) *Position {
	return &Position{InstrumentID: instrument, AccountID: account}
}

// Update 根据成交数量调整仓位；deltaQty 买入为正、卖出为负。
func (p *Position) Update(deltaQty, price decimal.Decimal) {
	if deltaQty.IsZero() {
		return
	}
	// 同向加仓：加权平均成本
	if p.Net.IsZero() || p.Net.Sign() == deltaQty.Sign() {
		totalValue := p.AvgOpen.Mul(p.Net.Abs()).Add(price.Mul(deltaQty.Abs()))
		p.Net = p.Net.Add(deltaQty)
		p.AvgOpen = totalValue.Div(p.Net.Abs())
		return
	}

	// 反向：先平仓，剩余部分按成交价开新仓
	closing := decimal.Min(p.Net.Abs(), deltaQty.Abs())
	pnl := price.Sub(p.AvgOpen).Mul(closing)
	if p.Net.IsNegative() {
		pnl = pnl.Neg()
	}
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Net = p.Net.Add(deltaQty)
	switch {
	case p.Net.IsZero():
		p.AvgOpen = decimal.Zero
	case p.Net.Sign() == deltaQty.Sign():
		p.AvgOpen = price
	}
}

// Side 当前方向。
func (p *Position) Side() PositionSide {
	switch p.Net.Sign() {
	case 1:
		return PositionLong
	case -1:
		return PositionShort
	default:
		return PositionFlat
	}
}

// Quantity 仓位绝对数量。
func (p *Position) Quantity() decimal.Decimal { return p.Net.Abs() }

// Valuation 基于 mid 价计算未实现盈亏。
func (p *Position) Valuation(mid decimal.Decimal) decimal.Decimal {
	if p.Net.IsZero() {
		return decimal.Zero
	}
	return mid.Sub(p.AvgOpen).Mul(p.Net)
}
