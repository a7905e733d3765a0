package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Venue 交易场所标识（交易所或模拟撮合）。
type Venue string

func (v Venue) String() string { return string(v) }

// InstrumentID 唯一标识某交易场所上的合约，文本形式为 SYMBOL.VENUE。
type InstrumentID struct {
	Symbol string
	Venue  Venue
}

// NewInstrumentID 构造合约标识。
func NewInstrumentID(symbol string, venue Venue) InstrumentID {
	return InstrumentID{Symbol: symbol, Venue: venue}
}

// ParseInstrumentID 解析 SYMBOL.VENUE 形式的文本。
func ParseInstrumentID(s string) (InstrumentID, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return InstrumentID{}, fmt.Errorf("invalid instrument id %q", s)
	}
	return InstrumentID{Symbol: s[:idx], Venue: Venue(s[idx+1:])}, nil
}

func (id InstrumentID) String() string {
	return id.Symbol + "." + string(id.Venue)
}

// IsZero reports whether the id is unset.
func (id InstrumentID) IsZero() bool {
	return id.Symbol == "" && id.Venue == ""
}

// Instrument 静态参考数据，只读。
type Instrument struct {
	ID             InstrumentID
	BaseCurrency   string
	QuoteCurrency  string
	PricePrecision int32
	SizePrecision  int32
	TickSize       decimal.Decimal
	StepSize       decimal.Decimal
	// Margin 为 true 时按保证金合约记账（只扣手续费，不交割现货余额）。
	Margin bool
}

// MakePrice 按价格精度截断。
func (i Instrument) MakePrice(v decimal.Decimal) decimal.Decimal {
	return v.Round(i.PricePrecision)
}

// MakeQty 按数量精度截断。
func (i Instrument) MakeQty(v decimal.Decimal) decimal.Decimal {
	return v.Truncate(i.SizePrecision)
}

// Validate 检查价格/数量是否符合步长，步长为 0 时跳过。
func (i Instrument) Validate(price, qty decimal.Decimal) error {
	if i.TickSize.IsPositive() && !price.IsZero() && !price.Mod(i.TickSize).IsZero() {
		return fmt.Errorf("price %s not aligned to tickSize %s", price, i.TickSize)
	}
	if i.StepSize.IsPositive() && !qty.Mod(i.StepSize).IsZero() {
		return fmt.Errorf("qty %s not aligned to stepSize %s", qty, i.StepSize)
	}
	return nil
}

// Money 金额 + 币种。
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney 构造金额。
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }
