package inventory

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// AccountID 账户标识，通常为 VENUE-编号。
type AccountID string

// AccountType 账户类型。
type AccountType string

const (
	AccountCash   AccountType = "CASH"
	AccountMargin AccountType = "MARGIN"
)

// Account 按币种记录余额，仅由执行引擎在成交/手续费事件中修改。
type Account struct {
	ID           AccountID
	Type         AccountType
	BaseCurrency string
	balances     map[string]decimal.Decimal
}

// NewAccount 创建账户。
func NewAccount(id AccountID, typ AccountType, baseCurrency string) *Account {
	if typ == "" {
		typ = AccountCash
	}
	return &Account{
		ID:           id,
		Type:         typ,
		BaseCurrency: baseCurrency,
		balances:     make(map[string]decimal.Decimal),
	}
}

// Balance 指定币种余额，不存在时为 0。
func (a *Account) Balance(currency string) decimal.Decimal {
	return a.balances[currency]
}

// Balances 余额快照，按币种排序。
func (a *Account) Balances() []Balance {
	out := make([]Balance, 0, len(a.balances))
	for cur, amt := range a.balances {
		out = append(out, Balance{Currency: cur, Total: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// Credit 增加余额。
func (a *Account) Credit(currency string, amount decimal.Decimal) {
	a.balances[currency] = a.balances[currency].Add(amount)
}

// Debit 扣减余额。余额允许为负（保证金/借贷由上层风控约束）。
func (a *Account) Debit(currency string, amount decimal.Decimal) {
	a.balances[currency] = a.balances[currency].Sub(amount)
}

// SetBalance 直接设置余额，用于初始化或对账覆盖。
func (a *Account) SetBalance(currency string, amount decimal.Decimal) {
	a.balances[currency] = amount
}

// Clone 深拷贝。
func (a *Account) Clone() *Account {
	c := *a
	c.balances = make(map[string]decimal.Decimal, len(a.balances))
	for k, v := range a.balances {
		c.balances[k] = v
	}
	return &c
}

func (a *Account) String() string {
	return fmt.Sprintf("Account(%s, %s, %v)", a.ID, a.Type, a.Balances())
}

// Balance 单币种余额。
type Balance struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total"`
}
