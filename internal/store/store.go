// Package store 执行核心的内存缓存：订单、账户、仓位、合约与最新报价。
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"exec-engine-go/inventory"
	"exec-engine-go/market"
	"exec-engine-go/order"
)

var (
	ErrDuplicateOrder = errors.New("client order id already exists")
	ErrOrderNotFound  = errors.New("order not found")
)

// Cache 订单、账户与参考数据的唯一事实来源。
// 写入只发生在分发协程（执行引擎）；读写锁只为让 HTTP/指标等外部读者拿到一致快照。
// 所有读取返回副本，调用方修改副本后需通过 Update* 写回。
type Cache struct {
	mu sync.RWMutex

	orders     map[order.ClientOrderID]*order.Order
	orderSeq   []order.ClientOrderID
	venueIndex map[order.VenueOrderID]order.ClientOrderID

	accounts      map[inventory.AccountID]*inventory.Account
	venueAccounts map[market.Venue]inventory.AccountID

	instruments map[market.InstrumentID]market.Instrument
	quotes      map[market.InstrumentID]market.QuoteTick
	positions   map[positionKey]*inventory.Position
}

type positionKey struct {
	account    inventory.AccountID
	instrument market.InstrumentID
}

// New 创建空缓存。
func New() *Cache {
	return &Cache{
		orders:        make(map[order.ClientOrderID]*order.Order),
		venueIndex:    make(map[order.VenueOrderID]order.ClientOrderID),
		accounts:      make(map[inventory.AccountID]*inventory.Account),
		venueAccounts: make(map[market.Venue]inventory.AccountID),
		instruments:   make(map[market.InstrumentID]market.Instrument),
		quotes:        make(map[market.InstrumentID]market.QuoteTick),
		positions:     make(map[positionKey]*inventory.Position),
	}
}

// AddInstrument 添加或覆盖合约参考数据。
func (c *Cache) AddInstrument(inst market.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[inst.ID] = inst
}

// Instrument 查询合约。
func (c *Cache) Instrument(id market.InstrumentID) (market.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[id]
	return inst, ok
}

// Instruments 所有合约，按编号排序。
func (c *Cache) Instruments() []market.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]market.Instrument, 0, len(c.instruments))
	for _, inst := range c.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// AddAccount 添加账户并绑定到场所。
func (c *Cache) AddAccount(venue market.Venue, acc *inventory.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[acc.ID] = acc.Clone()
	c.venueAccounts[venue] = acc.ID
}

// Account 账户副本。
func (c *Cache) Account(id inventory.AccountID) (*inventory.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	acc, ok := c.accounts[id]
	if !ok {
		return nil, false
	}
	return acc.Clone(), true
}

// AccountForVenue 场所绑定的账户副本。
func (c *Cache) AccountForVenue(venue market.Venue) (*inventory.Account, bool) {
	c.mu.RLock()
	id, ok := c.venueAccounts[venue]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.Account(id)
}

// UpdateAccount 写回账户。
func (c *Cache) UpdateAccount(acc *inventory.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[acc.ID] = acc.Clone()
}

// AddOrder 新增订单；客户端订单号重复时报错。
func (c *Cache) AddOrder(o *order.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.orders[o.ClientOrderID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ClientOrderID)
	}
	c.orders[o.ClientOrderID] = o.Clone()
	c.orderSeq = append(c.orderSeq, o.ClientOrderID)
	if o.VenueOrderID != "" {
		c.venueIndex[o.VenueOrderID] = o.ClientOrderID
	}
	return nil
}

// UpdateOrder 写回订单，同时维护场所订单号索引。
func (c *Cache) UpdateOrder(o *order.Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.orders[o.ClientOrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ClientOrderID)
	}
	if prev.VenueOrderID != o.VenueOrderID && prev.VenueOrderID != "" {
		delete(c.venueIndex, prev.VenueOrderID)
	}
	if o.VenueOrderID != "" {
		c.venueIndex[o.VenueOrderID] = o.ClientOrderID
	}
	c.orders[o.ClientOrderID] = o.Clone()
	return nil
}

// Order 订单副本。
func (c *Cache) Order(id order.ClientOrderID) (*order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// OrderByVenueID 按场所订单号查找。
func (c *Cache) OrderByVenueID(id order.VenueOrderID) (*order.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cid, ok := c.venueIndex[id]
	if !ok {
		return nil, false
	}
	return c.orders[cid].Clone(), true
}

// Orders 按提交顺序返回满足过滤条件的订单副本；filter 为 nil 时返回全部。
func (c *Cache) Orders(filter func(*order.Order) bool) []*order.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*order.Order, 0, len(c.orderSeq))
	for _, id := range c.orderSeq {
		o := c.orders[id]
		if filter == nil || filter(o) {
			out = append(out, o.Clone())
		}
	}
	return out
}

// OpenOrders 未终结的订单。
func (c *Cache) OpenOrders() []*order.Order {
	return c.Orders(func(o *order.Order) bool { return o.IsOpen() })
}

// OrdersForInstrument 指定合约的订单。
func (c *Cache) OrdersForInstrument(id market.InstrumentID) []*order.Order {
	return c.Orders(func(o *order.Order) bool { return o.InstrumentID == id })
}

// Position 仓位副本；不存在时返回空仓位。
func (c *Cache) Position(account inventory.AccountID, id market.InstrumentID) *inventory.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.positions[positionKey{account, id}]; ok {
		cp := *p
		return &cp
	}
	return inventory.NewPosition(account, id)
}

// UpdatePosition 写回仓位。
func (c *Cache) UpdatePosition(p *inventory.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.positions[positionKey{p.AccountID, p.InstrumentID}] = &cp
}

// Positions 所有仓位副本。
func (c *Cache) Positions() []inventory.Position {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]inventory.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].InstrumentID.String() < out[j].InstrumentID.String()
	})
	return out
}

// UpdateQuote 记录最新报价。
func (c *Cache) UpdateQuote(tick market.QuoteTick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[tick.InstrumentID] = tick
}

// Quote 最新报价。
func (c *Cache) Quote(id market.InstrumentID) (market.QuoteTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[id]
	return q, ok
}
