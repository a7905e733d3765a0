package api

import (
	"time"

	"exec-engine-go/inventory"
	"exec-engine-go/order"
)

// OrderView 订单只读视图，数值以字符串输出。
type OrderView struct {
	ClientOrderID string    `json:"client_order_id"`
	VenueOrderID  string    `json:"venue_order_id,omitempty"`
	AccountID     string    `json:"account_id,omitempty"`
	InstrumentID  string    `json:"instrument_id"`
	Type          string    `json:"type"`
	Side          string    `json:"side"`
	TimeInForce   string    `json:"time_in_force"`
	Quantity      string    `json:"quantity"`
	Price         string    `json:"price,omitempty"`
	TriggerPrice  string    `json:"trigger_price,omitempty"`
	FilledQty     string    `json:"filled_qty"`
	AvgPx         string    `json:"avg_px,omitempty"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	TsLast        time.Time `json:"ts_last"`
}

type AccountView struct {
	ID           string              `json:"id"`
	Type         string              `json:"type"`
	BaseCurrency string              `json:"base_currency"`
	Balances     []inventory.Balance `json:"balances"`
}

type PositionView struct {
	AccountID    string `json:"account_id"`
	InstrumentID string `json:"instrument_id"`
	Side         string `json:"side"`
	Quantity     string `json:"quantity"`
	AvgOpen      string `json:"avg_open"`
	RealizedPnL  string `json:"realized_pnl"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func orderView(o *order.Order) OrderView {
	v := OrderView{
		ClientOrderID: string(o.ClientOrderID),
		VenueOrderID:  string(o.VenueOrderID),
		AccountID:     string(o.AccountID),
		InstrumentID:  o.InstrumentID.String(),
		Type:          string(o.Type),
		Side:          string(o.Side),
		TimeInForce:   string(o.TimeInForce),
		Quantity:      o.Quantity.String(),
		FilledQty:     o.FilledQty.String(),
		Status:        string(o.Status),
		LastError:     o.LastError,
		TsLast:        o.TsLast,
	}
	if o.Type.HasPrice() {
		v.Price = o.Price.String()
	}
	if o.Type.HasTrigger() {
		v.TriggerPrice = o.TriggerPrice.String()
	}
	if px, ok := o.AveragePrice(); ok {
		v.AvgPx = px.String()
	}
	return v
}

func positionView(p inventory.Position) PositionView {
	return PositionView{
		AccountID:    string(p.AccountID),
		InstrumentID: p.InstrumentID.String(),
		Side:         string(p.Side()),
		Quantity:     p.Quantity().String(),
		AvgOpen:      p.AvgOpen.String(),
		RealizedPnL:  p.RealizedPnL.String(),
	}
}
