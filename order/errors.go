package order

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
	ErrOverfill          = errors.New("fill exceeds order quantity")
	ErrInvalidModify     = errors.New("invalid modify")
	ErrStaleEvent        = errors.New("event targets terminal order")
	ErrDuplicateEvent    = errors.New("duplicate fill event")
)

// StaleEventError 事件指向已终结的订单，丢弃并告警，不视为故障。
type StaleEventError struct {
	ClientOrderID ClientOrderID
	Status        Status
	Event         EventType
}

func (e *StaleEventError) Error() string {
	return fmt.Sprintf("%s for %s ignored: order already %s", e.Event, e.ClientOrderID, e.Status)
}

func (e *StaleEventError) Is(target error) bool { return target == ErrStaleEvent }

// DuplicateEventError 同一成交编号已计入订单。
type DuplicateEventError struct {
	ClientOrderID ClientOrderID
	TradeID       TradeID
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("trade %s already applied to %s", e.TradeID, e.ClientOrderID)
}

func (e *DuplicateEventError) Is(target error) bool { return target == ErrDuplicateEvent }

// TransitionError 描述非法的状态转换。
type TransitionError struct {
	From  Status
	To    Status
	Event EventType
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition: %s -> %s (%s)", e.From, e.To, e.Event)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
