package order

// StateTransition 状态转换
type StateTransition struct {
	From Status
	To   Status
}

// StateMachine 订单状态机，初始化后只读。
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

var defaultMachine = NewStateMachine()

// initializeTransitions 初始化所有合法的状态转换
func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		// 从SUBMITTED可以转到
		{StatusSubmitted, StatusAccepted},
		{StatusSubmitted, StatusRejected},
		{StatusSubmitted, StatusPartiallyFilled}, // 回报乱序：成交先于确认
		{StatusSubmitted, StatusFilled},
		{StatusSubmitted, StatusCanceled},
		{StatusSubmitted, StatusExpired},

		// 从ACCEPTED可以转到
		{StatusAccepted, StatusPartiallyFilled},
		{StatusAccepted, StatusFilled},
		{StatusAccepted, StatusPendingCancel},
		{StatusAccepted, StatusPendingUpdate},
		{StatusAccepted, StatusCanceled},
		{StatusAccepted, StatusExpired},

		// 从PARTIALLY_FILLED可以转到
		{StatusPartiallyFilled, StatusFilled},
		{StatusPartiallyFilled, StatusPendingCancel},
		{StatusPartiallyFilled, StatusPendingUpdate},
		{StatusPartiallyFilled, StatusCanceled},
		{StatusPartiallyFilled, StatusExpired},

		// 从PENDING_CANCEL可以转到
		{StatusPendingCancel, StatusCanceled},
		{StatusPendingCancel, StatusFilled},          // 撤单时全部成交
		{StatusPendingCancel, StatusAccepted},        // 撤单被拒，回退
		{StatusPendingCancel, StatusPartiallyFilled}, // 撤单被拒，回退
		{StatusPendingCancel, StatusExpired},

		// 从PENDING_UPDATE可以转到
		{StatusPendingUpdate, StatusAccepted},
		{StatusPendingUpdate, StatusPartiallyFilled},
		{StatusPendingUpdate, StatusFilled},
		{StatusPendingUpdate, StatusPendingCancel},
		{StatusPendingUpdate, StatusCanceled},
		{StatusPendingUpdate, StatusExpired},

		// 终态不能转换（FILLED, CANCELED, REJECTED, EXPIRED）
	}

	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to Status) error {
	if sm.IsFinalState(from) {
		return &TransitionError{From: from, To: to}
	}
	// 相同状态允许（幂等性）
	if from == to {
		return nil
	}
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current Status) []Status {
	allowed := make([]Status, 0)
	for transition := range sm.transitions {
		if transition.From == current {
			allowed = append(allowed, transition.To)
		}
	}
	return allowed
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(status Status) bool {
	switch status {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// IsActiveState 判断是否是活跃状态（可能产生成交）
func (sm *StateMachine) IsActiveState(status Status) bool {
	switch status {
	case StatusSubmitted, StatusAccepted, StatusPartiallyFilled, StatusPendingCancel, StatusPendingUpdate:
		return true
	default:
		return false
	}
}

// CanCancel 判断当前状态下是否可以撤单
func (sm *StateMachine) CanCancel(status Status) bool {
	switch status {
	case StatusAccepted, StatusPartiallyFilled, StatusPendingUpdate:
		return true
	default:
		return false
	}
}

// CanModify 判断当前状态下是否可以改单
func (sm *StateMachine) CanModify(status Status) bool {
	switch status {
	case StatusAccepted, StatusPartiallyFilled:
		return true
	default:
		return false
	}
}

// GetStateDescription 获取状态描述
func (sm *StateMachine) GetStateDescription(status Status) string {
	descriptions := map[Status]string{
		StatusSubmitted:       "订单已提交",
		StatusAccepted:        "订单已确认",
		StatusPartiallyFilled: "订单部分成交",
		StatusFilled:          "订单完全成交",
		StatusPendingCancel:   "订单撤销中",
		StatusPendingUpdate:   "订单修改中",
		StatusCanceled:        "订单已撤销",
		StatusRejected:        "订单被拒绝",
		StatusExpired:         "订单已过期",
	}

	if desc, ok := descriptions[status]; ok {
		return desc
	}
	return "未知状态"
}

// IsTerminal 使用默认状态机判断终态。
func IsTerminal(status Status) bool {
	return defaultMachine.IsFinalState(status)
}
