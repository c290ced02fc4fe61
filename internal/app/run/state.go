package run

import (
	"errors"
	"fmt"
)

// State 是一次重命名事务的阶段。
type State uint8

const (
	StateIdle State = iota
	StatePreparing
	StatePrepared
	StateExecuting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StatePrepared:
		return "prepared"
	case StateExecuting:
		return "executing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal 表示事务已结束（不能再推进）。
func (s State) Terminal() bool { return s == StateCommitted || s == StateAborted }

var ErrInvalidTransition = errors.New("非法的事务状态转换")

// TransitionError 携带非法转换的起止状态；errors.Is(err, ErrInvalidTransition) 为 true。
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v：%s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// transitions 是允许的状态转换表；Aborted 可以从任一非终态进入。
var transitions = map[State][]State{
	StateIdle:      {StatePreparing},
	StatePreparing: {StatePrepared, StateAborted},
	StatePrepared:  {StateExecuting, StateCommitted, StateAborted},
	StateExecuting: {StateCommitted, StateAborted},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
