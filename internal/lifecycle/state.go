package lifecycle

import (
	"errors"
	"fmt"
)

var (
	ErrPrecondition   = errors.New("Операция недопустима в текущем состоянии")
	ErrRetryExhausted = errors.New("Исчерпан лимит повторов")
	ErrStopped        = errors.New("Жизненный цикл ордера остановлен")
)

type State int

const (
	StateInit State = iota
	StatePending
	StateHold
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePending:
		return "PENDING"
	case StateHold:
		return "HOLD"
	case StateClosed:
		return "CLOSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Phase tells which order a PENDING lifecycle is waiting on.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseOpening
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseOpening:
		return "opening"
	case PhaseClosing:
		return "closing"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// PENDING -> INIT is a cancelled or abandoned entry, PENDING -> HOLD is either
// the entry fill or an abandoned exit.
var transitions = map[State][]State{
	StateInit:    {StatePending},
	StatePending: {StateHold, StateClosed, StateInit},
	StateHold:    {StatePending},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
