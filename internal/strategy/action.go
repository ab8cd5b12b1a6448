package strategy

import (
	"bfbot/internal/models"
	"fmt"
)

type Position int

const (
	PositionFlat Position = iota
	PositionLong
	PositionShort
)

func (p Position) String() string {
	switch p {
	case PositionFlat:
		return "FLAT"
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

func (p Position) Side() models.OrderSide {
	if p == PositionShort {
		return models.OrderSideSell
	}
	return models.OrderSideBuy
}

type Action int

const (
	ActionNoPosition Action = iota
	ActionHold
	ActionBuy
	ActionSell
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionNoPosition:
		return "NOPOS"
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	case ActionExit:
		return "EXIT"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// NextAction decides what to do with the slot. Flat slots break out over entryTerm,
// open ones exit on a breakout against them over closeTerm.
func NextAction(pos Position, entryTerm, closeTerm int, candles []models.Candle) (Action, error) {
	switch pos {
	case PositionFlat:
		sig, err := BreakoutSignal(entryTerm, candles)
		if err != nil {
			return ActionNoPosition, err
		}
		switch sig {
		case SignalBuy:
			return ActionBuy, nil
		case SignalSell:
			return ActionSell, nil
		default:
			return ActionNoPosition, nil
		}
	case PositionLong:
		sig, err := BreakoutSignal(closeTerm, candles)
		if err != nil {
			return ActionHold, err
		}
		if sig == SignalSell {
			return ActionExit, nil
		}
		return ActionHold, nil
	case PositionShort:
		sig, err := BreakoutSignal(closeTerm, candles)
		if err != nil {
			return ActionHold, err
		}
		if sig == SignalBuy {
			return ActionExit, nil
		}
		return ActionHold, nil
	}
	return ActionHold, fmt.Errorf("%w: position=%s", ErrInvalidInput, pos)
}
