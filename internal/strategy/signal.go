package strategy

import (
	"bfbot/internal/models"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientData = errors.New("Недостаточно свечей для расчёта сигнала")
	ErrInvalidInput     = errors.New("Некорректные входные данные")
)

type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalHold:
		return "HOLD"
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// BreakoutSignal compares the last confirmed candle against the close range of the term candles before it.
// The newest candle is treated as still forming and ignored.
func BreakoutSignal(term int, candles []models.Candle) (Signal, error) {
	if term < 1 || len(candles) < term+2 {
		return SignalHold, fmt.Errorf("%w: term=%d candles=%d", ErrInsufficientData, term, len(candles))
	}

	window := candles[len(candles)-(term+2) : len(candles)-1]
	eval := window[len(window)-1]
	window = window[:len(window)-1]

	high := window[0].Close
	low := window[0].Close
	for _, candle := range window[1:] {
		if candle.Close > high {
			high = candle.Close
		}
		if candle.Close < low {
			low = candle.Close
		}
	}

	switch {
	case eval.Close > high:
		return SignalBuy, nil
	case eval.Close < low:
		return SignalSell, nil
	default:
		return SignalHold, nil
	}
}

type Levels struct {
	Open  decimal.Decimal
	Close decimal.Decimal
}

// GridLevels returns the entry and take-profit prices around basePrice. Offsets are mirrored for a sell grid.
func GridLevels(basePrice, openOffset, closeOffset float64, side models.OrderSide) (Levels, error) {
	for _, v := range []float64{basePrice, openOffset, closeOffset} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Levels{}, fmt.Errorf("%w: base=%v open=%v close=%v", ErrInvalidInput, basePrice, openOffset, closeOffset)
		}
	}
	if side != models.OrderSideBuy && side != models.OrderSideSell {
		return Levels{}, fmt.Errorf("%w: side=%q", ErrInvalidInput, side)
	}

	base := decimal.NewFromFloat(basePrice)
	open := decimal.NewFromFloat(openOffset)
	closeOff := decimal.NewFromFloat(closeOffset)
	if side == models.OrderSideSell {
		open = open.Neg()
		closeOff = closeOff.Neg()
	}
	return Levels{
		Open:  base.Sub(open),
		Close: base.Add(closeOff),
	}, nil
}
