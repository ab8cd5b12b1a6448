package strategy

import (
	"bfbot/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAction(t *testing.T) {
	up := candlesFromCloses(100, 101, 102, 103, 110, 0)
	down := candlesFromCloses(100, 99, 98, 97, 90, 0)
	flat := candlesFromCloses(100, 101, 100, 101, 100, 0)

	cases := []struct {
		name    string
		pos     Position
		candles []models.Candle
		want    Action
	}{
		{"flat breakout up", PositionFlat, up, ActionBuy},
		{"flat breakout down", PositionFlat, down, ActionSell},
		{"flat inside", PositionFlat, flat, ActionNoPosition},
		{"long keeps on up", PositionLong, up, ActionHold},
		{"long keeps inside", PositionLong, flat, ActionHold},
		{"long exits on down", PositionLong, down, ActionExit},
		{"short keeps on down", PositionShort, down, ActionHold},
		{"short keeps inside", PositionShort, flat, ActionHold},
		{"short exits on up", PositionShort, up, ActionExit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextAction(tc.pos, 4, 2, tc.candles)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextAction_UsesSeparateTerms(t *testing.T) {
	// Over 2 candles the last close is a new low, over 4 it is not.
	candles := candlesFromCloses(90, 100, 101, 102, 95, 0)

	got, err := NextAction(PositionFlat, 4, 2, candles)
	require.NoError(t, err)
	assert.Equal(t, ActionNoPosition, got)

	got, err = NextAction(PositionLong, 4, 2, candles)
	require.NoError(t, err)
	assert.Equal(t, ActionExit, got)
}

func TestNextAction_PropagatesInsufficientData(t *testing.T) {
	_, err := NextAction(PositionFlat, 10, 2, candlesFromCloses(1, 2, 3))
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = NextAction(Position(7), 1, 1, candlesFromCloses(1, 2, 3))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "NOPOS", ActionNoPosition.String())
	assert.Equal(t, "EXIT", ActionExit.String())
	assert.Equal(t, "SHORT", PositionShort.String())
	assert.Equal(t, "SELL", SignalSell.String())
}
