package amount

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

const max128Decimal = "340282366920938463463374607431768211455"

func TestParseEnforces128BitBound(t *testing.T) {
	value, err := Parse(max128Decimal)
	require.NoError(t, err)
	require.Equal(t, max128Decimal, value.String())

	_, err = Parse("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Parse("-1")
	require.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("  ")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestAddAndSubBounds(t *testing.T) {
	top, err := Parse(max128Decimal)
	require.NoError(t, err)

	_, err = Add(top, New(1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = Sub(New(5), New(6))
	require.ErrorIs(t, err, ErrUnderflow)

	diff, err := Sub(New(6), New(5))
	require.NoError(t, err)
	require.True(t, diff.Equal(New(1)))
}

func TestMulDivUsesWideIntermediate(t *testing.T) {
	top, err := Parse(max128Decimal)
	require.NoError(t, err)

	// top * top / top needs 256 bits in the middle.
	result, err := MulDiv(top, top, top)
	require.NoError(t, err)
	require.True(t, result.Equal(top))

	_, err = MulDiv(New(1), New(1), Zero())
	require.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestMulDivTruncateKeepsLow128Bits(t *testing.T) {
	top, err := Parse(max128Decimal)
	require.NoError(t, err)

	// top * 4 / 2 = 2*top which is 2^129 - 2; the low 128 bits are 2^128 - 2.
	result, err := MulDivTruncate(top, New(4), New(2))
	require.NoError(t, err)
	expected := top.Sub(sdkmath.NewUint(1))
	require.True(t, result.Equal(expected), "got %s", result)

	_, err = MulDiv(top, New(4), New(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestPerMilleFloors(t *testing.T) {
	share, err := PerMille(New(3001), 400)
	require.NoError(t, err)
	require.True(t, share.Equal(New(1200)))
}
