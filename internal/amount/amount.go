// Package amount implements the unsigned 128-bit monetary arithmetic shared by the
// campaign ledger and the payout engines. Intermediates are computed at up to 256 bits.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// PerMilleBase is the denominator of every per-mille share.
const PerMilleBase = 1000

var (
	// ErrInvalid reports a value that is not a base-10 unsigned integer.
	ErrInvalid = errors.New("amount: invalid value")
	// ErrOverflow reports a result that does not fit in 128 bits.
	ErrOverflow = errors.New("amount: overflow")
	// ErrUnderflow reports a subtraction below zero.
	ErrUnderflow = errors.New("amount: underflow")
	// ErrDivisionByZero reports a zero divisor.
	ErrDivisionByZero = errors.New("amount: division by zero")
)

var (
	max128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	max256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Zero returns the zero amount.
func Zero() sdkmath.Uint {
	return sdkmath.ZeroUint()
}

// New converts a native integer into an amount.
func New(value uint64) sdkmath.Uint {
	return sdkmath.NewUint(value)
}

// Parse reads a decimal string and enforces the 128-bit bound.
func Parse(raw string) (sdkmath.Uint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return sdkmath.Uint{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return sdkmath.Uint{}, fmt.Errorf("%w: %q", ErrInvalid, trimmed)
	}
	return fromBig(value)
}

// ParseOrZero reads a persisted amount, treating an empty column as zero.
func ParseOrZero(raw string) (sdkmath.Uint, error) {
	if strings.TrimSpace(raw) == "" {
		return Zero(), nil
	}
	return Parse(raw)
}

// Add returns a + b, failing when the sum leaves the 128-bit range.
func Add(a, b sdkmath.Uint) (sdkmath.Uint, error) {
	return fromBig(new(big.Int).Add(a.BigInt(), b.BigInt()))
}

// Sub returns a - b, failing when b > a.
func Sub(a, b sdkmath.Uint) (sdkmath.Uint, error) {
	if b.GT(a) {
		return sdkmath.Uint{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return a.Sub(b), nil
}

// MulDiv returns floor(value * nom / denom) and fails if the result exceeds 128 bits.
func MulDiv(value, nom, denom sdkmath.Uint) (sdkmath.Uint, error) {
	quotient, err := wideMulDiv(value, nom, denom)
	if err != nil {
		return sdkmath.Uint{}, err
	}
	return fromBig(quotient)
}

// MulDivTruncate returns floor(value * nom / denom) keeping only the low 128 bits of the
// quotient.
func MulDivTruncate(value, nom, denom sdkmath.Uint) (sdkmath.Uint, error) {
	quotient, err := wideMulDiv(value, nom, denom)
	if err != nil {
		return sdkmath.Uint{}, err
	}
	return sdkmath.NewUintFromBigInt(new(big.Int).And(quotient, max128)), nil
}

// PerMille returns floor(value * perMille / 1000).
func PerMille(value sdkmath.Uint, perMille uint16) (sdkmath.Uint, error) {
	return MulDiv(value, sdkmath.NewUint(uint64(perMille)), sdkmath.NewUint(PerMilleBase))
}

// Min returns the smaller of a and b.
func Min(a, b sdkmath.Uint) sdkmath.Uint {
	return sdkmath.MinUint(a, b)
}

func wideMulDiv(value, nom, denom sdkmath.Uint) (*big.Int, error) {
	if denom.IsZero() {
		return nil, fmt.Errorf("%w: %s * %s / 0", ErrDivisionByZero, value, nom)
	}
	product := new(big.Int).Mul(value.BigInt(), nom.BigInt())
	if product.Cmp(max256) > 0 {
		return nil, fmt.Errorf("%w: %s * %s exceeds 256 bits", ErrOverflow, value, nom)
	}
	return product.Quo(product, denom.BigInt()), nil
}

func fromBig(value *big.Int) (sdkmath.Uint, error) {
	if value.Cmp(max128) > 0 {
		return sdkmath.Uint{}, fmt.Errorf("%w: %s", ErrOverflow, value)
	}
	return sdkmath.NewUintFromBigInt(value), nil
}

// OrZero replaces an uninitialised value, as left by decoding a missing field, with zero.
func OrZero(value sdkmath.Uint) sdkmath.Uint {
	if value == (sdkmath.Uint{}) {
		return Zero()
	}
	return value
}
