package reward

import (
	"fmt"
	"strings"
)

// Claims is an ordered bit-vector of claimed milestones.
type Claims []bool

// NewClaims returns an all-false vector of n bits.
func NewClaims(n int) Claims {
	if n < 0 {
		n = 0
	}
	return make(Claims, n)
}

// ParseClaims decodes the persisted "0101" form.
func ParseClaims(encoded string) (Claims, error) {
	claims := make(Claims, len(encoded))
	for i, ch := range encoded {
		switch ch {
		case '0':
		case '1':
			claims[i] = true
		default:
			return nil, fmt.Errorf("reward: invalid claim vector %q", encoded)
		}
	}
	return claims, nil
}

// String encodes the vector for persistence.
func (c Claims) String() string {
	var builder strings.Builder
	builder.Grow(len(c))
	for _, claimed := range c {
		if claimed {
			builder.WriteByte('1')
		} else {
			builder.WriteByte('0')
		}
	}
	return builder.String()
}

// Claimed reports whether bit i is set; bits past the end are unclaimed.
func (c Claims) Claimed(i int) bool {
	return i >= 0 && i < len(c) && c[i]
}

// Resized returns a copy with at least n bits.
func (c Claims) Resized(n int) Claims {
	size := len(c)
	if n > size {
		size = n
	}
	out := make(Claims, size)
	copy(out, c)
	return out
}
