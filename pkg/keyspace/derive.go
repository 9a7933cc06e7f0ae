package keyspace

import (
	"errors"
	"fmt"
	"strconv"
)

// DerivedCount is the number of keys produced from one middle fragment.
const DerivedCount = 1 << 16

// ErrInvalidMiddle is returned when a middle fragment is not four hex digits.
var ErrInvalidMiddle = errors.New("keyspace: middle fragment must be 4 hex digits")

// ParseMiddle parses a four hex digit middle fragment.
func ParseMiddle(s string) (uint16, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMiddle, s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMiddle, s)
	}
	return uint16(v), nil
}

// DeriveKeys calls yield for every key PP MMMM SS built around the middle
// fragment, prefix byte outer and suffix byte inner, stopping early when
// yield returns false. The order is deterministic.
func DeriveKeys(middle uint16, yield func(key uint32) bool) {
	m := uint32(middle) << 8
	for prefix := uint32(0); prefix <= 0xFF; prefix++ {
		for suffix := uint32(0); suffix <= 0xFF; suffix++ {
			if !yield(prefix<<24 | m | suffix) {
				return
			}
		}
	}
}
