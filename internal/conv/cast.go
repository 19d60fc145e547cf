package conv

import (
	"errors"
	"fmt"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

// Unsigned is the set of fixed-width unsigned integers.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// ToUnsigned converts v to T, failing for negative values and values above
// the maximum of T.
func ToUnsigned[T Unsigned](v int) (T, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d is negative", ErrOverflow, v)
	}
	if limit := uint64(^T(0)); uint64(v) > limit {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrOverflow, v, limit)
	}
	return T(v), nil
}

// ToInt converts an unsigned value read from untrusted data to int.
func ToInt[T Unsigned](v T) (int, error) {
	const maxInt = int(^uint(0) >> 1)
	if uint64(v) > uint64(maxInt) {
		return 0, fmt.Errorf("%w: %d exceeds int", ErrOverflow, uint64(v))
	}
	return int(v), nil
}
