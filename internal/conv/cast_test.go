package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUnsigned(t *testing.T) {
	t.Run("uint8", func(t *testing.T) {
		got, err := ToUnsigned[uint8](255)
		require.NoError(t, err)
		assert.Equal(t, uint8(255), got)

		_, err = ToUnsigned[uint8](256)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("uint16", func(t *testing.T) {
		got, err := ToUnsigned[uint16](math.MaxUint16)
		require.NoError(t, err)
		assert.Equal(t, uint16(math.MaxUint16), got)

		_, err = ToUnsigned[uint16](math.MaxUint16 + 1)
		assert.ErrorIs(t, err, ErrOverflow)
	})

	t.Run("uint32", func(t *testing.T) {
		got, err := ToUnsigned[uint32](0)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), got)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := ToUnsigned[uint64](-1)
		assert.ErrorIs(t, err, ErrOverflow)
	})
}

func TestToUnsigned_Wide(t *testing.T) {
	if math.MaxInt == math.MaxInt32 {
		t.Skip("int is 32 bits")
	}
	wide := uint64(math.MaxUint32) + 1
	_, err := ToUnsigned[uint32](int(wide))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestToInt(t *testing.T) {
	v := uint32(math.MaxUint32)
	got, err := ToInt(v)
	if math.MaxInt == math.MaxInt32 {
		assert.ErrorIs(t, err, ErrOverflow)
	} else {
		require.NoError(t, err)
		assert.Equal(t, uint64(v), uint64(got))
	}

	_, err = ToInt(uint64(math.MaxUint64))
	assert.ErrorIs(t, err, ErrOverflow)
}
