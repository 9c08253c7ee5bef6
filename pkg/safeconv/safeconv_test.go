package safeconv_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/matchkit/pkg/safeconv"
)

func TestMustIntToInt32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(42), safeconv.MustIntToInt32(42))
	assert.Equal(t, int32(math.MaxInt32), safeconv.MustIntToInt32(math.MaxInt32))

	assert.Panics(t, func() {
		safeconv.MustIntToInt32(math.MaxInt32 + 1)
	})
}

func TestMustIntToUint8(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint8(0), safeconv.MustIntToUint8(0))
	assert.Equal(t, uint8(math.MaxUint8), safeconv.MustIntToUint8(math.MaxUint8))

	assert.Panics(t, func() {
		safeconv.MustIntToUint8(-1)
	})
	assert.Panics(t, func() {
		safeconv.MustIntToUint8(math.MaxUint8 + 1)
	})
}

func TestMustInt64ToInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7, safeconv.MustInt64ToInt(7))
	assert.Equal(t, -7, safeconv.MustInt64ToInt(-7))
}
