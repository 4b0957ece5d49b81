package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt64Ptr_PointsToValue(t *testing.T) {
	p := Int64Ptr(42)

	assert.NotNil(t, p)
	assert.Equal(t, int64(42), *p)
}

func TestIsTombstoned(t *testing.T) {
	assert.False(t, IsTombstoned(nil))
	assert.True(t, IsTombstoned(Int64Ptr(NowNano())))
}

func TestNowNano_Monotonic(t *testing.T) {
	a := NowNano()
	b := NowNano()

	assert.LessOrEqual(t, a, b)
}
