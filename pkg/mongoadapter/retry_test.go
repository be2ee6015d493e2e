package mongoadapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitteredStaysWithinBound(t *testing.T) {
	base := 200 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := jittered(base)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2))
	}
}

func TestIsTransientNilIsFalse(t *testing.T) {
	assert.False(t, isTransient(nil))
}
