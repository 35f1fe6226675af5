package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToDecibels(t *testing.T) {
	tests := []struct {
		name   string
		linear float32
		want   float64
	}{
		{"full scale", 1, 0},
		{"half", 0.5, -6.0206},
		{"tenth", 0.1, -20},
		{"above full scale", 2, 6.0206},
		{"zero", 0, MinDB},
		{"negative", -0.5, MinDB},
		{"nan", float32(math.NaN()), MinDB},
		{"denormal", math.SmallestNonzeroFloat32, MinDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ToDecibels(tt.linear), 0.001)
		})
	}
}

func TestToDecibels_Monotonic(t *testing.T) {
	prev := ToDecibels(0.0001)
	for v := float32(0.001); v <= 1; v *= 2 {
		cur := ToDecibels(v)
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestMinDBBelowEveryTriggerLevel(t *testing.T) {
	assert.Less(t, MinDB, -100.0)
}
