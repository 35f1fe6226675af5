package audio

import "math"

// MinDB is the floor returned for silence, zero and unusable input.
// It lies below every trigger level the control channel accepts.
const MinDB = -200.0

// ToDecibels converts a linear peak magnitude (1.0 = full scale) to dBFS.
func ToDecibels(linear float32) float64 {
	if linear != linear || linear <= 0 {
		return MinDB
	}
	db := 20 * math.Log10(float64(linear))
	return max(db, MinDB)
}
