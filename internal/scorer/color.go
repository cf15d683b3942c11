// Package scorer computes resilience scores and their display colors.
package scorer

import (
	"fmt"
	"math"

	"github.com/sells-group/safe-zone/internal/model"
)

// DefaultMaxScore is the number of checklist tasks a fully resilient parcel completes.
const DefaultMaxScore = model.MaxTasks

// fillAlpha is the fixed opacity of parcel fills.
const fillAlpha = 0.7

// Color is an RGBA fill on the red→green resilience gradient.
type Color struct {
	R int     `json:"r"`
	G int     `json:"g"`
	B int     `json:"b"`
	A float64 `json:"a"`
}

// String renders the color the way map overlays consume it, e.g. "rgba(255, 0, 0, 0.7)".
func (c Color) String() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", c.R, c.G, c.B, c.A)
}

// MarshalText encodes the color as its rgba() string.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ColorForScore maps a completion count to a fill color. The green channel scales
// linearly with score/maxScore and red is its complement, so R+G is always 255.
func ColorForScore(score, maxScore int) (Color, error) {
	if maxScore <= 0 {
		return Color{}, &RangeError{Field: "max_score", Value: maxScore, Min: 1, Max: math.MaxInt}
	}
	if score < 0 || score > maxScore {
		return Color{}, &RangeError{Field: "score", Value: score, Min: 0, Max: maxScore}
	}

	green := roundHalfUp(float64(score) / float64(maxScore) * 255)
	return Color{R: 255 - green, G: green, B: 0, A: fillAlpha}, nil
}

// roundHalfUp rounds non-negative x to the nearest integer, ties away from zero.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
