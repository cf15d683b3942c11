package scorer

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrEmptyNeighborhood is returned when a neighborhood average is requested
// without any neighbors to average against.
var ErrEmptyNeighborhood = eris.New("scorer: neighborhood has no neighbors")

// RangeError reports a score or completion value outside its documented range.
type RangeError struct {
	Field string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("scorer: %s %d outside [%d, %d]", e.Field, e.Value, e.Min, e.Max)
}
