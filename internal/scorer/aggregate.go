package scorer

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/safe-zone/internal/model"
)

// UserScore counts completed tasks.
func UserScore(tasks []model.Task) int {
	var n int
	for _, t := range tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// NeighborhoodScore averages the user's score with every neighbor's completion,
// counting the user as one more neighbor, and rounds half up.
func NeighborhoodScore(userScore int, neighbors []model.Neighbor) (int, error) {
	if userScore < 0 || userScore > DefaultMaxScore {
		return 0, &RangeError{Field: "user_score", Value: userScore, Min: 0, Max: DefaultMaxScore}
	}
	if len(neighbors) == 0 {
		return 0, ErrEmptyNeighborhood
	}

	total := userScore
	for _, n := range neighbors {
		if n.Completion < 0 || n.Completion > DefaultMaxScore {
			return 0, eris.Wrapf(
				&RangeError{Field: "completion", Value: n.Completion, Min: 0, Max: DefaultMaxScore},
				"scorer: neighbor %s", n.ID,
			)
		}
		total += n.Completion
	}

	return roundHalfUp(float64(total) / float64(len(neighbors)+1)), nil
}

// Summary is the score panel for one property and its neighborhood.
type Summary struct {
	PropertyID        string `json:"property_id"`
	UserScore         int    `json:"user_score"`
	MaxScore          int    `json:"max_score"`
	UserColor         Color  `json:"user_color"`
	NeighborhoodScore int    `json:"neighborhood_score"`
	NeighborhoodColor Color  `json:"neighborhood_color"`
	Neighbors         int    `json:"neighbors"`
}

// Summarize scores a property against its neighbors.
func Summarize(p model.Property, neighbors []model.Neighbor) (*Summary, error) {
	user := UserScore(p.Tasks)

	userColor, err := ColorForScore(user, DefaultMaxScore)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: color for property %s", p.ID)
	}

	hood, err := NeighborhoodScore(user, neighbors)
	if err != nil {
		return nil, err
	}
	hoodColor, err := ColorForScore(hood, DefaultMaxScore)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: color for neighborhood")
	}

	return &Summary{
		PropertyID:        p.ID,
		UserScore:         user,
		MaxScore:          DefaultMaxScore,
		UserColor:         userColor,
		NeighborhoodScore: hood,
		NeighborhoodColor: hoodColor,
		Neighbors:         len(neighbors),
	}, nil
}
