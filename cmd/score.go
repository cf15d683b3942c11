package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/scorer"
)

var scoreJSON bool

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Print the property and neighborhood resilience scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		neighbors, err := loadNeighbors(ctx, cfg, env.Seed)
		if err != nil {
			return err
		}
		return printScore(cmd.OutOrStdout(), env.Holder.Snapshot(), neighbors, cfg.Scoring.NeighborhoodRadiusMiles, scoreJSON)
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print the score summary as JSON")
	rootCmd.AddCommand(scoreCmd)
}

type scoreReport struct {
	Summary *scorer.Summary `json:"summary"`
	Tasks   []model.Task    `json:"tasks"`
	Radius  float64         `json:"radius_miles"`
}

// printScore scores p against the neighbors inside radiusMiles. Without any
// neighbors in range only the user score is reported.
func printScore(w io.Writer, p model.Property, neighbors []model.Neighbor, radiusMiles float64, asJSON bool) error {
	nearby, err := geo.NeighborsWithin(p.Center, neighbors, radiusMiles)
	if err != nil {
		return err
	}

	summary, err := scorer.Summarize(p, nearby)
	noNeighbors := errors.Is(err, scorer.ErrEmptyNeighborhood)
	if err != nil && !noNeighbors {
		return err
	}
	if noNeighbors {
		user := scorer.UserScore(p.Tasks)
		color, err := scorer.ColorForScore(user, scorer.DefaultMaxScore)
		if err != nil {
			return err
		}
		summary = &scorer.Summary{PropertyID: p.ID, UserScore: user, MaxScore: scorer.DefaultMaxScore, UserColor: color}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(scoreReport{Summary: summary, Tasks: p.Tasks, Radius: radiusMiles})
	}

	fmt.Fprintf(w, "Property:     %s\n", p.ID)
	fmt.Fprintf(w, "User score:   %d/%d  %s\n", summary.UserScore, summary.MaxScore, summary.UserColor)
	if noNeighbors {
		fmt.Fprintf(w, "Neighborhood: no neighbors within %.1f mi\n", radiusMiles)
	} else {
		fmt.Fprintf(w, "Neighborhood: %d/%d  %s  (%d neighbors within %.1f mi)\n",
			summary.NeighborhoodScore, summary.MaxScore, summary.NeighborhoodColor, summary.Neighbors, radiusMiles)
	}
	fmt.Fprintln(w, "Tasks:")
	for _, t := range p.Tasks {
		mark := " "
		if t.Completed {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %d  %s\n", mark, t.ID, t.Text)
	}
	return nil
}
