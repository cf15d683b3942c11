package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/safe-zone/internal/property"
	"github.com/sells-group/safe-zone/internal/scorer"
)

var toggleCmd = &cobra.Command{
	Use:   "toggle <task-id>...",
	Short: "Flip mitigation tasks between pending and done",
	Long:  "Flips each task in order and prints the result. Changes survive the command only with the sqlite or postgres store.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseTaskIDs(args)
		if err != nil {
			return err
		}

		env, err := initEnv(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		return toggleTasks(cmd.Context(), env.Holder, ids, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(toggleCmd)
}

func parseTaskIDs(args []string) ([]int, error) {
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil {
			return nil, eris.Errorf("task id %q is not an integer", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func toggleTasks(ctx context.Context, h *property.Holder, ids []int, w io.Writer) error {
	for _, id := range ids {
		p, changed := h.Toggle(ctx, id)
		if !changed {
			fmt.Fprintf(w, "task %d: no such task, nothing changed\n", id)
			continue
		}
		t, _ := p.FindTask(id)
		fmt.Fprintf(w, "task %d: %s (version %d)\n", id, t.Status(), p.Version)
	}

	score := h.UserScore()
	color, err := scorer.ColorForScore(score, scorer.DefaultMaxScore)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "User score: %d/%d  %s\n", score, scorer.DefaultMaxScore, color)
	return nil
}
