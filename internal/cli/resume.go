package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"paperlens/internal/checkpoint"
	"paperlens/internal/workflow"
)

var resumeDiscard bool

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Continue an interrupted analysis task",
	Long: `Resume a paused, cancelled or interrupted task. Completed documents are
never reprocessed; previously failed documents stay failed (use
'paperlens retry' for those).

If the checkpoint file is corrupt, resume refuses to guess: pass
--discard to delete it and start the batch again with 'paperlens start'.

Examples:
  paperlens resume a1b2c3d4
  paperlens resume a1b2c3d4 --discard`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().BoolVar(&resumeDiscard, "discard", false, "delete the checkpoint if it is corrupt")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	taskID := args[0]

	// Surface corruption before wiring backends: the user must choose
	// explicitly between discarding and aborting.
	if _, err := store.Load(taskID); err != nil {
		var corrupt *checkpoint.CorruptionError
		if errors.As(err, &corrupt) {
			if !resumeDiscard {
				return fmt.Errorf("checkpoint for task %s is corrupt: %w\nrun again with --discard to delete it, then start a new batch", taskID, corrupt.Err)
			}
			if _, delErr := store.Delete(taskID); delErr != nil {
				return fmt.Errorf("delete corrupt checkpoint: %w", delErr)
			}
			fmt.Printf("Deleted corrupt checkpoint %s. Start a new batch with 'paperlens start'.\n", taskID)
			return nil
		}
		return err
	}

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	return runTask(orch, taskID, func() (*workflow.Report, error) {
		return orch.Resume(ctx, taskID)
	})
}
