package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"paperlens/internal/workflow"
)

var retryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Reprocess the failed documents of a task",
	Long: `Move a task's failed documents back to pending and process them again.
Completed and skipped documents are untouched.

Example:
  paperlens retry a1b2c3d4`,
	Args: cobra.ExactArgs(1),
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	taskID := args[0]
	cp, err := store.Load(taskID)
	if err != nil {
		return err
	}
	if len(cp.Failed) == 0 {
		fmt.Printf("Task %s has no failed documents\n", taskID)
		return nil
	}

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}
	return runTask(orch, taskID, func() (*workflow.Report, error) {
		return orch.RetryFailed(ctx, taskID)
	})
}
