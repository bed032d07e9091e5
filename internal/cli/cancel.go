package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperlens/internal/checkpoint"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a task",
	Long: `Mark a task cancelled. Its completed work is kept and the task can be
picked up again later with 'paperlens resume'.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	cp, err := store.Load(taskID)
	if err != nil {
		return err
	}
	if cp.Status.Terminal() && cp.Status != checkpoint.StatusCancelled {
		return fmt.Errorf("task %s already %s", taskID, cp.Status)
	}
	cp.SetStatus(checkpoint.StatusCancelled)
	if err := store.Save(cp); err != nil {
		return fmt.Errorf("persist checkpoint: %w", err)
	}
	fmt.Printf("Task %s cancelled (%d of %d documents done)\n",
		taskID, len(cp.Completed)+len(cp.Failed)+len(cp.Skipped), cp.TotalItems)
	return nil
}
