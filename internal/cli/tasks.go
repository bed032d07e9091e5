package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"paperlens/internal/checkpoint"
)

var cleanupMaxAge time.Duration

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List or inspect analysis tasks",
	Long: `List all known tasks or inspect a specific task by ID.

Examples:
  paperlens tasks             # list all tasks
  paperlens tasks a1b2c3d4    # show details for one task`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

var tasksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old finished task checkpoints",
	RunE:  runTasksCleanup,
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDelete,
}

func init() {
	tasksCleanupCmd.Flags().DurationVar(&cleanupMaxAge, "older-than", 30*24*time.Hour, "delete finished tasks not updated for this long")
	tasksCmd.AddCommand(tasksCleanupCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showTask(args[0])
	}
	return listTasks()
}

func listTasks() error {
	ids, err := store.List()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	fmt.Printf("%-10s %-10s %-12s %-10s %s\n", "ID", "STATUS", "PROGRESS", "FAILED", "UPDATED")
	fmt.Println("------------------------------------------------------------------------")

	for _, id := range ids {
		cp, err := store.Load(id)
		if err != nil {
			var corrupt *checkpoint.CorruptionError
			if errors.As(err, &corrupt) {
				fmt.Printf("%-10s %-10s (corrupt checkpoint)\n", id, "?")
				continue
			}
			return err
		}
		done := len(cp.Completed) + len(cp.Failed) + len(cp.Skipped)
		progress := fmt.Sprintf("%d/%d", done, cp.TotalItems)
		fmt.Printf("%-10s %-10s %-12s %-10d %s\n",
			cp.TaskID, cp.Status, progress, len(cp.Failed), cp.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func showTask(id string) error {
	cp, err := store.Load(id)
	if err != nil {
		return err
	}

	fmt.Printf("Task: %s\n", cp.TaskID)
	fmt.Printf("  Status:    %s\n", cp.Status)
	if cp.Config.Source != "" {
		fmt.Printf("  Source:    %s\n", cp.Config.Source)
	}
	fmt.Printf("  Template:  %s\n", cp.Config.Template)
	if cp.Config.Backend != "" {
		fmt.Printf("  Backend:   %s (pinned)\n", cp.Config.Backend)
	}
	fmt.Printf("  Progress:  %d completed, %d failed, %d skipped, %d pending (of %d)\n",
		len(cp.Completed), len(cp.Failed), len(cp.Skipped), len(cp.Pending()), cp.TotalItems)
	fmt.Printf("  Started:   %s\n", cp.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("  Updated:   %s\n", cp.UpdatedAt.Local().Format(time.RFC3339))

	if len(cp.Failed) > 0 {
		fmt.Printf("\nFailures (%d):\n", len(cp.Failed))
		for docID, reason := range cp.Failed {
			fmt.Printf("  - %s: %s\n", docID, reason)
		}
		fmt.Printf("\nRetry with: paperlens retry %s\n", cp.TaskID)
	}
	return nil
}

func runTasksCleanup(cmd *cobra.Command, args []string) error {
	removed, err := store.Cleanup(cleanupMaxAge)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if len(removed) == 0 {
		fmt.Println("Nothing to clean up")
		return nil
	}
	for _, id := range removed {
		fmt.Printf("Deleted %s\n", id)
	}
	return nil
}

func runTasksDelete(cmd *cobra.Command, args []string) error {
	ok, err := store.Delete(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("task not found: %s", args[0])
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
