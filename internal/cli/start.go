package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"paperlens/internal/checkpoint"
	"paperlens/internal/workflow"
)

var (
	startLimit    int
	startTemplate string
	startBackend  string
	startForce    bool
	noImages      bool
	noTables      bool
	renderPages   bool
)

const timeRound = time.Second

var startCmd = &cobra.Command{
	Use:   "start [collection]",
	Short: "Analyze documents from the library",
	Long: `Start a new analysis batch over the whole library or a single collection.

Every document is extracted, analyzed by an LLM backend and annotated
with a tagged note. Documents that already carry an analysis note are
skipped unless --force is given. Progress is saved per document; an
interrupted batch can be continued with 'paperlens resume'.

Examples:
  paperlens start                          # analyze the whole library
  paperlens start ml-papers --limit 20     # first 20 docs of a collection
  paperlens start --backend ollama         # pin a backend instead of auto-select
  paperlens start --template structured-analysis`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().IntVar(&startLimit, "limit", 0, "maximum number of documents (0 = all)")
	startCmd.Flags().StringVarP(&startTemplate, "template", "t", "paper-analysis", "prompt template name")
	startCmd.Flags().StringVarP(&startBackend, "backend", "b", "", "pin a backend (default: auto-select per document)")
	startCmd.Flags().BoolVarP(&startForce, "force", "f", false, "reprocess documents that already have an analysis note")
	startCmd.Flags().BoolVar(&noImages, "no-images", false, "skip figure extraction")
	startCmd.Flags().BoolVar(&noTables, "no-tables", false, "skip table detection")
	startCmd.Flags().BoolVar(&renderPages, "render-pages", false, "render pages without embedded images as whole-page figures")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	collection := ""
	if len(args) == 1 {
		collection = args[0]
	}

	docs, err := libClient.ListDocuments(ctx, collection, startLimit)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	if len(docs) == 0 {
		fmt.Println("No documents found")
		return nil
	}

	orch, err := newOrchestrator(ctx)
	if err != nil {
		return err
	}

	taskID, err := orch.Prepare(checkpoint.TaskConfig{
		Source:    collection,
		Template:  startTemplate,
		Backend:   startBackend,
		Force:     startForce,
		Images:    !noImages,
		Tables:    !noTables,
		Documents: docs,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Task %s: %d document(s), template %q\n", taskID, len(docs), startTemplate)
	return runTask(orch, taskID, func() (*workflow.Report, error) {
		return orch.Resume(ctx, taskID)
	})
}

// runTask executes a prepared task, with or without the interactive
// progress display, and prints the final report. The runner is invoked
// in a goroutine so the UI can poll while the batch processes.
func runTask(orch *workflow.Orchestrator, taskID string, runner func() (*workflow.Report, error)) error {
	type outcome struct {
		report *workflow.Report
		err    error
	}
	results := make(chan outcome, 1)
	go func() {
		report, err := runner()
		results <- outcome{report, err}
	}()

	if noProgress || !isatty.IsTerminal(os.Stdout.Fd()) {
		res := <-results
		if res.err != nil {
			return res.err
		}
		printReport(res.report)
		return reportError(res.report)
	}

	report, err := runTaskProgress(orch, taskID, func() (*workflow.Report, error) {
		res := <-results
		return res.report, res.err
	})
	if err != nil {
		return err
	}
	printReport(report)
	return reportError(report)
}

// reportError turns a failed batch into a non-zero exit code.
func reportError(r *workflow.Report) error {
	if r.Status == checkpoint.StatusFailed {
		return fmt.Errorf("task %s failed", r.TaskID)
	}
	return nil
}

func printReport(r *workflow.Report) {
	fmt.Printf("\nTask %s: %s\n", r.TaskID, r.Status)
	fmt.Printf("  Completed: %d/%d\n", r.Completed, r.Total)
	if r.Skipped > 0 {
		fmt.Printf("  Skipped:   %d (already analyzed)\n", r.Skipped)
	}
	if len(r.Failed) > 0 {
		fmt.Printf("  Failed:    %d\n", len(r.Failed))
		for id, reason := range r.Failed {
			fmt.Printf("    - %s: %s\n", id, reason)
		}
	}
	if len(r.Backends) > 0 {
		fmt.Println("  Backends:")
		for id, n := range r.Backends {
			fmt.Printf("    %-12s %d document(s)\n", id, n)
		}
	}
	if len(r.Stages) > 0 {
		fmt.Println("  Stage timings:")
		for stage, snap := range r.Stages {
			fmt.Printf("    %-12s %d call(s), avg %.0fms\n", stage, snap.Count, snap.AvgTimeMs)
		}
	}
	if r.Elapsed > 0 {
		fmt.Printf("  Elapsed:   %s\n", r.Elapsed.Round(timeRound))
	}
	switch r.Status {
	case checkpoint.StatusPaused:
		fmt.Printf("\nContinue with: paperlens resume %s\n", r.TaskID)
	case checkpoint.StatusCompleted:
		if len(r.Failed) > 0 {
			fmt.Printf("\nRetry failures with: paperlens retry %s\n", r.TaskID)
		}
	}
}
