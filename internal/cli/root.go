// Package cli provides the command-line interface for paperlens.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"paperlens/internal/backend"
	"paperlens/internal/checkpoint"
	"paperlens/internal/config"
	"paperlens/internal/extract"
	"paperlens/internal/library"
	"paperlens/internal/template"
	"paperlens/internal/workflow"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	noProgress bool

	// Shared components, wired in PersistentPreRunE
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	libClient *library.Client
	store     *checkpoint.FileStore
	templates *template.Library
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "paperlens",
	Short: "Batch LLM analysis for research-paper libraries",
	Long: `Paperlens runs resumable batch analysis over a reference library of
research papers: it extracts text, figures and tables from each PDF,
sends them to a configured LLM backend with a prompt template, and
writes the analysis back to the library as a tagged note.

Progress is checkpointed per document, so an interrupted batch resumes
exactly where it left off.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		var err error
		store, err = checkpoint.NewFileStore(cfg.CheckpointDir)
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		templates, err = template.Load(cfg.TemplateDir)
		if err != nil {
			return fmt.Errorf("load templates: %w", err)
		}
		libClient = library.New(cfg.LibraryURL, cfg.LibraryTimeout)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// newOrchestrator wires the full pipeline. Only commands that actually
// dispatch to backends call this: it needs provider credentials.
func newOrchestrator(ctx context.Context) (*workflow.Orchestrator, error) {
	registry, err := backend.RegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend registry: %w", err)
	}
	clients, err := backend.BuildClients(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("backend clients: %w", err)
	}
	dispatcher := backend.NewDispatcher(registry, clients, cfg.MaxImageParts, cfg.BackendTimeout, logger)
	extractor := extract.New(logger)

	return workflow.New(store, libClient, extractor, dispatcher, templates, workflow.Options{
		Workers:        cfg.Workers,
		MaxRetries:     cfg.MaxRetries,
		ExtractTimeout: cfg.ExtractTimeout,
		RenderFallback: renderPages,
	}, logger), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable the interactive progress display")
}
