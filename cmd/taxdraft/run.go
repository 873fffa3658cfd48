package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/taxdraft/internal/config"
	"github.com/JaimeStill/taxdraft/internal/extraction"
	"github.com/JaimeStill/taxdraft/internal/prompts"
	"github.com/JaimeStill/taxdraft/internal/reasoning"
	"github.com/JaimeStill/taxdraft/internal/workflow"
	"github.com/JaimeStill/taxdraft/pkg/engine"
	"github.com/JaimeStill/taxdraft/pkg/provenance"
)

type runOptions struct {
	policy  string
	jsonOut string
	csvOut  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taxdraft",
		Short:         "Draft Form 1120-S figures from financial documents with a provenance trail",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Extract, draft, diagnose and adjust from local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.policy, "policy", "", "failure policy: continue, halt or halt_on_cancel")
	cmd.Flags().StringVar(&opts.jsonOut, "json", "", "write the run result as JSON to this path")
	cmd.Flags().StringVar(&opts.csvOut, "csv", "", "write the provenance trail as CSV to this path")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log step events")
	return cmd
}

func run(cmd *cobra.Command, args []string, opts runOptions) error {
	cfg, err := config.LoadWorkflow()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.policy != "" {
		cfg.Workflow.Policy = opts.policy
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	reasoner, err := reasoning.New(&cfg.Reasoning, logger)
	if err != nil {
		return fmt.Errorf("reasoning: %w", err)
	}

	resolver := prompts.Defaults{}
	rt := &workflow.Runtime{
		Extractor: extraction.New(
			extraction.FileSource{},
			reasoner,
			resolver,
			extraction.WithWorkers(cfg.Workflow.ExtractWorkers),
			extraction.WithLogger(logger),
		),
		Reasoner: reasoner,
		Prompts:  resolver,
		Logger:   logger,
		Config:   &cfg.Workflow,
	}

	recorder := engine.NewRecorder()
	res, err := workflow.Execute(cmd.Context(), rt, documents(args), recorder, engine.LogObserver(logger))
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), res)

	if err := writeOutputs(res, opts.jsonOut, opts.csvOut); err != nil {
		return err
	}
	if res.Halted {
		return fmt.Errorf("workflow halted: %w", res.Err)
	}
	return nil
}

func documents(paths []string) []extraction.Document {
	docs := make([]extraction.Document, len(paths))
	for i, p := range paths {
		docs[i] = extraction.Document{
			Name:        filepath.Base(p),
			Key:         p,
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
		}
	}
	return docs
}

func printSummary(w io.Writer, res *workflow.Result) {
	for _, s := range res.Steps {
		line := fmt.Sprintf("%-12s %s", s.Name, s.Status)
		if d, ok := s.ExecutionTime(); ok {
			line += fmt.Sprintf(" (%s)", d.Round(time.Millisecond))
		}
		if s.Error != "" {
			line += ": " + s.Error
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nprogress: %.0f%% (%d/%d completed, %d failed)\n",
		res.Progress.Percentage, res.Progress.Completed, res.Progress.Total, res.Progress.Failed)
	fmt.Fprintf(w, "provenance records: %d\n", len(res.Provenance))

	if len(res.Confidence) == 0 {
		return
	}
	fmt.Fprintln(w, "\nconfidence:")
	for _, field := range slices.Sorted(maps.Keys(res.Confidence)) {
		fmt.Fprintf(w, "  %-28s %.2f\n", field, res.Confidence[field])
	}
}

func writeOutputs(res *workflow.Result, jsonPath, csvPath string) error {
	if jsonPath != "" {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", jsonPath, err)
		}
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", csvPath, err)
		}
		defer f.Close()

		if err := provenance.WriteCSV(f, res.Provenance); err != nil {
			return fmt.Errorf("write %s: %w", csvPath, err)
		}
	}
	return nil
}
