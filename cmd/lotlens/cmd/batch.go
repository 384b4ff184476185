package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lotlens/internal/batch"
	"github.com/MeKo-Tech/lotlens/internal/config"
	"github.com/MeKo-Tech/lotlens/internal/processor"
)

type batchOptions struct {
	Format     string
	OutputFile string
	Quiet      bool
	ShowStats  bool
}

// batchCmd represents the batch command for processing many files.
var batchCmd = &cobra.Command{
	Use:   "batch [files or directories...]",
	Short: "Run many archives or images through the processor",
	Long: `Process every matching file through the external processor, several at a time.
Directories are scanned for files matching --include and not matching --exclude.

Examples:
  lotlens batch lots/*.zip
  lotlens batch uploads/ --recursive --workers 4
  lotlens batch uploads/ --format csv --output results.csv --stats`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps the configuration to batch.Config. CLI flags
// override config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) batch.Config {
	bc := cfg.ToBatchConfig()
	f := cmd.Flags()

	if f.Changed("workers") {
		bc.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("include") {
		bc.IncludePatterns, _ = f.GetStringSlice("include")
	}
	if f.Changed("exclude") {
		bc.ExcludePatterns, _ = f.GetStringSlice("exclude")
	}

	// per-run switches
	bc.Recursive, _ = f.GetBool("recursive")
	bc.Additional, _ = f.GetBool("additional")
	bc.StopOnError, _ = f.GetBool("stop-on-error")

	return bc
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyProcessorFlags(cmd, cfg)
	if cmd.Flags().Changed("staging-dir") {
		cfg.Storage.StagingDir, _ = cmd.Flags().GetString("staging-dir")
	}
	if cmd.Flags().Changed("public-dir") {
		cfg.Storage.PublicDir, _ = cmd.Flags().GetString("public-dir")
	}

	var opts batchOptions
	opts.Format, _ = cmd.Flags().GetString("format")
	opts.OutputFile, _ = cmd.Flags().GetString("output")
	opts.Quiet, _ = cmd.Flags().GetBool("quiet")
	opts.ShowStats, _ = cmd.Flags().GetBool("stats")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runBatch(ctx, cfg, configToBatchConfig(cfg, cmd), args, opts, cmd.OutOrStdout())
}

func runBatch(ctx context.Context, cfg *config.Config, bc batch.Config, paths []string,
	opts batchOptions, out io.Writer,
) error {
	if !batch.ValidFormat(opts.Format) {
		return fmt.Errorf("invalid format: %s (must be text, json or csv)", opts.Format)
	}

	runner, err := processor.NewRunner(cfg.ToProcessorConfig())
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	svc, err := newService(cfg, runner)
	if err != nil {
		return err
	}

	if !opts.Quiet {
		_, _ = fmt.Fprintf(out, "Processing %d paths...\n", len(paths))
	}

	result, err := batch.ProcessBatch(ctx, svc, paths, bc)
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if err := writeBatchResult(result, opts, out); err != nil {
		return err
	}
	if opts.ShowStats && !opts.Quiet {
		result.WriteStats(out)
	}

	if err := result.Err(); err != nil {
		return fmt.Errorf("%d of %d files failed: %w", result.Stats().Failed, len(result.Items), err)
	}
	return nil
}

func writeBatchResult(result *batch.Result, opts batchOptions, out io.Writer) error {
	if opts.OutputFile == "" {
		return result.Write(out, opts.Format)
	}

	f, err := os.Create(opts.OutputFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := result.Write(f, opts.Format); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if !opts.Quiet {
		_, _ = fmt.Fprintf(out, "Results written to %s\n", opts.OutputFile)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	defaults := config.DefaultConfig()

	addProcessorFlags(batchCmd)
	batchCmd.Flags().Bool("additional", false, "submit every file as a supplementary batch")
	batchCmd.Flags().Bool("stop-on-error", false, "skip the remaining files after the first failure")
	batchCmd.Flags().String("staging-dir", defaults.Storage.StagingDir, "directory uploads are staged in")
	batchCmd.Flags().String("public-dir", defaults.Storage.PublicDir, "public asset root the processor writes to")

	// Output flags
	batchCmd.Flags().StringP("format", "f", batch.FormatText, "output format: text, json, csv")
	batchCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	batchCmd.Flags().Bool("quiet", false, "suppress progress output")
	batchCmd.Flags().Bool("stats", false, "show processing statistics")

	// Parallel processing flags
	batchCmd.Flags().IntP("workers", "w", defaults.Batch.Workers, "number of files processed at once")

	// File discovery flags
	batchCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	batchCmd.Flags().StringSlice("include", defaults.Batch.IncludePatterns, "file patterns to include")
	batchCmd.Flags().StringSlice("exclude", defaults.Batch.ExcludePatterns, "file patterns to exclude")
}
