package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/lotlens/internal/config"
	"github.com/MeKo-Tech/lotlens/internal/orchestrator"
	"github.com/MeKo-Tech/lotlens/internal/processor"
)

// ErrNoImages is returned when the processor succeeded but printed no paths.
var ErrNoImages = errors.New("no images were processed")

type processOptions struct {
	Additional bool
	Verify     bool
	Format     string
}

type processOutput struct {
	RequestID string   `json:"request_id"`
	Batch     string   `json:"batch"`
	Kind      string   `json:"kind"`
	Images    []string `json:"images"`
	Duration  float64  `json:"duration_seconds"`
}

// processCmd runs one file through the pipeline without the HTTP layer.
var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run one archive or image through the processor",
	Long: `Stage a local archive (.zip) or image, run the external processor on it and
print the resulting image paths, one per line.

Examples:
  lotlens process lot.zip
  lotlens process car.jpg --additional --format json
  lotlens process lot.zip --verify --public-dir ./public`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyProcessorFlags(cmd, cfg)
		if cmd.Flags().Changed("staging-dir") {
			cfg.Storage.StagingDir, _ = cmd.Flags().GetString("staging-dir")
		}
		if cmd.Flags().Changed("public-dir") {
			cfg.Storage.PublicDir, _ = cmd.Flags().GetString("public-dir")
		}

		var opts processOptions
		opts.Additional, _ = cmd.Flags().GetBool("additional")
		opts.Verify, _ = cmd.Flags().GetBool("verify")
		opts.Format, _ = cmd.Flags().GetString("format")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runProcess(ctx, cfg, args[0], opts, cmd.OutOrStdout())
	},
}

func runProcess(ctx context.Context, cfg *config.Config, path string, opts processOptions, out io.Writer) error {
	if opts.Format != formatText && opts.Format != formatJSON {
		return fmt.Errorf("invalid format: %s (must be text or json)", opts.Format)
	}

	f, err := os.Open(path) //nolint:gosec // G304: path is the user's own CLI argument
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	runner, err := processor.NewRunner(cfg.ToProcessorConfig())
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()

	svc, err := newService(cfg, runner)
	if err != nil {
		return err
	}

	role := orchestrator.RoleInitial
	if opts.Additional {
		role = orchestrator.RoleSupplementary
	}

	res, err := svc.Process(ctx, orchestrator.Upload{Name: filepath.Base(path), Body: f, Role: role})
	if err != nil {
		var pfe *orchestrator.ProcessingFailedError
		if errors.As(err, &pfe) && pfe.Stderr != "" {
			return fmt.Errorf("%s: %w\n%s", orchestrator.GenericFailureMessage, err, pfe.Stderr)
		}
		return err
	}
	if res.Empty() {
		return ErrNoImages
	}
	if opts.Verify {
		if err := res.Images.VerifyUnder(cfg.Storage.PublicDir); err != nil {
			return fmt.Errorf("verify results: %w", err)
		}
	}

	if opts.Format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(processOutput{
			RequestID: res.RequestID,
			Batch:     string(res.Role),
			Kind:      string(res.Kind),
			Images:    res.Images,
			Duration:  res.Duration.Seconds(),
		})
	}
	for _, img := range res.Images {
		if _, err := fmt.Fprintln(out, img); err != nil {
			return err
		}
	}
	return nil
}

const (
	formatText = "text"
	formatJSON = "json"
)

func init() {
	rootCmd.AddCommand(processCmd)
	defaults := config.DefaultConfig()

	processCmd.Flags().Bool("additional", false, "treat the file as a supplementary batch")
	processCmd.Flags().Bool("verify", false, "check that every result path exists under the public dir")
	processCmd.Flags().StringP("format", "f", formatText, "output format: text or json")
	processCmd.Flags().String("staging-dir", defaults.Storage.StagingDir, "directory uploads are staged in")
	processCmd.Flags().String("public-dir", defaults.Storage.PublicDir, "public asset root the processor writes to")
	addProcessorFlags(processCmd)
}
