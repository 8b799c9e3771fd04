package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/specguard/internal/config"
	"github.com/3leaps/specguard/internal/observability"
	"github.com/3leaps/specguard/pkg/match"
	"github.com/3leaps/specguard/pkg/output"
	"github.com/3leaps/specguard/pkg/provider"
	"github.com/3leaps/specguard/pkg/scan"
)

const validateUsage = "Usage: validate --root <specs_directory>"

type validateFlags struct {
	root        string
	includes    []string
	excludes    []string
	concurrency int
	rateLimit   float64
	output      string
}

// NewValidateCmd builds the validate command.
func NewValidateCmd() *cobra.Command {
	var (
		flags commonFlags
		vf    validateFlags
	)

	c := newToolCommand(
		"validate --root <specs_directory>",
		"Check that every YAML file under a directory parses",
		`Recursively find files matching **/*.y*ml under a root and check that
each one parses as YAML. Every file gets a verdict line; a parse failure
does not stop the run.

The exit code is the number of files that failed (capped at 255).

The root may be a local directory or an object prefix URI.

Example:
  validate --root specs
  validate --root s3://team-specs/api/ --concurrency 8
  validate --root specs --exclude "vendor/**" --output jsonl`,
		validateUsage,
	)

	fs := c.Flags()
	fs.StringVar(&vf.root, "root", "", "Directory or s3:// prefix to validate (required)")
	fs.StringArrayVar(&vf.includes, "include", nil, "Glob pattern of files to validate (repeatable, default **/*.y*ml)")
	fs.StringArrayVar(&vf.excludes, "exclude", nil, "Glob pattern of files to skip (repeatable)")
	fs.IntVar(&vf.concurrency, "concurrency", 1, "Parallel parse workers (1 keeps output order stable)")
	fs.Float64Var(&vf.rateLimit, "rate-limit", 0, "Maximum source requests per second (0 = unlimited)")
	fs.StringVar(&vf.output, "output", output.FormatText, "Output format (text|jsonl)")
	flags.register(c)

	c.RunE = func(cmd *cobra.Command, args []string) error {
		if vf.root == "" {
			return usageError(cmd, validateUsage, errors.New("--root is required"))
		}

		extra := map[string]any{}
		if cmd.Flags().Changed("include") {
			extra["scan.includes"] = vf.includes
		}
		if cmd.Flags().Changed("exclude") {
			extra["scan.excludes"] = vf.excludes
		}
		if cmd.Flags().Changed("concurrency") {
			extra["scan.concurrency"] = vf.concurrency
		}
		if cmd.Flags().Changed("rate-limit") {
			extra["scan.rate_limit"] = vf.rateLimit
		}
		if cmd.Flags().Changed("output") {
			extra["output.format"] = vf.output
		}

		cfg, err := flags.load(cmd, extra)
		if err != nil {
			return exitError(foundry.ExitFailure, "Invalid configuration", err)
		}

		return runValidate(cmd.Context(), cmd.OutOrStdout(), cfg, vf.root)
	}

	return c
}

func runValidate(ctx context.Context, out io.Writer, cfg *config.Config, root string) error {
	runID := uuid.New().String()
	log := observability.CLILogger.With(zap.String("run_id", runID))

	loc, err := ParseLocation(root)
	if err != nil {
		return exitError(foundry.ExitFailure, "Invalid root", err)
	}

	w, err := output.New(cfg.Output.Format, out, runID, loc.Provider.String())
	if err != nil {
		return exitError(foundry.ExitFailure, "Invalid output format", err)
	}
	defer func() { _ = w.Close() }()

	m, err := match.New(match.Config{
		Includes:      cfg.Scan.Includes,
		Excludes:      cfg.Scan.Excludes,
		IncludeHidden: true,
	})
	if err != nil {
		return exitError(foundry.ExitFailure, "Invalid pattern", err)
	}

	ctx, cancel := withTimeout(ctx, cfg)
	defer cancel()

	rootNotFound := func(err error) error {
		msg := fmt.Sprintf("Root directory not found: %s", root)
		if werr := w.WriteError(ctx, &output.ErrorRecord{Code: output.ErrCodeNotFound, Message: msg}); werr != nil {
			return exitError(foundry.ExitFailure, msg, err)
		}
		log.Debug("Root not found", zap.String("root", root), zap.Error(err))
		return reportedError(foundry.ExitFailure, msg, err)
	}

	src, err := openRoot(ctx, cfg, loc)
	if err != nil {
		if provider.IsNotFound(err) || errors.Is(err, provider.ErrNotDirectory) {
			return rootNotFound(err)
		}
		return exitError(foundry.ExitFailure, "Failed to open root", err)
	}
	defer func() { _ = src.Close() }()

	scanCfg := scan.DefaultConfig()
	scanCfg.Concurrency = cfg.Scan.Concurrency
	scanCfg.RateLimit = cfg.Scan.RateLimit

	s := scan.New(src, m, w, runID, scanCfg).
		WithRoot(displayRoot(loc)).
		WithDisplayPath(displayPathFunc(loc)).
		WithLogger(observability.CLILogger)

	summary, err := s.Run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn("Validation cancelled", zap.String("root", root))
			return exitError(foundry.ExitSignalInt, "Validation cancelled", err)
		case errors.Is(err, context.DeadlineExceeded):
			msg := fmt.Sprintf("Validation timed out after %s", cfg.Timeout)
			log.Warn("Validation timed out", zap.String("root", root), zap.Duration("timeout", cfg.Timeout))
			if werr := w.WriteError(context.WithoutCancel(ctx), &output.ErrorRecord{Code: output.ErrCodeTimeout, Message: msg}); werr != nil {
				return exitError(foundry.ExitFailure, msg, err)
			}
			return reportedError(foundry.ExitFailure, msg, err)
		case provider.IsNotFound(err):
			return rootNotFound(err)
		}

		msg := fmt.Sprintf("Schema validation failed: %v", err)
		if werr := w.WriteError(ctx, &output.ErrorRecord{Code: errorCode(err), Message: msg}); werr != nil {
			return exitError(foundry.ExitFailure, "Schema validation failed", err)
		}
		return reportedError(foundry.ExitFailure, "Schema validation failed", err)
	}

	if summary.FilesFailed > 0 {
		return reportedError(clampExitCode(int(min(summary.FilesFailed, maxExitCode))),
			fmt.Sprintf("%d files failed validation", summary.FilesFailed), nil)
	}
	return nil
}

// displayRoot renders the root for the start line.
func displayRoot(loc *Location) string {
	if loc.IsRemote() {
		return loc.AsPrefix().String()
	}
	return loc.Path
}

// displayPathFunc renders a key relative to the root the way the user
// named the root.
func displayPathFunc(loc *Location) func(key string) string {
	if loc.IsRemote() {
		base := loc.AsPrefix().String()
		return func(key string) string { return base + key }
	}
	return func(key string) string {
		return filepath.Join(loc.Path, filepath.FromSlash(key))
	}
}

func errorCode(err error) string {
	switch {
	case provider.IsNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return output.ErrCodeAccessDenied
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	default:
		return output.ErrCodeInternal
	}
}
