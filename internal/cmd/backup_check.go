package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/specguard/internal/config"
	"github.com/3leaps/specguard/internal/observability"
	"github.com/3leaps/specguard/pkg/policy"
	"github.com/3leaps/specguard/pkg/provider"
)

const backupCheckUsage = "Usage: backup_check --policies <backup_policies_file>"

// NewBackupCheckCmd builds the backup_check command.
func NewBackupCheckCmd() *cobra.Command {
	var (
		flags        commonFlags
		policiesPath string
		strict       bool
	)

	c := newToolCommand(
		"backup_check --policies <backup_policies_file>",
		"Check a backup policy for snapshots and off-site copies",
		`Check that a YAML backup policy defines at least one snapshot schedule,
and warn when neither replication nor off-site backup is configured.

The policy may be a local file or an object URI.

Example:
  backup_check --policies policies.yaml
  backup_check --policies s3://ops-config/backup/policies.yaml
  backup_check --policies policies.yaml --strict`,
		backupCheckUsage,
	)

	c.Flags().StringVar(&policiesPath, "policies", "", "Backup policy file or s3:// URI (required)")
	c.Flags().BoolVar(&strict, "strict", false, "Also validate the policy against the backup-policy JSON schema")
	flags.register(c)

	c.RunE = func(cmd *cobra.Command, args []string) error {
		if policiesPath == "" {
			return usageError(cmd, backupCheckUsage, errors.New("--policies is required"))
		}

		cfg, err := flags.load(cmd, nil)
		if err != nil {
			return exitError(foundry.ExitFailure, "Invalid configuration", err)
		}

		return runBackupCheck(cmd.Context(), cmd.OutOrStdout(), cfg, policiesPath, strict)
	}

	return c
}

func runBackupCheck(ctx context.Context, out io.Writer, cfg *config.Config, path string, strict bool) error {
	runID := uuid.New().String()
	log := observability.CLILogger.With(zap.String("run_id", runID))

	ctx, cancel := withTimeout(ctx, cfg)
	defer cancel()

	fail := func(err error) error {
		if errors.Is(err, context.Canceled) {
			log.Warn("Backup policy check cancelled", zap.String("policies", path))
			return exitError(foundry.ExitSignalInt, "Backup policy check cancelled", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			printf(out, "ERROR: Backup policy check timed out after %s\n", cfg.Timeout)
			return reportedError(foundry.ExitFailure, "Backup policy check timed out", err)
		}
		printf(out, "ERROR: Backup policy validation failed: %v\n", err)
		log.Debug("Backup policy validation failed", zap.String("policies", path), zap.Error(err))
		return reportedError(foundry.ExitFailure, "Backup policy validation failed", err)
	}

	doc, err := loadPolicy(ctx, cfg, path)
	if err != nil {
		if errors.Is(err, policy.ErrNotFound) {
			printf(out, "ERROR: Backup policy file not found: %s\n", path)
			return reportedError(foundry.ExitFailure, "Backup policy file not found", err)
		}
		return fail(err)
	}

	if strict {
		if err := policy.Validate(doc); err != nil {
			return fail(err)
		}
	}

	res, err := policy.Check(doc)
	if err != nil {
		return fail(err)
	}

	for _, w := range res.Warnings {
		printf(out, "WARNING: %s\n", w)
	}
	printf(out, "✓ Backup policy validation passed\n")

	log.Info("Backup policy validation passed",
		zap.String("policies", path),
		zap.Int("snapshots", res.Snapshots),
		zap.Int("replication_targets", res.ReplicationTargets),
		zap.Int("offsite_targets", res.OffsiteTargets),
		zap.Bool("strict", strict))

	return nil
}

// loadPolicy reads a policy from a local path or an object URI.
func loadPolicy(ctx context.Context, cfg *config.Config, path string) (*policy.Document, error) {
	loc, err := ParseLocation(path)
	if err != nil {
		return nil, err
	}
	if !loc.IsRemote() {
		return policy.Load(path)
	}

	if loc.Key == "" || loc.AsPrefix().Key == loc.Key {
		return nil, fmt.Errorf("%w: %s names a prefix, not an object", ErrInvalidURI, path)
	}

	src, err := openSource(ctx, cfg, loc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	body, _, err := src.GetObject(ctx, loc.Key)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", policy.ErrNotFound, path)
		}
		return nil, err
	}
	defer func() { _ = body.Close() }()

	return policy.LoadFromReader(body, path)
}
