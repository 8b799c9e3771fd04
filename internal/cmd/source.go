package cmd

import (
	"context"
	"fmt"

	"github.com/3leaps/specguard/internal/config"
	"github.com/3leaps/specguard/pkg/provider"
	"github.com/3leaps/specguard/pkg/provider/file"
	"github.com/3leaps/specguard/pkg/provider/s3"
)

// openSource opens the provider behind loc.
//
// Local locations open the directory loc.Path; a missing or non-directory
// path returns an error matching provider.ErrNotFound or
// provider.ErrNotDirectory. Remote locations open the whole bucket; no
// request is made until the first read.
func openSource(ctx context.Context, cfg *config.Config, loc *Location) (provider.Source, error) {
	switch loc.Provider {
	case provider.ProviderFile:
		return file.New(file.Config{BaseDir: loc.Path})
	case provider.ProviderS3:
		return s3.New(ctx, s3.Config{
			Bucket:         loc.Bucket,
			Region:         cfg.S3.Region,
			Endpoint:       cfg.S3.Endpoint,
			Profile:        cfg.S3.Profile,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, loc.Provider)
	}
}

// openRoot opens loc as a tree whose keys are relative to it.
func openRoot(ctx context.Context, cfg *config.Config, loc *Location) (provider.Source, error) {
	src, err := openSource(ctx, cfg, loc)
	if err != nil {
		return nil, err
	}
	if loc.IsRemote() {
		return provider.WithPrefix(src, loc.AsPrefix().Key), nil
	}
	return src, nil
}
