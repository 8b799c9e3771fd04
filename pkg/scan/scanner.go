// Package scan implements a bounded streaming pipeline that validates every
// YAML file under a root.
//
// The scanner coordinates four stages:
//   - Lister: fetches key listings from the source (parallelized by prefix)
//   - Matcher: keeps keys matching the include/exclude patterns
//   - Parsers: N workers fetch and parse each matched file
//   - Writer: verdict lines are emitted as each file completes
//
// Bounded channels between stages provide backpressure so large trees are
// never held in memory. With one worker and a sorted source listing, output
// order is stable across runs.
package scan

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/specguard/pkg/match"
	"github.com/3leaps/specguard/pkg/output"
	"github.com/3leaps/specguard/pkg/provider"
)

// Config configures scanner behavior.
type Config struct {
	// Concurrency is the number of parse workers and of parallel prefix
	// listings. Default: 1
	Concurrency int

	// ChannelBuffer is the size of bounded channels between pipeline stages.
	// Default: 1000
	ChannelBuffer int

	// RateLimit is the maximum requests per second to the source (list pages
	// and object reads). Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns the default scanner configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:   1,
		ChannelBuffer: 1000,
		RateLimit:     0,
	}
}

// Summary contains aggregate statistics from a completed scan.
type Summary struct {
	// FilesListed is the total number of keys seen from the source.
	FilesListed int64

	// FilesMatched is the number of keys that matched the patterns.
	FilesMatched int64

	// FilesValid is the number of files whose documents all parsed.
	FilesValid int64

	// FilesFailed is the number of files that failed to read or parse.
	FilesFailed int64

	// Duration is the total time spent scanning.
	Duration time.Duration

	// Prefixes lists the prefixes that were listed.
	Prefixes []string
}

// Scanner validates the YAML files of one source.
//
// Scanner is safe for single use only. Create a new Scanner for each run.
type Scanner struct {
	source  provider.Source
	matcher *match.Matcher
	writer  output.Writer
	config  Config
	runID   string
	logger  *zap.Logger

	root        string
	displayPath func(key string) string

	// Rate limiter (nil if unlimited)
	limiter *rate.Limiter

	filesListed  atomic.Int64
	filesMatched atomic.Int64
	filesValid   atomic.Int64
	filesFailed  atomic.Int64
}

// New creates a new scanner.
//
// Parameters:
//   - src: Source for listing and reading files
//   - m: Matcher selecting the files to validate
//   - w: Writer for verdicts and the summary
//   - runID: Correlation ID for this run
//   - cfg: Scanner configuration (use DefaultConfig() as base)
func New(src provider.Source, m *match.Matcher, w output.Writer, runID string, cfg Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = DefaultConfig().ChannelBuffer
	}

	s := &Scanner{
		source:      src,
		matcher:     m,
		writer:      w,
		config:      cfg,
		runID:       runID,
		logger:      zap.NewNop(),
		displayPath: func(key string) string { return key },
	}

	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return s
}

// WithRoot sets the root shown in the start and summary records.
func (s *Scanner) WithRoot(root string) *Scanner {
	s.root = root
	return s
}

// WithDisplayPath sets how keys are rendered in verdict lines. The default
// renders the relative key unchanged.
func (s *Scanner) WithDisplayPath(fn func(key string) string) *Scanner {
	if fn != nil {
		s.displayPath = fn
	}
	return s
}

// WithLogger sets the logger for per-file diagnostics.
func (s *Scanner) WithLogger(l *zap.Logger) *Scanner {
	if l != nil {
		s.logger = l
	}
	return s
}

// Run executes the scan and returns summary statistics.
//
// Per-file read and parse failures are written as verdicts and counted in
// FilesFailed; they do not stop the scan. A listing failure or a writer
// failure is fatal. On cancellation a partial summary is returned together
// with the context error, and no summary record is written.
func (s *Scanner) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()

	prefixes := s.matcher.Prefixes()
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}

	if err := s.writer.WriteStart(ctx, &output.StartRecord{Root: s.root}); err != nil {
		return nil, err
	}

	s.logger.Debug("Scan started",
		zap.String("run_id", s.runID),
		zap.Strings("prefixes", prefixes),
		zap.Int("concurrency", s.config.Concurrency),
	)

	if err := s.runPipeline(ctx, prefixes); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return s.buildSummary(prefixes, time.Since(startTime)), err
		}
		return nil, err
	}

	summary := s.buildSummary(prefixes, time.Since(startTime))

	if err := s.writer.WriteSummary(ctx, &output.SummaryRecord{
		Root:         s.root,
		FilesListed:  summary.FilesListed,
		FilesMatched: summary.FilesMatched,
		FilesValid:   summary.FilesValid,
		FilesFailed:  summary.FilesFailed,
		Duration:     summary.Duration,
		DurationMs:   summary.Duration.Milliseconds(),
	}); err != nil {
		return summary, err
	}

	s.logger.Info("Scan complete",
		zap.String("run_id", s.runID),
		zap.Int64("matched", summary.FilesMatched),
		zap.Int64("failed", summary.FilesFailed),
		zap.Duration("duration", summary.Duration),
	)

	return summary, nil
}

func (s *Scanner) buildSummary(prefixes []string, duration time.Duration) *Summary {
	return &Summary{
		FilesListed:  s.filesListed.Load(),
		FilesMatched: s.filesMatched.Load(),
		FilesValid:   s.filesValid.Load(),
		FilesFailed:  s.filesFailed.Load(),
		Duration:     duration,
		Prefixes:     prefixes,
	}
}

// waitForRateLimit blocks until the rate limiter allows a request.
func (s *Scanner) waitForRateLimit(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// runPipeline orchestrates the lister → matcher → parsers pipeline.
func (s *Scanner) runPipeline(ctx context.Context, prefixes []string) error {
	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	listCh := make(chan provider.ObjectSummary, s.config.ChannelBuffer)
	matchCh := make(chan provider.ObjectSummary, s.config.ChannelBuffer)

	// First fatal error from any stage.
	errCh := make(chan error, 1)
	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancel()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(listCh)
		if err := s.runListers(pipeCtx, prefixes, listCh); err != nil {
			fail(err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(matchCh)
		s.runMatcher(pipeCtx, listCh, matchCh)
	}()

	for i := 0; i < s.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.runParser(pipeCtx, matchCh); err != nil {
				fail(err)
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

// runListers lists all prefixes with bounded concurrency.
func (s *Scanner) runListers(ctx context.Context, prefixes []string, out chan<- provider.ObjectSummary) error {
	sem := make(chan struct{}, s.config.Concurrency)

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for _, prefix := range prefixes {
		// Only release the semaphore if it was acquired.
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.listPrefix(ctx, p, out); err != nil {
				errOnce.Do(func() {
					firstErr = err
				})
			}
		}(prefix)
	}

	wg.Wait()
	return firstErr
}

// listPrefix pages through one prefix and sends every key downstream.
func (s *Scanner) listPrefix(ctx context.Context, prefix string, out chan<- provider.ObjectSummary) error {
	var continuationToken string

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.waitForRateLimit(ctx); err != nil {
			return err
		}

		result, err := s.source.List(ctx, provider.ListOptions{
			Prefix:            prefix,
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return err
		}

		for _, obj := range result.Objects {
			s.filesListed.Add(1)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- obj:
			}
		}

		if !result.IsTruncated || result.ContinuationToken == "" {
			return nil
		}
		continuationToken = result.ContinuationToken
	}
}

// runMatcher forwards keys accepted by the matcher.
func (s *Scanner) runMatcher(ctx context.Context, in <-chan provider.ObjectSummary, out chan<- provider.ObjectSummary) {
	for {
		select {
		case <-ctx.Done():
			return
		case obj, ok := <-in:
			if !ok {
				return
			}
			if !s.matcher.Match(obj.Key) {
				continue
			}

			s.filesMatched.Add(1)

			select {
			case <-ctx.Done():
				return
			case out <- obj:
			}
		}
	}
}

// runParser validates files until the input closes. Only writer and
// context errors are returned.
func (s *Scanner) runParser(ctx context.Context, in <-chan provider.ObjectSummary) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obj, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.validateFile(ctx, obj); err != nil {
				return err
			}
		}
	}
}

// validateFile reads and parses one file and writes its verdict.
func (s *Scanner) validateFile(ctx context.Context, obj provider.ObjectSummary) error {
	if err := s.waitForRateLimit(ctx); err != nil {
		return err
	}

	rec := &output.FileRecord{
		Path: s.displayPath(obj.Key),
		Key:  obj.Key,
		Size: obj.Size,
	}

	parseErr := s.parseObject(ctx, obj.Key)
	if parseErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if parseErr != nil {
		s.filesFailed.Add(1)
		rec.Error = parseErr.Error()
		s.logger.Debug("File failed validation",
			zap.String("run_id", s.runID),
			zap.String("key", obj.Key),
			zap.Error(parseErr),
		)
	} else {
		s.filesValid.Add(1)
		rec.Valid = true
	}

	return s.writer.WriteFile(ctx, rec)
}

func (s *Scanner) parseObject(ctx context.Context, key string) error {
	body, _, err := s.source.GetObject(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	return ParseYAML(body)
}
