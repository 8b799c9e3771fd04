package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/3leaps/specguard/pkg/provider"
)

// Provider reads policy files and spec trees from one bucket. It never
// writes to the bucket.
type Provider struct {
	client   *s3.Client
	bucket   string
	pageSize int
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.ObjectGetter = (*Provider)(nil)
)

// New creates a provider for cfg.Bucket. No request is made until the
// first List, Head or GetObject call, so a missing bucket surfaces there
// as provider.ErrBucketNotFound.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderS3, Bucket: cfg.Bucket, Err: err}
	}

	return &Provider{
		client:   s3.NewFromConfig(awsCfg, clientOptions(cfg)),
		bucket:   cfg.Bucket,
		pageSize: clampMaxKeys(cfg.MaxKeys, DefaultMaxKeys),
	}, nil
}

func clientOptions(cfg Config) func(*s3.Options) {
	return func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}
}

// loadAWSConfig resolves region and credentials. Explicit keys win over
// the profile, which wins over the SDK default chain.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	awsCfg.Region = resolveRegion(cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// Bucket returns the configured bucket name.
func (p *Provider) Bucket() string { return p.bucket }

// List returns one page of keys under opts.Prefix. Folder markers (keys
// ending in "/") are dropped.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(int32(clampMaxKeys(opts.MaxKeys, p.pageSize))),
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}
	if opts.ContinuationToken != "" {
		input.ContinuationToken = aws.String(opts.ContinuationToken)
	}

	page, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	res := &provider.ListResult{
		Objects:           make([]provider.ObjectSummary, 0, len(page.Contents)),
		IsTruncated:       aws.ToBool(page.IsTruncated),
		ContinuationToken: aws.ToString(page.NextContinuationToken),
	}
	for _, obj := range page.Contents {
		key := aws.ToString(obj.Key)
		if strings.HasSuffix(key, "/") {
			continue
		}
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			ETag:         cleanETag(aws.ToString(obj.ETag)),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return res, nil
}

// Head returns metadata for key.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	out, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}

	meta := &provider.ObjectMeta{ContentType: aws.ToString(out.ContentType)}
	meta.Key = key
	meta.Size = aws.ToInt64(out.ContentLength)
	meta.ETag = cleanETag(aws.ToString(out.ETag))
	meta.LastModified = aws.ToTime(out.LastModified)
	return meta, nil
}

// GetObject streams the body of key. The caller must close it.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

// Close is a no-op; the client holds no resources that need releasing.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   p.bucket,
		Key:      key,
		Err:      classify(err),
	}
}

// apiErrorCodes maps S3 error codes to provider sentinels.
var apiErrorCodes = map[string]error{
	"NoSuchKey":             provider.ErrNotFound,
	"NotFound":              provider.ErrNotFound,
	"NoSuchBucket":          provider.ErrBucketNotFound,
	"AccessDenied":          provider.ErrAccessDenied,
	"Forbidden":             provider.ErrAccessDenied,
	"InvalidAccessKeyId":    provider.ErrInvalidCredentials,
	"SignatureDoesNotMatch": provider.ErrInvalidCredentials,
	"SlowDown":              provider.ErrThrottled,
	"Throttling":            provider.ErrThrottled,
	"RequestLimitExceeded":  provider.ErrThrottled,
	"ServiceUnavailable":    provider.ErrProviderUnavailable,
	"InternalError":         provider.ErrProviderUnavailable,
}

// statusErrors maps bare HTTP statuses (HEAD responses carry no error body).
var statusErrors = map[int]error{
	http.StatusNotFound:           provider.ErrNotFound,
	http.StatusForbidden:          provider.ErrAccessDenied,
	http.StatusTooManyRequests:    provider.ErrThrottled,
	http.StatusServiceUnavailable: provider.ErrProviderUnavailable,
}

// classify joins err with the provider sentinel it corresponds to, so
// callers can test with errors.Is and still see the SDK message. Errors
// that match nothing are returned unchanged.
func classify(err error) error {
	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchBucket *types.NoSuchBucket
	)
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case errors.As(err, &noSuchBucket):
		return fmt.Errorf("%w: %w", provider.ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if sentinel, ok := apiErrorCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}

	status := 0
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	} else {
		status = statusFromMessage(err.Error())
	}
	if sentinel, ok := statusErrors[status]; ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}

	if strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("%w: %w", provider.ErrBucketNotFound, err)
	}
	return err
}

// statusFromMessage extracts "StatusCode: NNN" from a transport error
// message, or returns 0.
func statusFromMessage(msg string) int {
	const marker = "StatusCode: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return 0
	}
	digits := msg[i+len(marker):]
	if len(digits) > 3 {
		digits = digits[:3]
	}
	code, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return code
}

func cleanETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// clampMaxKeys applies the default page size and the S3 limit of 1000.
func clampMaxKeys(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	return min(requested, MaxAllowedKeys)
}

// resolveRegion falls back to us-east-1 for AWS S3 when the SDK resolved no
// region. Custom endpoints get no default.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" || endpoint != "" {
		return sdkRegion
	}
	return DefaultAWSRegion
}
