// Package s3 implements a storage service on Amazon S3 or any S3-compatible
// object store (MinIO, Localstack, R2, Cubbit DS3, ...).
//
// Path-Based Key Design:
// The absolute path handed down by the operator is used as the object key,
// so the bucket mirrors the logical tree. Directories are zero-byte objects
// whose key ends with "/", or are implied by the keys below them.
//
// Thread Safety:
// The service is safe for concurrent use. Concurrent writes to the same key
// are last-write-wins unless guarded by a conditional write.
package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/store"
)

// S3 part size limits.
const (
	MinPartSize     = 5 * 1024 * 1024
	MaxPartSize     = 5 * 1024 * 1024 * 1024
	DefaultPartSize = 10 * 1024 * 1024
)

// Config configures the s3 service.
type Config struct {
	// Root is the prefix every path is resolved under.
	Root string `mapstructure:"root"`

	// Name labels the instance in diagnostics.
	Name string `mapstructure:"name"`

	// Bucket must already exist.
	Bucket string `mapstructure:"bucket" validate:"required"`

	// Region of the bucket.
	// Default: "us-east-1"
	Region string `mapstructure:"region"`

	// Endpoint overrides the AWS endpoint for S3-compatible stores. Setting
	// it switches to path-style addressing.
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`

	// ForcePathStyle uses path-style addressing against AWS too.
	ForcePathStyle bool `mapstructure:"force_path_style"`

	// Static credentials. When empty the default AWS credential chain is
	// used.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`

	// PartSize is the default multipart part size.
	// Default: 10MiB, range 5MiB-5GiB
	PartSize int `mapstructure:"part_size" validate:"omitempty,min=5242880"`

	// DeleteMaxSize caps the paths sent in one DeleteObjects request.
	// Default: 1000
	DeleteMaxSize int `mapstructure:"delete_max_size" validate:"omitempty,min=1,max=1000"`

	// MaxRetries is the attempt budget of the SDK retryer.
	// Default: 3
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,min=1"`

	// KeepMultipartOnFailure leaves a failed multipart upload in place for
	// the bucket lifecycle rules instead of aborting it.
	KeepMultipartOnFailure bool `mapstructure:"keep_multipart_on_failure"`

	// SkipBucketCheck skips the HeadBucket probe at construction.
	SkipBucketCheck bool `mapstructure:"skip_bucket_check"`
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.PartSize == 0 {
		c.PartSize = DefaultPartSize
	}
	if c.DeleteMaxSize == 0 {
		c.DeleteMaxSize = 1000
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Backend is the s3 service.
type Backend struct {
	client *s3.Client
	bucket string
	cfg    Config
	info   *store.Info
}

var _ store.Accessor = (*Backend)(nil)

// New builds the S3 client described by cfg and checks bucket access.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.Bucket == "" {
		return nil, store.NewError(store.KindConfigInvalid, "bucket is required").
			WithContext("service", string(store.SchemeS3))
	}
	if cfg.PartSize < MinPartSize || cfg.PartSize > MaxPartSize {
		return nil, store.Errorf(store.KindConfigInvalid, "part size must be between 5MiB and 5GiB, got %d", cfg.PartSize).
			WithContext("service", string(store.SchemeS3))
	}

	b := &Backend{
		bucket: cfg.Bucket,
		cfg:    cfg,
		info: store.NewInfo().
			SetScheme(store.SchemeS3).
			SetName(cfg.Name).
			SetRoot(cfg.Root).
			SetNativeCapability(store.Capability{
				Stat:                      true,
				StatWithIfMatch:           true,
				StatWithIfNoneMatch:       true,
				StatWithIfModifiedSince:   true,
				StatWithIfUnmodifiedSince: true,
				StatWithVersion:           true,

				Read:                      true,
				ReadWithIfMatch:           true,
				ReadWithIfNoneMatch:       true,
				ReadWithIfModifiedSince:   true,
				ReadWithIfUnmodifiedSince: true,
				ReadWithVersion:           true,

				Write:                true,
				WriteCanEmpty:        true,
				WriteCanMulti:        true,
				WriteWithIfMatch:     true,
				WriteWithIfNoneMatch: true,
				WriteWithIfNotExists: true,
				WriteWithContentType: true,
				WriteMultiMinSize:    MinPartSize,
				WriteMultiMaxSize:    MaxPartSize,

				CreateDir: true,

				Delete:            true,
				DeleteWithVersion: true,
				DeleteMaxSize:     cfg.DeleteMaxSize,

				Copy: true,

				List:               true,
				ListWithLimit:      true,
				ListWithStartAfter: true,
				ListWithRecursive:  true,

				Shared: true,
			}),
	}

	client, err := b.newClient(ctx)
	if err != nil {
		return nil, err
	}
	b.client = client

	if !cfg.SkipBucketCheck {
		if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, parseError(err, ""))
		}
	}

	logger.Info("S3 service initialized: bucket=%s, region=%s, endpoint=%s",
		cfg.Bucket, cfg.Region, cfg.Endpoint)
	return b, nil
}

// newClient loads the AWS configuration. Requests go through the HTTP
// client held by the service Info so it can be swapped at runtime.
func (b *Backend) newClient(ctx context.Context) (*s3.Client, error) {
	cfg := b.cfg
	options := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
		awsConfig.WithHTTPClient(infoHTTPClient{info: b.info}),
		awsConfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = cfg.MaxRetries
			})
		}),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		options = append(options, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
			// Most S3-compatible stores reject the flexible checksum headers.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	}), nil
}

// infoHTTPClient resolves the current client on every request.
type infoHTTPClient struct {
	info *store.Info
}

func (c infoHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.info.HTTPClient().Client().Do(req)
}

func (b *Backend) Info() *store.Info {
	return b.info
}

// Client exposes the S3 client.
func (b *Backend) Client() *s3.Client {
	return b.client
}

// ============================================================================
// Stat / Read
// ============================================================================

func (b *Backend) Stat(ctx context.Context, path string, args store.OpStat) (store.RpStat, error) {
	if store.IsDirPath(path) {
		return b.statDir(ctx, path)
	}

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(path),
		IfMatch:           optional(args.IfMatch),
		IfNoneMatch:       optional(args.IfNoneMatch),
		IfModifiedSince:   optionalTime(args.IfModifiedSince),
		IfUnmodifiedSince: optionalTime(args.IfUnmodifiedSince),
		VersionId:         optional(args.Version),
	})
	if err != nil {
		return store.RpStat{}, parseError(err, path)
	}

	meta := store.NewMetadata(store.ModeFile)
	meta.ContentLength = uint64(aws.ToInt64(out.ContentLength))
	meta.ETag = aws.ToString(out.ETag)
	meta.ContentType = aws.ToString(out.ContentType)
	meta.Version = aws.ToString(out.VersionId)
	if out.LastModified != nil {
		meta.LastModified = out.LastModified.UTC()
	}
	return store.NewRpStat(meta), nil
}

// statDir reports a directory when its marker object exists or any key
// lives below it.
func (b *Backend) statDir(ctx context.Context, path string) (store.RpStat, error) {
	dir := store.NewRpStat(store.NewMetadata(store.ModeDir))
	if path == "" {
		return dir, nil
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(path),
	})
	if err == nil {
		return dir, nil
	}
	if err = parseError(err, path); !errors.Is(err, store.ErrNotFound) {
		return store.RpStat{}, err
	}

	out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(path),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return store.RpStat{}, parseError(err, path)
	}
	if len(out.Contents) == 0 && len(out.CommonPrefixes) == 0 {
		return store.RpStat{}, store.NewError(store.KindNotFound, "directory not found").WithPath(path)
	}
	return dir, nil
}

func (b *Backend) Read(ctx context.Context, path string, args store.OpRead) (store.RpRead, store.Reader, error) {
	input := &s3.GetObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(path),
		IfMatch:           optional(args.IfMatch),
		IfNoneMatch:       optional(args.IfNoneMatch),
		IfModifiedSince:   optionalTime(args.IfModifiedSince),
		IfUnmodifiedSince: optionalTime(args.IfUnmodifiedSince),
		VersionId:         optional(args.Version),
	}
	if !args.Range.IsFull() {
		input.Range = aws.String(args.Range.HeaderValue())
	}

	out, err := b.client.GetObject(ctx, input)
	if err != nil {
		return store.RpRead{}, nil, parseError(err, path)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return store.RpRead{Size: size}, out.Body, nil
}

// ============================================================================
// CreateDir / Copy / Rename
// ============================================================================

func (b *Backend) CreateDir(ctx context.Context, path string, _ store.OpCreateDir) (store.RpCreateDir, error) {
	if path == "" {
		return store.RpCreateDir{}, nil
	}
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(path),
		Body:          strings.NewReader(""),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		return store.RpCreateDir{}, parseError(err, path)
	}
	return store.RpCreateDir{}, nil
}

func (b *Backend) Copy(ctx context.Context, from, to string, _ store.OpCopy) (store.RpCopy, error) {
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(to),
		CopySource: aws.String(b.bucket + "/" + escapeKey(from)),
	})
	if err != nil {
		return store.RpCopy{}, parseError(err, from)
	}
	return store.RpCopy{}, nil
}

// Rename is not declared: S3 has no atomic move.
func (b *Backend) Rename(context.Context, string, string, store.OpRename) (store.RpRename, error) {
	return store.RpRename{}, store.Unsupportedf("s3 cannot rename objects")
}

// escapeKey URL-encodes every segment of key for the x-amz-copy-source
// header.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// ============================================================================
// Errors
// ============================================================================

// parseError maps SDK errors to store kinds.
//
// The service error code wins when present; the HTTP status decides
// otherwise (HEAD responses carry no body, hence no code).
func parseError(err error, path string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		kind      = store.KindUnexpected
		temporary bool
		code      string
		status    int
	)

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
		kind, temporary = store.KindFromHTTPStatus(status)
	} else {
		// No response: the request never completed on the server.
		temporary = true
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &nsk), errors.As(err, &nf):
		kind, temporary = store.KindNotFound, false
	case errors.As(err, &apiErr):
		code = apiErr.ErrorCode()
		switch code {
		case "NoSuchKey", "NoSuchVersion", "NoSuchUpload", "NotFound":
			kind, temporary = store.KindNotFound, false
		case "PreconditionFailed", "NotModified", "ConditionalRequestConflict":
			kind, temporary = store.KindConditionNotMatch, false
		case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
			kind, temporary = store.KindRateLimited, true
		case "AccessDenied", "AllAccessDisabled", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			kind, temporary = store.KindPermissionDenied, false
		case "InvalidRange":
			kind, temporary = store.KindRangeNotSatisfied, false
		case "NoSuchBucket", "InvalidBucketName":
			kind, temporary = store.KindConfigInvalid, false
		case "InternalError", "ServiceUnavailable":
			temporary = true
		}
	}
	if status == http.StatusServiceUnavailable && kind == store.KindUnexpected {
		kind = store.KindRateLimited
	}

	e := store.NewError(kind, errorMessage(err, apiErr)).WithSource(err)
	if path != "" {
		e.WithPath(path)
	}
	if code != "" {
		e.WithContext("s3_code", code)
	}
	if status != 0 {
		e.WithContext("status", fmt.Sprintf("%d", status))
	}
	if temporary {
		e.SetTemporary()
	}
	return e
}

func errorMessage(err error, apiErr smithy.APIError) string {
	if apiErr != nil && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return opErr.OperationName + " failed"
	}
	return "s3 request failed"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return aws.Time(t)
}
