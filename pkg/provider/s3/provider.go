package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/3leaps/zonestore/pkg/provider"
)

// api is the subset of *s3.Client the store calls.
type api interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Provider implements provider.Store for AWS S3 and S3-compatible storage.
type Provider struct {
	client            api
	bucket            string
	maxKeys           int
	generateChecksums bool
	preserveRoot      bool
	log               *zap.Logger
}

var _ provider.Store = (*Provider)(nil)

// New creates a new S3 store with the given configuration.
//
// The store uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.ProviderError{
			Op:       "New",
			Provider: provider.ProviderS3,
			Bucket:   cfg.Bucket,
			Err:      err,
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newWithClient(client, cfg), nil
}

func newWithClient(client api, cfg Config) *Provider {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{
		client:            client,
		bucket:            cfg.Bucket,
		maxKeys:           clampMaxKeys(cfg.MaxKeys, DefaultMaxKeys),
		generateChecksums: boolOr(cfg.GenerateChecksums, true),
		preserveRoot:      boolOr(cfg.PreserveRoot, true),
		log:               log,
	}
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Let the SDK resolve from env/profile unless set explicitly.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)
	return awsCfg, nil
}

// Bucket returns the bucket name.
func (p *Provider) Bucket() string { return p.bucket }

// objectKey maps a store key to an S3 object key.
func objectKey(key string) string {
	return strings.TrimPrefix(provider.NormalizeKey(key), "/")
}

func (p *Provider) Get(ctx context.Context, key string) (*provider.File, error) {
	start := time.Now()
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(key)),
	})
	p.trace("Get", key, start, err)
	if err != nil {
		wrapped := p.wrapError("Get", key, err)
		if provider.IsNotFound(wrapped) {
			return nil, nil
		}
		return nil, wrapped
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, p.wrapError("Get", key, err)
	}
	return &provider.File{
		Name:        provider.BaseName(key),
		ContentType: aws.ToString(out.ContentType),
		Data:        data,
	}, nil
}

func (p *Provider) Has(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(objectKey(key)),
	})
	p.trace("Has", key, start, err)
	if err != nil {
		wrapped := p.wrapError("Has", key, err)
		if provider.IsNotFound(wrapped) {
			return false, nil
		}
		return false, wrapped
	}
	return true, nil
}

// List returns one directory level under opts.Prefix. S3 pages are drained
// first so the offset cursor addresses the same ordering as the other stores.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListPage, error) {
	offset, err := provider.ValidateListOptions(opts)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	prefix := provider.NormalizePrefix(opts.Prefix)
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.bucket),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(int32(p.maxKeys)),
	}
	if s3Prefix := strings.TrimPrefix(prefix, "/"); s3Prefix != "" {
		input.Prefix = aws.String(s3Prefix)
	}

	var files []provider.ListEntry
	paginator := s3.NewListObjectsV2Paginator(p.client, input)
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		p.trace("List", prefix, start, err)
		if err != nil {
			return nil, p.wrapError("List", prefix, err)
		}
		for _, obj := range page.Contents {
			k := aws.ToString(obj.Key)
			if k == "" || strings.HasSuffix(k, "/") {
				// Folder placeholder objects.
				continue
			}
			entry := provider.ListEntry{Key: "/" + k}
			if opts.IncludeMetadata {
				name := path.Base(k)
				entry.Metadata = &provider.FileMetadata{
					Name:         name,
					LastModified: aws.ToTime(obj.LastModified).UnixMilli(),
					Size:         aws.ToInt64(obj.Size),
					ContentType:  mime.TypeByExtension(path.Ext(name)),
				}
			}
			files = append(files, entry)
		}
	}
	if files == nil {
		files = []provider.ListEntry{}
	}

	entries, cursor := provider.Paginate(files, offset, opts.Limit)
	return &provider.ListPage{Files: entries, Cursor: cursor}, nil
}

func (p *Provider) Put(ctx context.Context, key string, file *provider.File) (*provider.File, error) {
	if err := p.upload(ctx, "Put", key, file); err != nil {
		return nil, err
	}
	return file.Clone(), nil
}

func (p *Provider) Set(ctx context.Context, key string, file *provider.File) error {
	return p.upload(ctx, "Set", key, file)
}

func (p *Provider) upload(ctx context.Context, op, key string, file *provider.File) error {
	if file == nil {
		return p.wrapError(op, key, errors.New("file is required"))
	}
	k := objectKey(key)
	if k == "" || strings.HasSuffix(k, "/") {
		return p.wrapError(op, key, errors.New("key denotes a directory"))
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(file.Data),
		ContentLength: aws.Int64(int64(len(file.Data))),
		ContentType:   aws.String(contentType),
	}
	if p.generateChecksums {
		sum := sha256.Sum256(file.Data)
		input.ChecksumAlgorithm = types.ChecksumAlgorithmSha256
		input.ChecksumSHA256 = aws.String(base64.StdEncoding.EncodeToString(sum[:]))
	}

	start := time.Now()
	_, err := p.client.PutObject(ctx, input)
	p.trace(op, key, start, err)
	if err != nil {
		return p.wrapError(op, key, err)
	}
	return nil
}

// Remove deletes key. A key ending in "/" removes every object under it.
// Removing a key that matches nothing is reported as provider.ErrNotFound.
func (p *Provider) Remove(ctx context.Context, key string) error {
	if p.preserveRoot && provider.IsRootKey(key) {
		return p.wrapError("Remove", key, &provider.PreserveRootError{Key: key})
	}

	k := objectKey(key)
	if k == "" || strings.HasSuffix(k, "/") {
		return p.removePrefix(ctx, key, k)
	}

	start := time.Now()
	if _, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(k),
	}); err != nil {
		p.trace("Remove", key, start, err)
		return p.wrapError("Remove", key, err)
	}
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(k),
	})
	p.trace("Remove", key, start, err)
	if err != nil {
		return p.wrapError("Remove", key, err)
	}
	return nil
}

func (p *Provider) removePrefix(ctx context.Context, key, prefix string) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		MaxKeys: aws.Int32(int32(p.maxKeys)),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	removed := 0
	paginator := s3.NewListObjectsV2Paginator(p.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return p.wrapError("Remove", key, err)
		}

		batch := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
		}
		for len(batch) > 0 {
			n := min(len(batch), maxDeleteBatch)
			if err := p.deleteBatch(ctx, key, batch[:n]); err != nil {
				return err
			}
			removed += n
			batch = batch[n:]
		}
	}

	if removed == 0 {
		return p.wrapError("Remove", key, provider.ErrNotFound)
	}
	return nil
}

func (p *Provider) deleteBatch(ctx context.Context, key string, ids []types.ObjectIdentifier) error {
	start := time.Now()
	out, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(p.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	p.trace("Remove", key, start, err)
	if err != nil {
		return p.wrapError("Remove", key, err)
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return p.wrapError("Remove", aws.ToString(first.Key),
			fmt.Errorf("%s: %s", aws.ToString(first.Code), aws.ToString(first.Message)))
	}
	return nil
}

func (p *Provider) trace(op, key string, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("bucket", p.bucket),
		zap.String("key", key),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	p.log.Debug("s3 request", fields...)
}

// wrapError converts S3 errors to provider errors with appropriate sentinel errors.
func (p *Provider) wrapError(op, key string, err error) error {
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderS3,
		Bucket:   p.bucket,
		Key:      key,
		Err:      err,
	}

	// Errors produced by this package keep their own identity.
	var preserve *provider.PreserveRootError
	var input *provider.InputValidationError
	if errors.As(err, &preserve) || errors.As(err, &input) || errors.Is(err, provider.ErrNotFound) {
		return wrapped
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = provider.ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = provider.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = provider.ErrInvalidCredentials
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = provider.ErrThrottled
		case "ServiceUnavailable", "InternalError":
			wrapped.Err = provider.ErrProviderUnavailable
		}
		return wrapped
	}

	// Fallback: match on the message for errors that lost their type.
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = provider.ErrNotFound
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.ErrBucketNotFound
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "SlowDown") || strings.Contains(errMsg, "Throttling") || strings.Contains(errMsg, "429"):
		wrapped.Err = provider.ErrThrottled
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503"):
		wrapped.Err = provider.ErrProviderUnavailable
	}

	return wrapped
}

// clampMaxKeys applies defaults and limits to maxKeys values.
func clampMaxKeys(requested, providerDefault int) int {
	if requested <= 0 {
		requested = providerDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion applies the us-east-1 fallback for AWS S3 after the SDK has
// resolved explicit, env and profile regions. S3-compatible endpoints get no
// default.
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if cfgRegion != "" {
		return cfgRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}
