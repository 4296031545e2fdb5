package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johnwmail/pasties/models"
	"go.uber.org/zap"
)

// maxViewRetries bounds the optimistic read-modify-write of the view counter
const maxViewRetries = 5

// s3API is the subset of the S3 client the store uses
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store keeps every paste as one JSON object named after its URL.
// Uniqueness relies on conditional writes (If-None-Match / If-Match).
type S3Store struct {
	bucket string
	prefix string
	client s3API
	logger *zap.Logger
}

// NewS3Store creates a new S3Store instance. endpoint may point at an
// S3-compatible server such as MinIO, which also switches to path-style URLs.
func NewS3Store(bucket, prefix, region, endpoint string, logger *zap.Logger) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket name must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3StoreWithClient(client, bucket, prefix, logger), nil
}

func newS3StoreWithClient(client s3API, bucket, prefix string, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Store{
		bucket: bucket,
		prefix: normalizeS3Prefix(prefix),
		client: client,
		logger: logger,
	}
}

func (s *S3Store) key(url string) string {
	return applyS3Prefix(s.prefix, url+".json")
}

func (s *S3Store) put(ctx context.Context, paste *models.Paste, ifNoneMatch, ifMatch string) error {
	data, err := json.MarshalIndent(paste, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal paste %s: %w", paste.URL, err)
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(paste.URL)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if ifNoneMatch != "" {
		in.IfNoneMatch = aws.String(ifNoneMatch)
	}
	if ifMatch != "" {
		in.IfMatch = aws.String(ifMatch)
	}

	_, err = s.client.PutObject(ctx, in)
	if err != nil && !isS3PreconditionFailed(err) {
		s.logger.Error("s3 put failed",
			zap.String("bucket", s.bucket),
			zap.String("key", s.key(paste.URL)),
			zap.Error(err))
	}
	return err
}

// get returns the paste together with the ETag of the object it was read from
func (s *S3Store) get(ctx context.Context, url string) (*models.Paste, string, error) {
	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(url)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	defer func() {
		_ = obj.Body.Close()
	}()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read paste %s: %w", url, err)
	}
	var paste models.Paste
	if err := json.Unmarshal(data, &paste); err != nil {
		return nil, "", fmt.Errorf("unmarshal paste %s: %w", url, err)
	}
	return &paste, aws.ToString(obj.ETag), nil
}

// Create stores a paste unless its URL is taken
func (s *S3Store) Create(ctx context.Context, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	err := s.put(ctx, paste, "*", "")
	if isS3PreconditionFailed(err) {
		return ErrAlreadyExists
	}
	return err
}

// GetByURL retrieves a paste by URL
func (s *S3Store) GetByURL(ctx context.Context, url string) (*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	paste, _, err := s.get(ctx, url)
	return paste, err
}

// Exists reports whether url is taken
func (s *S3Store) Exists(ctx context.Context, url string) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(url)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Update rewrites the object. A rename writes the new key first so a
// taken URL fails before anything is removed.
func (s *S3Store) Update(ctx context.Context, oldURL string, paste *models.Paste) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, etag, err := s.get(ctx, oldURL)
	if err != nil {
		return err
	}

	if paste.URL == oldURL {
		err := s.put(ctx, paste, "", etag)
		if isS3PreconditionFailed(err) {
			return fmt.Errorf("paste %s changed concurrently: %w", oldURL, err)
		}
		return err
	}

	if err := s.put(ctx, paste, "*", ""); err != nil {
		if isS3PreconditionFailed(err) {
			return ErrAlreadyExists
		}
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(oldURL)),
	})
	return err
}

// Delete removes a paste object
func (s *S3Store) Delete(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// DeleteObject succeeds on missing keys, so check first
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(url)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ErrNotFound
		}
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(url)),
	})
	return err
}

// IncrementViews does a compare-and-swap on the object's ETag
func (s *S3Store) IncrementViews(ctx context.Context, url string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt < maxViewRetries; attempt++ {
		var paste *models.Paste
		var etag string
		paste, etag, err = s.get(ctx, url)
		if err != nil {
			return err
		}
		paste.Views++
		err = s.put(ctx, paste, "", etag)
		if !isS3PreconditionFailed(err) {
			return err
		}
	}
	s.logger.Warn("gave up counting view", zap.String("url", url), zap.Error(err))
	return err
}

// walk visits every paste object under the prefix
func (s *S3Store) walk(ctx context.Context, fn func(*models.Paste)) error {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			url := strings.TrimSuffix(strings.TrimPrefix(key, s.prefix), ".json")
			paste, _, err := s.get(ctx, url)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			fn(paste)
		}
	}
	return nil
}

// List returns pastes newest first. S3 cannot filter server side, so every
// object under the prefix is read.
func (s *S3Store) List(ctx context.Context, opts models.ListOptions) ([]*models.Paste, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var pastes []*models.Paste
	err := s.walk(ctx, func(p *models.Paste) {
		if opts.Matches(p) {
			pastes = append(pastes, p)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(pastes, func(i, j int) bool {
		if pastes[i].DatePublished != pastes[j].DatePublished {
			return pastes[i].DatePublished > pastes[j].DatePublished
		}
		return pastes[i].URL < pastes[j].URL
	})
	return paginate(pastes, opts.Offset, opts.Limit), nil
}

// DeleteExpired removes expired paste objects
func (s *S3Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var expired []string
	err := s.walk(ctx, func(p *models.Paste) {
		if p.IsExpired(now) {
			expired = append(expired, p.URL)
		}
	})
	if err != nil {
		return 0, err
	}

	var n int64
	for _, url := range expired {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(url)),
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Ping checks that the bucket is reachable
func (s *S3Store) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	return err
}

func (s *S3Store) Close() error {
	return nil
}
