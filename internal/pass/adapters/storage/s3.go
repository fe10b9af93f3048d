// Package storage keeps generated passes in S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"walletpass/internal/platform/logger"
	"walletpass/pkg/platform/sentinel"
)

var storeOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "walletpass_artifact_store_duration_seconds",
	Help:    "Latency of artifact store calls by operation",
	Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
}, []string{"op"})

// API is the subset of the S3 client used here.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store publishes passes as public-read objects.
type S3Store struct {
	client  API
	bucket  string
	host    string
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*S3Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *S3Store) {
		s.logger = l
	}
}

// WithTimeout bounds each storage call.
func WithTimeout(d time.Duration) Option {
	return func(s *S3Store) {
		s.timeout = d
	}
}

// New builds a store for bucket. host is the virtual-hosted suffix used in
// public URLs, e.g. s3.us-east-1.amazonaws.com.
func New(client API, bucket, host string, opts ...Option) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	if bucket == "" || host == "" {
		return nil, errors.New("bucket and storage host are required")
	}
	s := &S3Store{client: client, bucket: bucket, host: host, timeout: 15 * time.Second, logger: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Exists treats a missing object as (false, nil). Anything else that is not a
// success is an error, including access denied.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer func() { storeOpDuration.WithLabelValues("head").Observe(time.Since(start).Seconds()) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	start := time.Now()
	defer func() { storeOpDuration.WithLabelValues("put").Observe(time.Since(start).Seconds()) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.InfoContext(ctx, "artifact stored", "key", key, "bytes", len(body))
	return nil
}

func (s *S3Store) URL(key string) string {
	return "https://" + s.bucket + "." + s.host + "/" + key
}

func (s *S3Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return errors.Is(err, sentinel.ErrNotFound)
}
