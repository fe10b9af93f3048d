// Package secrets resolves signing material by name, from AWS Secrets
// Manager or from the local filesystem.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"walletpass/internal/platform/logger"
	"walletpass/pkg/platform/sentinel"
)

// API is the subset of the Secrets Manager client used here.
type API interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Store returns raw secret values. Names that start with "/" are file paths.
type Store struct {
	client   API
	readFile func(string) ([]byte, error)
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New builds a store. client may be nil when every configured name is a
// local path.
func New(client API, opts ...Option) *Store {
	s := &Store{
		client:   client,
		readFile: os.ReadFile,
		timeout:  10 * time.Second,
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) GetSecret(ctx context.Context, name string) (string, error) {
	if strings.HasPrefix(name, "/") {
		return s.fromFile(name)
	}
	if s.client == nil {
		return "", fmt.Errorf("secret %s: no secrets manager client configured", name)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return "", fmt.Errorf("secret %s: %w", name, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("secret %s: %w", name, err)
	}

	if out.SecretString != nil {
		return aws.ToString(out.SecretString), nil
	}
	// binary secrets are returned byte for byte: PEM text as-is, PKCS#12
	// bundles as raw DER
	if len(out.SecretBinary) > 0 {
		s.logger.DebugContext(ctx, "secret stored as binary", "secret", name)
		return string(out.SecretBinary), nil
	}
	return "", fmt.Errorf("secret %s: empty value", name)
}

func (s *Store) fromFile(path string) (string, error) {
	raw, err := s.readFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("secret file %s: %w", path, sentinel.ErrNotFound)
		}
		return "", fmt.Errorf("secret file %s: %w", path, err)
	}
	return string(raw), nil
}
