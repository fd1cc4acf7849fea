package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
	"github.com/rs/zerolog"
)

// EncryptionKeySize is the length of the SSE-C key in bytes.
const EncryptionKeySize = 32

// streamPartSize bounds the buffer minio-go allocates for uploads of unknown
// length. It is the smallest part size S3 accepts.
const streamPartSize = 5 << 20

var (
	// ErrEncryptionKeyRequired is returned when no SSE-C key is configured.
	ErrEncryptionKeyRequired = errors.New("storage: encryption key is required")
	// ErrInsecureEndpoint is returned when SSE-C would travel over plain HTTP.
	ErrInsecureEndpoint = errors.New("storage: SSE-C requires an https endpoint")
)

// MinioConfig holds the connection settings for NewMinioStorage.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Region skips bucket location lookups when set.
	Region string
	// EncryptionKey is the SSE-C key applied to every object. It must be
	// EncryptionKeySize bytes long.
	EncryptionKey []byte
	// Transport overrides the HTTP transport; nil uses minio-go's default.
	Transport http.RoundTripper
}

// MinioStorage implements Storage using a MinIO (or any S3-compatible) backend.
// Objects are encrypted at rest with a customer-provided key, so the bucket
// stays private and images are only served through the API.
type MinioStorage struct {
	client *minio.Client
	bucket string
	sse    encrypt.ServerSide
}

// NewMinioStorage creates a MinIO client, ensures the bucket exists, and
// returns a ready-to-use MinioStorage.
func NewMinioStorage(ctx context.Context, cfg MinioConfig, log zerolog.Logger) (*MinioStorage, error) {
	endpoint, secure, err := NormaliseEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("storage endpoint: %w", err)
	}
	secure = secure || cfg.UseSSL
	if len(cfg.EncryptionKey) == 0 {
		return nil, ErrEncryptionKeyRequired
	}
	if !secure {
		return nil, ErrInsecureEndpoint
	}

	sse, err := encrypt.NewSSEC(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create sse-c key: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    secure,
		Region:    cfg.Region,
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	s := &MinioStorage{client: client, bucket: cfg.Bucket, sse: sse}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("storage: created bucket")
	}

	return s, nil
}

// Upload streams reader to MinIO under key. A size of -1 uploads in
// streamPartSize parts.
func (s *MinioStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType:          contentType,
		ServerSideEncryption: s.sse,
	}
	if size < 0 {
		opts.PartSize = streamPartSize
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// Download returns the decrypted object at key.
func (s *MinioStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{
		ServerSideEncryption: s.sse,
	})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	// GetObject is lazy; Stat surfaces missing keys and key mismatches early.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %q: %w", key, err)
	}
	return obj, nil
}

// Delete removes the object at key from the bucket.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// NormaliseEndpoint accepts either "minio:9000" or "http(s)://minio:9000".
func NormaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	return raw, false, nil
}

// ParseEncryptionKey accepts a key given either as EncryptionKeySize raw
// bytes or as standard base64 of that many bytes. An empty input yields a
// nil key.
func ParseEncryptionKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) == EncryptionKeySize {
		return []byte(raw), nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("encryption key is neither %d bytes nor base64: %w", EncryptionKeySize, err)
	}
	if len(key) != EncryptionKeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", EncryptionKeySize, len(key))
	}
	return key, nil
}
