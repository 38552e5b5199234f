package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config contains the information required to talk to an object store.
type Config struct {
	Provider  string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client is the gateway every workflow uses. Implementations never retry;
// failures surface as ErrNotFound or ErrUnavailable wrapped in *Error.
type Client interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
	// List returns every key under prefix in lexical order. No matches is an
	// empty slice, not an error.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Close() error
}

// New creates an object store client based on the given configuration.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "minio", "s3":
		return newMinioClient(cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}

type minioClient struct {
	client *minio.Client
}

func newMinioClient(cfg Config) (Client, error) {
	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	// minio.New wants host:port; accept URLs for convenience.
	if rest, ok := strings.CutPrefix(endpoint, "https://"); ok {
		endpoint, secure = rest, true
	} else if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint = rest
	}

	cl, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioClient{client: cl}, nil
}

func (m *minioClient) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classify("get", bucket, key, err)
	}
	defer obj.Close()

	// GetObject is lazy; the first read surfaces NoSuchKey.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classify("get", bucket, key, err)
	}
	return data, nil
}

func (m *minioClient) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return classify("put", bucket, key, err)
	}
	return nil
}

func (m *minioClient) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	dst := minio.CopyDestOptions{Bucket: bucket, Object: dstKey}
	src := minio.CopySrcOptions{Bucket: bucket, Object: srcKey}
	if _, err := m.client.CopyObject(ctx, dst, src); err != nil {
		return classify("copy", bucket, srcKey, err)
	}
	return nil
}

func (m *minioClient) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return classify("delete", bucket, key, err)
	}
	return nil
}

func (m *minioClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	keys := []string{}
	// The channel walks every ListObjectsV2 page for us.
	for info := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, classify("list", bucket, prefix, info.Err)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

func (m *minioClient) Close() error {
	return nil
}

func classify(op, bucket, key string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NoSuchObject":
		return newError(op, bucket, key, ErrNotFound, err)
	default:
		return newError(op, bucket, key, ErrUnavailable, err)
	}
}
