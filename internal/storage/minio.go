package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioOpts func(c *minioConfig)

type minioConfig struct {
	endpoint        string
	bucket          string
	accessKey       string
	secretAccessKey string
	outputPrefix    string
	useSSL          bool
}

func newConfig(opts ...MinioOpts) *minioConfig {
	cfg := &minioConfig{
		useSSL:       false,
		outputPrefix: "validated",
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// ObjectStore moves job files in and out of the S3 bucket: the uploaded
// source file, the annotated output and the report document.
type ObjectStore struct {
	cfg    *minioConfig
	client *minio.Client
}

func NewObjectStore(opts ...MinioOpts) (*ObjectStore, error) {
	cfg := newConfig(opts...)

	// Initialize minio client object.
	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, err
	}

	return &ObjectStore{cfg: cfg, client: minioClient}, nil
}

// Get opens the object for streaming reads. The caller owns the returned
// reader and must close it.
func (s *ObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.cfg.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, err
	}
	return object, nil
}

func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// PutStream uploads from a reader of unknown length, so the client splits
// the upload into parts instead of buffering the whole object. The part
// size caps the per-upload memory.
func (s *ObjectStore) PutStream(ctx context.Context, key string, r io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, r, -1,
		minio.PutObjectOptions{ContentType: contentType, PartSize: 5 * 1024 * 1024})
	return err
}

// Move renames an object with a server side copy followed by a delete of
// the source.
func (s *ObjectStore) Move(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.cfg.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.cfg.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copying %s to %s: %w", srcKey, dstKey, err)
	}
	return s.client.RemoveObject(ctx, s.cfg.bucket, srcKey, minio.RemoveObjectOptions{})
}

func (s *ObjectStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))

	u, err := s.client.PresignedGetObject(ctx, s.cfg.bucket, key, expiry, reqParams)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// SourceKey is where a submitted file lands before validation starts.
func (s *ObjectStore) SourceKey(jobID uuid.UUID, fileName string) string {
	return path.Join("uploads", jobID.String(), path.Base(fileName))
}

// OutputKey names the annotated output after the original file, the job
// and the overall verdict, e.g. customers_5f3e..._FAIL.xlsx.
func (s *ObjectStore) OutputKey(jobID uuid.UUID, fileName string, passed bool) string {
	ext := path.Ext(fileName)
	base := strings.TrimSuffix(path.Base(fileName), ext)
	verdict := "FAIL"
	if passed {
		verdict = "PASS"
	}
	return path.Join(s.cfg.outputPrefix, fmt.Sprintf("%s_%s_%s%s", base, jobID.String(), verdict, ext))
}

// ScratchOutputKey holds the annotated output while the verdict is still
// unknown; once the pipeline finishes the object moves to its OutputKey.
func (s *ObjectStore) ScratchOutputKey(jobID uuid.UUID) string {
	return path.Join(s.cfg.outputPrefix, fmt.Sprintf("%s.partial", jobID.String()))
}

func (s *ObjectStore) ReportKey(jobID uuid.UUID) string {
	return path.Join(s.cfg.outputPrefix, fmt.Sprintf("report_%s.json", jobID.String()))
}

func WithEndpoint(endpoint string) MinioOpts {
	return func(c *minioConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) MinioOpts {
	return func(c *minioConfig) {
		c.bucket = bucket
	}
}

func WithOutputPrefix(prefix string) MinioOpts {
	return func(c *minioConfig) {
		c.outputPrefix = prefix
	}
}

func WithAccessKey(accessKey string) MinioOpts {
	return func(c *minioConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) MinioOpts {
	return func(c *minioConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) MinioOpts {
	return func(c *minioConfig) {
		c.useSSL = useSSL
	}
}
