package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the subset of the object store the attachment flow needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, progress io.Reader) (ObjectStat, error)
	StatObject(ctx context.Context, key string) (ObjectStat, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

var ErrObjectNotFound = errors.New("object not found")

type ObjectStat struct {
	Key         string
	Size        int64
	ContentType string
	StoredAt    time.Time
}

// S3Options configures a MinIO or S3 compatible bucket. Region may be empty for MinIO.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// S3Storage keeps attachments in a single bucket.
type S3Storage struct {
	client *minio.Client
	bucket string
	region string
}

var _ ObjectStore = (*S3Storage)(nil)

func NewS3Storage(opts S3Options) (*S3Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return &S3Storage{client: client, bucket: opts.Bucket, region: opts.Region}, nil
}

func (s *S3Storage) Bucket() string { return s.bucket }

// EnsureBucket creates the attachment bucket when it does not exist yet.
func (s *S3Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil || exists {
		return err
	}
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
}

// PutObject uploads body under key. progress, if set, is read with every chunk sent.
func (s *S3Storage) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string, progress io.Reader) (ObjectStat, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    progress,
	})
	if err != nil {
		return ObjectStat{}, err
	}
	return ObjectStat{Key: info.Key, Size: info.Size, ContentType: contentType, StoredAt: time.Now().UTC()}, nil
}

// StatObject reports the stored size and type of key. A missing object
// yields ErrObjectNotFound.
func (s *S3Storage) StatObject(ctx context.Context, key string) (ObjectStat, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ObjectStat{}, ErrObjectNotFound
		}
		return ObjectStat{}, err
	}
	return ObjectStat{Key: info.Key, Size: info.Size, ContentType: info.ContentType, StoredAt: info.LastModified}, nil
}

// PresignGet returns a time-limited download URL for key.
func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// DeleteObject removes key; missing keys are not an error.
func (s *S3Storage) DeleteObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
