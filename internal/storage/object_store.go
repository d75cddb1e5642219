package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectUploader uploads bytes to object storage.
type ObjectUploader interface {
	UploadBytes(ctx context.Context, data []byte, path, contentType string) (string, error)
}

// MinIOConfig holds MinIO connection configuration.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// MinIOStorage stores run exports in a MinIO or S3 bucket.
type MinIOStorage struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinIOStorage creates a new MinIO storage client.
func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinIOStorage{
		client:     client,
		bucketName: cfg.BucketName,
		region:     cfg.Region,
	}, nil
}

// InitBucket ensures the bucket exists and creates it if necessary.
func (s *MinIOStorage) InitBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Health checks MinIO connectivity.
func (s *MinIOStorage) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// UploadBytes uploads byte data to remote path.
func (s *MinIOStorage) UploadBytes(ctx context.Context, data []byte, path, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucketName, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload bytes: %w", err)
	}

	return info.Key, nil
}

// Exists checks if an object exists.
func (s *MinIOStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketName, path, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}

	return true, nil
}

// ObjectSink uploads run exports under runs/<run id>/.
type ObjectSink struct {
	uploader ObjectUploader
	format   string
	logger   *slog.Logger
}

// NewObjectSink creates a sink on top of an uploader.
func NewObjectSink(uploader ObjectUploader, format string, logger *slog.Logger) *ObjectSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectSink{uploader: uploader, format: format, logger: logger.With("component", "object_sink")}
}

func (s *ObjectSink) Name() string { return "objects" }

// ObjectKey returns the key a snapshot file is uploaded under.
func ObjectKey(snap Snapshot, suffix string) string {
	return path.Join("runs", snap.Result.RunID, snap.Name+suffix)
}

func (s *ObjectSink) Save(ctx context.Context, snap Snapshot) error {
	csvOut, jsonOut := Formats(s.format)
	if csvOut {
		data, err := EncodeCSV(snap.Result.Records)
		if err != nil {
			return err
		}
		if err := s.upload(ctx, ObjectKey(snap, ".csv"), data, "text/csv"); err != nil {
			return err
		}
	}
	if jsonOut {
		data, err := EncodeRecordsJSON(snap.Result.Records)
		if err != nil {
			return fmt.Errorf("failed to encode records: %w", err)
		}
		if err := s.upload(ctx, ObjectKey(snap, ".json"), data, "application/json"); err != nil {
			return err
		}
	}

	summary, err := EncodeSummaryJSON(snap.Result)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return s.upload(ctx, ObjectKey(snap, "_summary.json"), summary, "application/json")
}

func (s *ObjectSink) upload(ctx context.Context, key string, data []byte, contentType string) error {
	if _, err := s.uploader.UploadBytes(ctx, data, key, contentType); err != nil {
		return err
	}
	s.logger.Info("Data uploaded", "key", key, "bytes", len(data))
	return nil
}
