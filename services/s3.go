package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"docbridge/config"
	"docbridge/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ArtifactStore persists batch archives and serves first-class stored
// documents back to the pipeline.
type ArtifactStore interface {
	PutArchive(ctx context.Context, key string, localPath string) (*models.ArchiveInfo, error)
	FetchDocument(ctx context.Context, key string) ([]byte, error)
}

// S3ArtifactStore keeps artifacts in a bucket shared with the surrounding
// application.
type S3ArtifactStore struct {
	session    *session.Session
	bucket     string
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func NewS3ArtifactStore(cfg *config.Config) *S3ArtifactStore {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.S3Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		),
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess := session.Must(session.NewSession(awsCfg))

	return &S3ArtifactStore{
		session:    sess,
		bucket:     cfg.S3Bucket,
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}
}

// PutArchive streams a finished batch archive from disk into the bucket.
func (s *S3ArtifactStore) PutArchive(ctx context.Context, key string, localPath string) (*models.ArchiveInfo, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	return &models.ArchiveInfo{
		Location: fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Key:      key,
		Size:     info.Size(),
	}, nil
}

// FetchDocument pulls a stored upload into memory for conversion.
func (s *S3ArtifactStore) FetchDocument(ctx context.Context, key string) ([]byte, error) {
	buf := aws.NewWriteAtBuffer([]byte{})

	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download document: %w", err)
	}

	return buf.Bytes(), nil
}

// LocalArtifactStore is the no-S3 fallback: artifacts live in a directory on
// the pipeline host.
type LocalArtifactStore struct {
	dir string
}

func NewLocalArtifactStore(dir string) (*LocalArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &LocalArtifactStore{dir: dir}, nil
}

func (s *LocalArtifactStore) PutArchive(_ context.Context, key string, localPath string) (*models.ArchiveInfo, error) {
	dest := filepath.Join(s.dir, filepath.Base(key))

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	size, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		os.Remove(dest)
		return nil, fmt.Errorf("failed to copy archive: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("failed to close artifact: %w", err)
	}

	return &models.ArchiveInfo{Location: dest, Key: key, Size: size}, nil
}

func (s *LocalArtifactStore) FetchDocument(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("failed to read stored document: %w", err)
	}
	return data, nil
}

// Cleanup removes a finished temp file; an empty path is a no-op.
func Cleanup(path string) error {
	if path == "" {
		return nil
	}
	return os.Remove(path)
}
