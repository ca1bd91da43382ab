package s3store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/forPelevin/aishorts/internal/types"
)

const DefaultRegion = "ap-northeast-2"

type Config struct {
	Bucket string
	// BaseDir prefixes every generated key.
	BaseDir string
	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string
}

type Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	presigner  *s3.PresignClient
	bucket     string
	baseDir    string
	logger     *slog.Logger
	now        func() time.Time
	suffix     func() string
}

// New builds a store on awsCfg, usually from config.LoadDefaultConfig.
func New(awsCfg aws.Config, cfg Config, logger *slog.Logger) *Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		baseDir:    strings.Trim(cfg.BaseDir, "/"),
		logger:     logger,
		now:        time.Now,
		suffix:     shortID,
	}
}

func shortID() string { return uuid.NewString()[:8] }

func (s *Store) Bucket() string { return s.bucket }

// KeyFor builds <baseDir>/YYYY/MM/YYYYMMDD_HHMM_<seconds>Sec_<8 hex>.<ext>.
// The random suffix keeps uploads made in the same minute apart.
func (s *Store) KeyFor(localPath string, duration time.Duration) string {
	now := s.now()
	ext := strings.TrimPrefix(filepath.Ext(localPath), ".")
	name := fmt.Sprintf("%s_%dSec_%s", now.Format("20060102_1504"), int(duration/time.Second), s.suffix())
	if ext != "" {
		name += "." + ext
	}
	return path.Join(s.baseDir, now.Format("2006/01"), name)
}

// Upload puts localPath at key and returns the key. An empty key is
// generated with KeyFor.
func (s *Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", types.ErrNotFound, localPath)
		}
		return "", err
	}
	defer f.Close()

	if key == "" {
		key = s.KeyFor(localPath, 0)
	}
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", key, err)
	}
	s.logger.Info("uploaded", "bucket", s.bucket, "key", key, "path", localPath)
	return key, nil
}

// Presign returns a GET URL for key valid for expiry (one hour when zero).
func (s *Store) Presign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = time.Hour
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *Store) Download(ctx context.Context, key, localPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(localPath), "."+filepath.Base(localPath)+"-*.part")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("s3 download %s: %w", key, err)
	}
	if err := os.Rename(tmp, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 remove %s: %w", key, err)
	}
	return nil
}

// URI formats key as s3://bucket/key.
func (s *Store) URI(key string) string {
	return "s3://" + s.bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseURI splits s3://bucket/key.
func ParseURI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
