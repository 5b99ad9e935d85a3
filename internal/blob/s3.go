// Package blob stores uploaded binaries and returns their public URLs.
package blob

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/storeadmin/internal/apperror"
	"github.com/smallbiznis/storeadmin/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MaxUploadSize bounds a single upload.
const MaxUploadSize = 10 << 20

var (
	ErrUploadDisabled     = errors.New("upload_disabled")
	ErrUnsupportedType    = errors.New("unsupported_content_type")
	ErrUploadTooLarge     = errors.New("upload_too_large")
	ErrInvalidUploadStore = errors.New("invalid_upload_store")
)

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

var Module = fx.Module("blob",
	fx.Provide(NewS3Uploader),
	fx.Provide(func(u *S3Uploader) Uploader { return u }),
)

type Upload struct {
	StoreID     string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, in Upload) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	client  putObjectAPI
	bucket  string
	baseURL string
	log     *zap.Logger
	newKey  func(storeID, ext string) string
}

// NewS3Uploader returns a disabled uploader when no bucket is configured.
func NewS3Uploader(cfg config.Config, log *zap.Logger) (*S3Uploader, error) {
	u := &S3Uploader{bucket: cfg.Blob.Bucket, log: log.Named("blob.s3"), newKey: objectKey}
	if u.bucket == "" {
		u.log.Info("uploads disabled: no bucket configured")
		return u, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Blob.Region))
	if err != nil {
		return nil, err
	}
	u.client = s3.NewFromConfig(awsCfg)
	u.baseURL = cfg.Blob.PublicBaseURL
	if u.baseURL == "" {
		u.baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.bucket, cfg.Blob.Region)
	}
	return u, nil
}

func (u *S3Uploader) Enabled() bool { return u != nil && u.client != nil && u.bucket != "" }

func (u *S3Uploader) Upload(ctx context.Context, in Upload) (string, error) {
	if !u.Enabled() {
		return "", apperror.Wrap(apperror.KindUnavailable, ErrUploadDisabled, "uploads are not configured")
	}
	storeID := strings.TrimSpace(in.StoreID)
	if storeID == "" || strings.Contains(storeID, "/") {
		return "", apperror.Wrap(apperror.KindInvalidReference, ErrInvalidUploadStore, "uploads need a store")
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(in.ContentType, ";", 2)[0]))
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", apperror.Wrap(apperror.KindValidation, ErrUnsupportedType, contentType)
	}
	if in.Size > MaxUploadSize {
		return "", apperror.Wrap(apperror.KindValidation, ErrUploadTooLarge, fmt.Sprintf("%d bytes", in.Size))
	}

	key := u.newKey(storeID, ext)
	input := &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         io.LimitReader(in.Body, MaxUploadSize),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}
	if in.Size > 0 {
		input.ContentLength = aws.Int64(in.Size)
	}
	if name := path.Base(strings.TrimSpace(in.Filename)); name != "" && name != "." && name != "/" {
		input.Metadata = map[string]string{"original-filename": name}
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		u.log.Warn("s3 put failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("%w: s3 put %s: %w", apperror.ErrExternalService, key, err)
	}
	u.log.Debug("uploaded", zap.String("store_id", storeID), zap.String("key", key), zap.Int64("size", in.Size))
	return strings.TrimRight(u.baseURL, "/") + "/" + key, nil
}

func objectKey(storeID, ext string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)
	return fmt.Sprintf("stores/%s/uploads/%s%s", storeID, strings.ToLower(id.String()), ext)
}
