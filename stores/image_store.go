package stores

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"wuyrush.io/pinboard/common/logging"
	se "wuyrush.io/pinboard/errors"
	md "wuyrush.io/pinboard/models"
)

// Upload is an image file received from a client
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageStore stores pin images outside of the pin documents
type ImageStore interface {
	// Save stores the uploaded image and returns its id and retrievable url
	Save(ctx context.Context, up *Upload) (md.Image, *se.Err)
	// Delete deletes image from store. Delete must be idempotent
	Delete(ctx context.Context, imageID string) *se.Err
	Close() *se.Err
}

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// NewImageKey returns a fresh storage key for an uploaded file, keeping its extension when sane
func NewImageKey(filename string) string {
	d := time.Now().UTC()
	ext := strings.ToLower(filepath.Ext(filename))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("pins/%04d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL is the base of image urls handed to clients; Endpoint is used when empty
	PublicURL string
}

// s3API is the subset of *s3.Client S3ImageStore needs
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ImageStore implements ImageStore with an S3-compatible object storage
type S3ImageStore struct {
	api     s3API
	bucket  string
	baseURL string
}

func NewS3ImageStore(ctx context.Context, cfg *S3Config) (*S3ImageStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			// S3-compatible stores like MinIO only support path-style addressing
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3ImageStore(client, cfg), nil
}

func newS3ImageStore(api s3API, cfg *S3Config) *S3ImageStore {
	base := cfg.PublicURL
	if base == "" {
		base = cfg.Endpoint
	}
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
	}
	return &S3ImageStore{api: api, bucket: cfg.Bucket, baseURL: strings.TrimRight(base, "/")}
}

func (s *S3ImageStore) Save(ctx context.Context, up *Upload) (md.Image, *se.Err) {
	key := NewImageKey(up.Filename)
	clog := logging.WithFuncName().WithFields(log.Fields{"bucket": s.bucket, "key": key})
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        up.Body,
		ContentType: aws.String(up.ContentType),
	}
	if up.Size > 0 {
		in.ContentLength = aws.Int64(up.Size)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		clog.WithError(err).Error("error uploading image to S3")
		return md.Image{}, se.NewUploadFailed().WithCause(err)
	}
	return md.Image{ID: key, URL: fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, key)}, nil
}

func (s *S3ImageStore) Delete(ctx context.Context, imageID string) *se.Err {
	if imageID == "" {
		return nil
	}
	// S3 reports success when deleting a missing key
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(imageID),
	}); err != nil {
		logging.WithFuncName().WithError(err).WithField("key", imageID).Error("error deleting image from S3")
		return se.NewServiceFailure("error deleting pin image").WithCause(err)
	}
	return nil
}

func (s *S3ImageStore) Close() *se.Err {
	return nil
}
