package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config points at an S3-compatible bucket (AWS, R2, MinIO).
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is where uploaded objects can be fetched from, e.g. a CDN
	// or an R2 public bucket domain.
	PublicBaseURL string
	Folder        string
	UsePathStyle  bool
	PresignExpiry time.Duration
}

// S3Store hands out presigned PUT URLs; the object key is the public ID.
type S3Store struct {
	cfg     S3Config
	client  *s3.Client
	presign *s3.PresignClient
	now     func() time.Time
}

// NewS3Store builds a client with static credentials and a custom endpoint.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: s3 bucket and credentials are required", ErrNotConfigured)
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.Folder == "" {
		cfg.Folder = DefaultFolder
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	awsCfg := aws.Config{
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region:      cfg.Region,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Store{
		cfg:     cfg,
		client:  client,
		presign: s3.NewPresignClient(client),
		now:     time.Now,
	}, nil
}

func (s *S3Store) objectKey(fileName string) string {
	return s.cfg.Folder + "/" + uuid.NewString() + extOf(fileName)
}

func (s *S3Store) Credentials(ctx context.Context, req CredentialRequest) (Credentials, error) {
	key := s.objectKey(req.FileName)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}
	if req.ContentType != "" {
		in.ContentType = aws.String(req.ContentType)
	}
	presigned, err := s.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return Credentials{}, fmt.Errorf("presign upload: %w", err)
	}

	creds := Credentials{
		Timestamp: s.now().Unix(),
		CloudName: s.cfg.Bucket,
		Folder:    s.cfg.Folder,
		UploadURL: presigned.URL,
		Method:    http.MethodPut,
		PublicID:  key,
	}
	if u, err := url.Parse(presigned.URL); err == nil {
		creds.Signature = u.Query().Get("X-Amz-Signature")
	}
	if s.cfg.PublicBaseURL != "" {
		creds.URL = s.cfg.PublicBaseURL + "/" + key
	}
	return creds, nil
}

func (s *S3Store) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return fmt.Errorf("empty public id")
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", publicID, err)
	}
	return nil
}
