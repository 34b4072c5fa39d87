package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"paydesk/internal/config"
)

// S3Presigner hands out presigned PUT URLs for an S3-compatible bucket.
type S3Presigner struct {
	client  *s3.S3
	bucket  string
	baseURL string
	expiry  time.Duration
}

func NewS3Presigner(cfg config.StorageConfig) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is not configured")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(true),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("%s/%s", strings.TrimRight(cfg.Endpoint, "/"), cfg.Bucket)
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Presigner{client: s3.New(sess), bucket: cfg.Bucket, baseURL: base, expiry: expiry}, nil
}

// PresignPut returns the URL to PUT the object to and the URL it will be
// readable at afterwards.
func (p *S3Presigner) PresignPut(key, contentType string, size int64) (string, string, error) {
	req, _ := p.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	uploadURL, err := req.Presign(p.expiry)
	if err != nil {
		return "", "", fmt.Errorf("unable to presign upload: %v", err)
	}

	return uploadURL, p.baseURL + "/" + key, nil
}
