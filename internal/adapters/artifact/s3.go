package artifact

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader stores an object.
type Uploader interface {
	Put(ctx context.Context, bucket, key string, body []byte) error
}

// S3Uploader is an Uploader backed by Amazon S3.
type S3Uploader struct {
	client *s3.Client
}

// NewS3Uploader builds a client from the default AWS credential chain.
func NewS3Uploader(ctx context.Context, region string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %w", ErrUpload, err)
	}
	return &S3Uploader{client: s3.NewFromConfig(cfg)}, nil
}

// Put implements Uploader.
func (u *S3Uploader) Put(ctx context.Context, bucket, key string, body []byte) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("%w: s3://%s/%s: %w", ErrUpload, bucket, key, err)
	}
	return nil
}

// ParseLocation extracts bucket and key from an s3:// URL or an S3 https
// URL in virtual-hosted or path style.
func ParseLocation(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrLocation, err)
	}
	path := strings.TrimPrefix(u.Path, "/")

	switch {
	case u.Scheme == "s3":
		bucket, key = u.Host, path
	case (u.Scheme == "https" || u.Scheme == "http") && strings.HasSuffix(u.Host, ".amazonaws.com"):
		host := strings.TrimSuffix(u.Host, ".amazonaws.com")
		if i := strings.Index(host, ".s3"); i > 0 {
			bucket, key = host[:i], path
		} else if strings.HasPrefix(host, "s3") {
			bucket, key, _ = strings.Cut(path, "/")
		}
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q is not an S3 object URL", ErrLocation, raw)
	}
	return bucket, key, nil
}
