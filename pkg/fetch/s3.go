package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter is the subset of the S3 API used for downloads
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 downloads s3://bucket/key objects using the instance's credentials
type S3 struct {
	mu     sync.Mutex
	client ObjectGetter
}

// NewS3 creates an S3 fetcher. A nil client is built on first use from the
// default credential chain.
func NewS3(client ObjectGetter) *S3 {
	return &S3{client: client}
}

func (f *S3) getClient(ctx context.Context) (ObjectGetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	f.client = s3.NewFromConfig(cfg)
	return f.client, nil
}

// ParseS3URL splits s3://bucket/key
func ParseS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %q", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q must be s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}

func (f *S3) Fetch(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	bucket, key, err := ParseS3URL(rawURL)
	if err != nil {
		return 0, err
	}

	client, err := f.getClient(ctx)
	if err != nil {
		return 0, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get s3 object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	n, err := io.Copy(w, out.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read s3 object %s/%s: %w", bucket, key, err)
	}
	return n, nil
}
