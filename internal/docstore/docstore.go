// Package docstore materializes remote contract documents on local disk
// and manages their object-storage lifecycle.
package docstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"contract-analyzer/internal/config"
	"contract-analyzer/internal/models"
	"contract-analyzer/internal/retry"
)

const (
	downloadAttempts = 3
	downloadDelay    = 2 * time.Second
)

// ObjectStore is the narrow object-storage surface the client needs.
type ObjectStore interface {
	SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, bucket, key string) error
}

// recordDeleter deletes a document metadata row after its artifact is gone.
type recordDeleter interface {
	DeleteDocumentRecord(ctx context.Context, id string) error
}

// Client fetches documents by bucket reference and caches them on disk.
type Client struct {
	objects    ObjectStore
	httpClient *http.Client
	signedTTL  time.Duration
}

// New builds a docstore client backed by S3.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	s3Client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DownloadTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.SignedURLTTL
	if ttl == 0 {
		ttl = time.Minute
	}
	return &Client{
		objects:    &s3ObjectStore{client: s3Client, presign: s3.NewPresignClient(s3Client)},
		httpClient: &http.Client{Timeout: timeout},
		signedTTL:  ttl,
	}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.S3Endpoint,
					HostnameImmutable: cfg.S3PathStyle,
					SigningRegion:     cfg.S3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	}), nil
}

// EnsureLocal guarantees the document behind bucketURL exists under
// destDir. An already-present file is reused without a network round
// trip; the check is existence only, so a stale leftover with the same
// name wins (logged so the reuse is visible). The boolean result models
// acquisition failure as a value: callers treat false as fatal for the
// job, not as an exceptional path.
func (c *Client) EnsureLocal(ctx context.Context, worker, bucketURL, destDir string) bool {
	ref, err := ParseBucketURL(bucketURL)
	if err != nil {
		log.Printf("[%s] bad bucket reference %q: %v", worker, bucketURL, err)
		return false
	}

	destPath := filepath.Join(destDir, ref.FileName)
	if _, err := os.Stat(destPath); err == nil {
		log.Printf("[%s] reusing cached document at %s", worker, destPath)
		return true
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		log.Printf("[%s] create document dir: %v", worker, err)
		return false
	}

	err = retry.Do(ctx, "download document", worker, downloadAttempts, downloadDelay, func() error {
		return c.download(ctx, ref, destPath)
	})
	if err != nil {
		log.Printf("[%s] failed to fetch document %s: %v", worker, bucketURL, err)
		return false
	}
	log.Printf("[%s] downloaded document to %s", worker, destPath)
	return true
}

func (c *Client) download(ctx context.Context, ref BucketRef, destPath string) error {
	url, err := c.objects.SignedDownloadURL(ctx, ref.Bucket, ref.Key, c.signedTTL)
	if err != nil {
		return fmt.Errorf("create signed url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download document: status %d", resp.StatusCode)
	}

	tmp := destPath + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	return os.Rename(tmp, destPath)
}

// Purge removes a document's backing object, then its metadata row. A
// storage removal error is fatal before the row delete so a missing
// artifact can never hide behind surviving metadata. A crash between the
// two steps leaves an orphaned row, which is the accepted gap.
func (c *Client) Purge(ctx context.Context, records recordDeleter, doc models.Document) error {
	if err := c.objects.Remove(ctx, doc.Bucket, doc.FileName); err != nil {
		return fmt.Errorf("remove object %s/%s: %w", doc.Bucket, doc.FileName, err)
	}
	if err := records.DeleteDocumentRecord(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	return nil
}

// BucketRef is a parsed storage reference.
type BucketRef struct {
	Bucket   string
	Key      string
	FileName string
}

// ParseBucketURL splits a reference of the form .../<bucket>/<dir>/<file>
// into its bucket and object key. The last three path segments carry the
// reference; anything before them is host/prefix noise.
func ParseBucketURL(bucketURL string) (BucketRef, error) {
	parts := strings.Split(strings.TrimSuffix(bucketURL, "/"), "/")
	if len(parts) < 3 {
		return BucketRef{}, fmt.Errorf("bucket url %q has fewer than 3 segments", bucketURL)
	}
	bucket := parts[len(parts)-3]
	key := strings.Join(parts[len(parts)-2:], "/")
	file := parts[len(parts)-1]
	if bucket == "" || file == "" {
		return BucketRef{}, fmt.Errorf("bucket url %q missing bucket or file segment", bucketURL)
	}
	return BucketRef{Bucket: bucket, Key: key, FileName: file}, nil
}

// Prune deletes cached documents under dir older than maxAge and returns
// how many files were removed.
func Prune(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read document dir: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

type s3ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
}

func (s *s3ObjectStore) SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

func (s *s3ObjectStore) Remove(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
