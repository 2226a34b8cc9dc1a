// Package filestore stores record attachments in object buckets and
// hands back public URLs.
package filestore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Bucket names, one per record family.
const (
	TicketBucket = "ticket-attachments"
	BillBucket   = "bill-attachments"
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// PublicURL is the externally reachable base for attachment links,
	// e.g. https://files.nexticket.dev. Defaults to the endpoint.
	PublicURL string
}

// Service wraps the object store client.
type Service struct {
	client    *minio.Client
	publicURL string
}

func NewService(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint
	}

	return &Service{client: client, publicURL: publicURL}, nil
}

// EnsureBuckets creates the attachment buckets when missing.
func (s *Service) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{TicketBucket, BillBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// Upload stores one attachment under {recordID}/{timestamp}_{sanitizedName}
// and returns the object key and its public URL.
func (s *Service) Upload(ctx context.Context, bucket, recordID, filename, contentType string, size int64, body io.Reader) (key, publicURL string, err error) {
	key = fmt.Sprintf("%s/%d_%s", recordID, time.Now().UnixMilli(), SanitizeFilename(filename))

	_, err = s.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}

	return key, s.URLFor(bucket, key), nil
}

// URLFor returns the public URL for an already stored object.
func (s *Service) URLFor(bucket, key string) string {
	escaped := make([]string, 0, 2)
	for _, part := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return s.publicURL + "/" + bucket + "/" + strings.Join(escaped, "/")
}

// SanitizeFilename keeps letters, digits, dot, dash and underscore; every
// other byte becomes an underscore so keys stay unambiguous.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
