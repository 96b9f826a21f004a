package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/aetherlabs/aether-backend/internal/freepik"
	"github.com/aetherlabs/aether-backend/internal/models"
)

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

// MediaStore copies provider output into the project's S3-compatible bucket
// and removes objects when retention expires. Generated media is served
// from PublicBaseURL, never directly from the provider.
type MediaStore struct {
	cfg        Config
	client     *s3.Client
	httpClient *http.Client
}

func NewMediaStore(cfg Config) (*MediaStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "outputs"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return &MediaStore{
		cfg:    cfg,
		client: s3.New(options),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
}

// Store persists one generated artifact under a key derived from the request
// id and returns its public URL. Media with inline bytes is uploaded
// directly; otherwise the provider URL is fetched first.
func (m *MediaStore) Store(ctx context.Context, requestID string, mediaType models.MediaType, media *freepik.Media) (string, error) {
	data := media.Bytes
	contentType := media.Mime
	if len(data) == 0 {
		if media.URL == "" {
			return "", fmt.Errorf("media carries neither bytes nor url")
		}
		var err error
		data, contentType, err = m.fetch(ctx, media.URL)
		if err != nil {
			return "", err
		}
	}
	if contentType == "" {
		contentType = defaultContentType(mediaType)
	}

	key := m.objectKey(requestID, contentType)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return strings.TrimRight(m.cfg.PublicBaseURL, "/") + "/" + key, nil
}

// Remove deletes the object behind a public URL produced by Store. Called by
// the retention sweeper when a request expires.
func (m *MediaStore) Remove(ctx context.Context, outputURL string) error {
	key, err := m.keyFromURL(outputURL)
	if err != nil {
		return err
	}
	if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}

func (m *MediaStore) fetch(ctx context.Context, srcURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download media: status=%d url=%s", resp.StatusCode, srcURL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read media body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (m *MediaStore) objectKey(requestID, contentType string) string {
	now := time.Now().UTC()
	prefix := strings.Trim(m.cfg.Prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), requestID+extensionFromContentType(contentType))
}

func (m *MediaStore) keyFromURL(outputURL string) (string, error) {
	base := strings.TrimRight(m.cfg.PublicBaseURL, "/") + "/"
	if strings.HasPrefix(outputURL, base) {
		return strings.TrimPrefix(outputURL, base), nil
	}
	// Fall back to the URL path for URLs recorded under an older base.
	parsed, err := url.Parse(outputURL)
	if err != nil {
		return "", fmt.Errorf("parse output url: %w", err)
	}
	key := strings.TrimLeft(parsed.Path, "/")
	if key == "" {
		return "", fmt.Errorf("output url carries no object key: %s", outputURL)
	}
	return key, nil
}

func defaultContentType(mediaType models.MediaType) string {
	if mediaType == models.MediaVideo {
		return "video/mp4"
	}
	return "image/png"
}

func extensionFromContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
