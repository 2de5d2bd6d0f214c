package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-retryablehttp"
)

// S3API is the subset of the S3 client used for s3:// transfers.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %q", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("s3 url needs a bucket and a key: %q", raw)
	}
	return u.Host, key, nil
}

// Download copies the file at fileURL to dst. Credentials are sent only to the
// service endpoint itself; result URLs on other hosts are expected to be
// pre-signed.
func (c *Client) Download(ctx context.Context, fileURL, dst string) error {
	if strings.HasPrefix(fileURL, "s3://") {
		return c.downloadS3(ctx, fileURL, dst)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	if c.sameHost(req.URL) {
		c.authorize(req, "")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFault(resp, resp.Header.Get(HeaderTrackingID))
	}
	return writeFile(dst, resp.Body)
}

// Upload sends the file at src to uploadURL as a multipart form.
func (c *Client) Upload(ctx context.Context, uploadURL, src, trackingID string) error {
	if strings.HasPrefix(uploadURL, "s3://") {
		return c.uploadS3(ctx, uploadURL, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("uploadFile", filepath.Base(src))
	if err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body.Bytes())
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req, trackingID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFault(resp, trackingID)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) sameHost(u *url.URL) bool {
	return strings.EqualFold(u.Host, c.endpoint.Host) && u.Scheme == c.endpoint.Scheme
}

func (c *Client) downloadS3(ctx context.Context, fileURL, dst string) error {
	if c.s3 == nil {
		return fmt.Errorf("s3 transfers are not configured: %s", fileURL)
	}
	bucket, key, err := ParseS3URL(fileURL)
	if err != nil {
		return err
	}
	resp, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", fileURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return writeFile(dst, resp.Body)
}

func (c *Client) uploadS3(ctx context.Context, uploadURL, src string) error {
	if c.s3 == nil {
		return fmt.Errorf("s3 transfers are not configured: %s", uploadURL)
	}
	bucket, key, err := ParseS3URL(uploadURL)
	if err != nil {
		return err
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", uploadURL, err)
	}
	return nil
}

// writeFile copies r into a new file at dst, removing it on failure.
func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return nil
}
