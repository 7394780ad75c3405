package bot

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDownloadTimeout is the default timeout for image downloads
	DefaultDownloadTimeout = 30 * time.Second
	// DefaultMaxImageSize is the default maximum image size (10MB)
	DefaultMaxImageSize = 10 * 1024 * 1024
)

// ImageTooLargeError is returned when an image exceeds the size limit.
type ImageTooLargeError struct {
	Limit int64
}

func (e *ImageTooLargeError) Error() string {
	return fmt.Sprintf("image too large: exceeds limit of %d bytes", e.Limit)
}

// ImageDownloader downloads images with a timeout and a size limit.
type ImageDownloader struct {
	client  *resty.Client
	timeout time.Duration
	maxSize int64
}

// NewImageDownloader creates a new ImageDownloader with default settings.
func NewImageDownloader() *ImageDownloader {
	return &ImageDownloader{
		client:  resty.New().SetDebug(false).SetTimeout(DefaultDownloadTimeout),
		timeout: DefaultDownloadTimeout,
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom timeout for downloads.
func (d *ImageDownloader) WithTimeout(timeout time.Duration) *ImageDownloader {
	d.timeout = timeout
	d.client.SetTimeout(timeout)
	return d
}

// WithMaxSize sets a custom maximum file size.
func (d *ImageDownloader) WithMaxSize(maxSize int64) *ImageDownloader {
	d.maxSize = maxSize
	return d
}

// MaxSize returns the size limit in bytes.
func (d *ImageDownloader) MaxSize() int64 {
	return d.maxSize
}

// DownloadFromURL downloads image data from a URL.
// It respects context cancellation and enforces size limits.
func (d *ImageDownloader) DownloadFromURL(ctx context.Context, imageURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	res, err := d.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	// Validate Content-Type is an image
	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("invalid content type: expected image/*, got %s", contentType)
	}

	// Check Content-Length if available
	if res.RawResponse.ContentLength > d.maxSize {
		return nil, &ImageTooLargeError{Limit: d.maxSize}
	}

	// Use LimitReader to enforce size limit even if Content-Length is missing or wrong
	data, err := io.ReadAll(io.LimitReader(body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	if int64(len(data)) > d.maxSize {
		return nil, &ImageTooLargeError{Limit: d.maxSize}
	}

	return data, nil
}

// DownloadFromTelegramFileID downloads an image from Telegram using a file ID.
// It uses the provided function to resolve the file ID to a direct URL.
func (d *ImageDownloader) DownloadFromTelegramFileID(
	ctx context.Context,
	getFileDirectURL func(fileID string) (string, error),
	fileID string,
) ([]byte, error) {
	log.Info().Str("fileID", fileID).Msg("downloading telegram file")

	url, err := getFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file URL: %w", err)
	}

	return d.DownloadFromURL(ctx, url)
}
