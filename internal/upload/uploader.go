// Package upload hosts finished images and reports byte-level progress while doing so.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mahirjain10/photomosaic-bot/internal/utils"
	"github.com/sethvargo/go-retry"
)

// DefaultTimeout bounds one job's upload, retries included.
const DefaultTimeout = 120 * time.Second

// Uploader hosts data and returns its public URL. onProgress receives strictly
// increasing percentages of the request body sent.
type Uploader interface {
	Upload(ctx context.Context, data []byte, name string, onProgress func(percent int)) (string, error)
}

// UploadError is any failure to host the result: transport errors, timeouts and
// unsuccessful responses.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type retrying struct {
	next     Uploader
	attempts uint64
	base     time.Duration
	logger   *slog.Logger
}

// WithRetry retries transient failures of next with exponential backoff starting at
// base, making at most attempts calls in total.
func WithRetry(next Uploader, attempts int, base time.Duration, logger *slog.Logger) Uploader {
	if attempts < 1 {
		attempts = 1
	}
	return &retrying{next: next, attempts: uint64(attempts), base: base, logger: logger}
}

func (r *retrying) Upload(ctx context.Context, data []byte, name string, onProgress func(percent int)) (string, error) {
	var url string
	attempt := 0
	backoff := retry.WithMaxRetries(r.attempts-1, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		u, err := r.next.Upload(ctx, data, name, onProgress)
		if err != nil {
			if utils.IsTransientError(err) {
				r.logger.Warn("upload attempt failed, retrying", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		url = u
		return nil
	})
	if err != nil {
		var uploadErr *UploadError
		if errors.As(err, &uploadErr) {
			return "", uploadErr
		}
		return "", &UploadError{Err: err}
	}
	return url, nil
}
