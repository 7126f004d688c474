// Package fetch downloads source images.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mahirjain10/photomosaic-bot/internal/utils"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultTimeout = 30 * time.Second
	// MaxBytes caps a downloaded image.
	MaxBytes = 16 << 20
)

var ErrTooLarge = errors.New("image exceeds size limit")

// FetchError is a failed download.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher downloads the bytes behind a URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type Client struct {
	http     *http.Client
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

// NewClient returns a fetcher making at most attempts tries per download, backing off
// exponentially from backoff between transient failures. A nil httpClient gets one with
// DefaultTimeout.
func NewClient(httpClient *http.Client, attempts int, backoff time.Duration, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Client{http: httpClient, attempts: uint64(attempts), backoff: backoff, logger: logger}
}

func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	attempt := 0
	b := retry.WithMaxRetries(c.attempts-1, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		data, err := c.get(ctx, url)
		if err != nil {
			if utils.IsTransientError(err) {
				c.logger.Warn("download attempt failed, retrying", "url", url, "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := utils.CheckStatus(resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
