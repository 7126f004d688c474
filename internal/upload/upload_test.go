package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func imgurServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestImgurUpload(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 64*1024)
	srv := imgurServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Client-ID test-client", r.Header.Get("Authorization"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		got, _ := io.ReadAll(file)
		assert.Equal(t, payload, got)
		assert.Equal(t, "mosaic.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{"status":200,"success":true,"data":{"link":"https://i.imgur.com/abc.jpg"}}`))
	})

	var percents []int
	up := NewImgur("test-client", srv.URL, srv.Client())
	link, err := up.Upload(context.Background(), payload, "mosaic.jpg", func(p int) { percents = append(percents, p) })
	require.NoError(t, err)
	assert.Equal(t, "https://i.imgur.com/abc.jpg", link)

	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		assert.Greater(t, percents[i], percents[i-1])
	}
}

func TestImgurUploadFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{}`},
		{name: "unsuccessful response", status: http.StatusOK, body: `{"status":400,"success":false}`},
		{name: "missing link", status: http.StatusOK, body: `{"status":200,"success":true,"data":{}}`},
		{name: "not json", status: http.StatusOK, body: `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := imgurServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := NewImgur("id", srv.URL, srv.Client()).Upload(context.Background(), []byte("x"), "mosaic.jpg", nil)
			var uploadErr *UploadError
			assert.ErrorAs(t, err, &uploadErr)
		})
	}
}

func TestImgurUploadTimeout(t *testing.T) {
	srv := imgurServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewImgur("id", srv.URL, srv.Client()).Upload(ctx, []byte("x"), "mosaic.jpg", nil)
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type scriptedUploader struct {
	calls atomic.Int32
	errs  []error
}

func (s *scriptedUploader) Upload(ctx context.Context, data []byte, name string, onProgress func(int)) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	if onProgress != nil {
		onProgress(100)
	}
	return "https://example.com/done.jpg", nil
}

func TestWithRetryRecoversFromTransientFailure(t *testing.T) {
	transient := &UploadError{Err: errors.New("connection reset by peer")}
	next := &scriptedUploader{errs: []error{transient, transient}}

	link, err := WithRetry(next, 3, time.Millisecond, testLogger()).Upload(context.Background(), nil, "x.jpg", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/done.jpg", link)
	assert.Equal(t, int32(3), next.calls.Load())
}

func TestWithRetryGivesUp(t *testing.T) {
	transient := &UploadError{Err: errors.New("i/o timeout")}
	next := &scriptedUploader{errs: []error{transient, transient, transient, transient}}

	_, err := WithRetry(next, 2, time.Millisecond, testLogger()).Upload(context.Background(), nil, "x.jpg", nil)
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestWithRetryDoesNotRetryPermanentFailure(t *testing.T) {
	next := &scriptedUploader{errs: []error{&UploadError{Err: errors.New("imgur did not accept the image")}}}

	_, err := WithRetry(next, 5, time.Millisecond, testLogger()).Upload(context.Background(), nil, "x.jpg", nil)
	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, int32(1), next.calls.Load())
}
