package aws

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mahirjain10/photomosaic-bot/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.fail {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.objects[r.URL.Path] = data
	b.mu.Unlock()
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestService(t *testing.T, bucket *fakeBucket, publicBaseURL string) *S3Service {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	cfg := aws.Config{
		Region: "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{AccessKeyID: "key", SecretAccessKey: "secret"}, nil
		}),
		HTTPClient: srv.Client(),
	}
	client := NewS3Client(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(srv.URL)
		o.UsePathStyle = true
	})
	return NewS3Service(client, "results", publicBaseURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestS3UploadPublicURL(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}}
	svc := newTestService(t, bucket, "https://images.example.com/")

	payload := bytes.Repeat([]byte{7}, 10_000)
	var last int
	url, err := svc.Upload(context.Background(), payload, "job-1.jpg", func(p int) { last = p })
	require.NoError(t, err)

	assert.Equal(t, "https://images.example.com/mosaics/job-1.jpg", url)
	assert.Equal(t, 100, last)
	assert.Equal(t, payload, bucket.objects["/results/mosaics/job-1.jpg"])
}

func TestS3UploadPresignedURL(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{}}
	svc := newTestService(t, bucket, "")

	url, err := svc.Upload(context.Background(), []byte("jpeg"), "job-2.jpg", nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(url, "/results/mosaics/job-2.jpg"), url)
	assert.Contains(t, url, "X-Amz-Signature=")
}

func TestS3UploadFailure(t *testing.T) {
	svc := newTestService(t, &fakeBucket{fail: true}, "")

	_, err := svc.Upload(context.Background(), []byte("jpeg"), "job-3.jpg", nil)
	var uploadErr *upload.UploadError
	assert.ErrorAs(t, err, &uploadErr)
}
