package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mahirjain10/photomosaic-bot/internal/mosaic"
	"github.com/mahirjain10/photomosaic-bot/internal/progress"
	"github.com/mahirjain10/photomosaic-bot/internal/transformation"
	"github.com/mahirjain10/photomosaic-bot/internal/types"
	"github.com/mahirjain10/photomosaic-bot/internal/upload"
	"github.com/mahirjain10/photomosaic-bot/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hostedURL = "https://i.imgur.com/mosaic.jpg"

type editCall struct {
	messageID string
	edit      Edit
}

type fakeResponder struct {
	mu        sync.Mutex
	defers    int
	followups []string
	edits     []editCall
}

func (r *fakeResponder) Defer(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defers++
	return nil
}

func (r *fakeResponder) Followup(_ context.Context, content string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.followups = append(r.followups, content)
	return "status-1", nil
}

func (r *fakeResponder) Edit(_ context.Context, messageID string, edit Edit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, editCall{messageID: messageID, edit: edit})
	return nil
}

type fakeFetcher struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (f *fakeFetcher) Get(context.Context, string) ([]byte, error) {
	f.calls.Add(1)
	return f.data, f.err
}

type fakeUploader struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	steps   []int
	err     error
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, name string, onProgress func(int)) (string, error) {
	u.calls.Add(1)
	if u.started != nil {
		close(u.started)
	}
	if u.release != nil {
		select {
		case <-u.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	for _, p := range u.steps {
		onProgress(p)
	}
	if u.err != nil {
		return "", u.err
	}
	return hostedURL, nil
}

type capturePublisher struct {
	mu       sync.Mutex
	statuses []string
}

func (p *capturePublisher) PublishToChannel(_ context.Context, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, message.(*types.StatusMessage).Data.Status)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sourcePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(12, 6, color.NRGBA{R: 220, G: 20, B: 20, A: 255})))
	return buf.Bytes()
}

func testDictionary() *mosaic.TileDictionary {
	red := color.NRGBA{R: 255, A: 255}
	green := color.NRGBA{G: 255, A: 255}
	return mosaic.NewTileDictionary(image.Pt(2, 2), []mosaic.Tile{
		{Name: "red", Image: imaging.New(2, 2, red), Mean: red},
		{Name: "green", Image: imaging.New(2, 2, green), Mean: green},
	})
}

type fixture struct {
	opts      Options
	responder *fakeResponder
	fetcher   *fakeFetcher
	uploader  *fakeUploader
	publisher *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	transformPool := worker.NewPool("transform", 1, logger)
	uploadPool := worker.NewPool("upload", 1, logger)
	t.Cleanup(transformPool.Close)
	t.Cleanup(uploadPool.Close)

	f := &fixture{
		responder: &fakeResponder{},
		fetcher:   &fakeFetcher{data: sourcePNG(t)},
		uploader:  &fakeUploader{},
		publisher: &capturePublisher{},
	}
	f.opts = Options{
		Dictionary:     testDictionary(),
		Fetcher:        f.fetcher,
		Uploader:       f.uploader,
		TransformPool:  transformPool,
		UploadPool:     uploadPool,
		Publisher:      f.publisher,
		Transform:      transformation.Options{Size: 8, Quality: 80},
		ReportInterval: time.Hour,
	}
	return f
}

func (f *fixture) handle(cmd Command) {
	NewHandler(f.opts, testLogger()).Handle(context.Background(), cmd, f.responder)
}

func imageCommand(url string) Command {
	return Command{Subcommand: "image", Invoker: invoker, URL: url}
}

func TestHandleRejectsWithoutNetwork(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "https://example.com/cat.png", want: TextForeignHost},
		{url: "::not a url::", want: TextInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			f := newFixture(t)
			f.handle(imageCommand(tt.url))

			assert.Equal(t, 1, f.responder.defers)
			assert.Equal(t, []string{tt.want}, f.responder.followups)
			assert.Empty(t, f.responder.edits)
			assert.Zero(t, f.fetcher.calls.Load())
			assert.Zero(t, f.uploader.calls.Load())
			assert.Empty(t, f.publisher.statuses)
		})
	}
}

func TestHandleDownloadFailure(t *testing.T) {
	f := newFixture(t)
	f.fetcher.err = errors.New("connection refused")
	f.handle(imageCommand("https://cdn.discordapp.com/a.png"))

	assert.Equal(t, []string{TextDownloadFailed}, f.responder.followups)
	assert.Empty(t, f.responder.edits)
	assert.Zero(t, f.uploader.calls.Load())
	assert.Equal(t, []string{types.PROCESSING, types.FAILED}, f.publisher.statuses)
}

func TestHandleTransformFailureIsJobScoped(t *testing.T) {
	t.Run("undecodable source", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.data = []byte("not an image")
		f.handle(imageCommand("https://cdn.discordapp.com/a.png"))

		assert.Equal(t, []string{TextInternalError}, f.responder.followups)
		assert.Zero(t, f.uploader.calls.Load())
	})

	t.Run("panic inside the worker", func(t *testing.T) {
		f := newFixture(t)
		f.opts.Dictionary = mosaic.NewTileDictionary(image.Pt(2, 2), []mosaic.Tile{
			{Name: "broken", Mean: color.NRGBA{R: 255, A: 255}},
		})
		f.handle(imageCommand("https://cdn.discordapp.com/a.png"))

		assert.Equal(t, []string{TextInternalError}, f.responder.followups)
		assert.Zero(t, f.uploader.calls.Load())

		// the pool survives the panic
		f.opts.Dictionary = testDictionary()
		f.responder = &fakeResponder{}
		f.handle(imageCommand("https://cdn.discordapp.com/a.png"))
		require.NotEmpty(t, f.responder.edits)
		assert.Equal(t, TextSuccess, f.responder.edits[len(f.responder.edits)-1].edit.Content)
	})
}

func TestHandleEditCountIsTicksPlusOne(t *testing.T) {
	for _, ticks := range []int{0, 1, 4} {
		f := newFixture(t)
		tick := make(chan time.Time)
		f.opts.Tick = tick
		f.uploader.started = make(chan struct{})
		f.uploader.release = make(chan struct{})

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			f.handle(Command{Subcommand: "avatar", Invoker: invoker})
		}()

		<-f.uploader.started
		for range ticks {
			tick <- time.Now()
		}
		close(f.uploader.release)
		<-finished

		edits := f.responder.edits
		require.Len(t, edits, ticks+1, "ticks=%d", ticks)
		for _, e := range edits[:ticks] {
			assert.Equal(t, "status-1", e.messageID)
			assert.Equal(t, progress.StatusText(0), e.edit.Content)
			assert.Nil(t, e.edit.Embed)
		}
		last := edits[ticks]
		assert.Equal(t, "status-1", last.messageID)
		assert.Equal(t, TextSuccess, last.edit.Content)
		require.NotNil(t, last.edit.Embed)
		assert.Equal(t, Embed{Title: hostedURL, URL: hostedURL, ImageURL: hostedURL}, *last.edit.Embed)

		assert.Equal(t, []string{"Uploading image\n░░░░░░░░░░░░░░░ 0%"}, f.responder.followups)
		assert.Equal(t, []string{types.PROCESSING, types.PROCESSED}, f.publisher.statuses)
	}
}

func TestHandleProgressEditsAreMonotonic(t *testing.T) {
	f := newFixture(t)
	f.uploader.steps = []int{10, 50, 90, 100}
	f.handle(imageCommand("https://cdn.discordapp.com/a.png"))

	edits := f.responder.edits
	require.NotEmpty(t, edits)
	assert.Equal(t, TextSuccess, edits[len(edits)-1].edit.Content)

	last := -1
	for _, e := range edits[:len(edits)-1] {
		require.True(t, strings.HasPrefix(e.edit.Content, "Uploading image\n"), e.edit.Content)
		var percent int
		for p := 100; p >= 0; p-- {
			if e.edit.Content == progress.StatusText(p) {
				percent = p
				break
			}
		}
		assert.GreaterOrEqual(t, percent, last)
		last = percent
	}
}

func TestHandleUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = &upload.UploadError{Err: errors.New("imgur said no")}
	f.handle(imageCommand("https://cdn.discordapp.com/a.png"))

	edits := f.responder.edits
	require.NotEmpty(t, edits)
	assert.Equal(t, Edit{Content: TextUploadFailed}, edits[len(edits)-1].edit)
	assert.Equal(t, []string{types.PROCESSING, types.FAILED}, f.publisher.statuses)
}

func TestHandleUploadTimeout(t *testing.T) {
	f := newFixture(t)
	f.opts.UploadTimeout = 20 * time.Millisecond
	f.uploader.release = make(chan struct{})
	f.handle(imageCommand("https://cdn.discordapp.com/a.png"))

	edits := f.responder.edits
	require.NotEmpty(t, edits)
	assert.Equal(t, TextUploadFailed, edits[len(edits)-1].edit.Content)
}

func TestFinalizerIsExactlyOnce(t *testing.T) {
	r := &fakeResponder{}
	final := NewFinalizer(r)
	final.Attach("status-9")

	sent, err := final.Succeed(context.Background(), hostedURL)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = final.Fail(context.Background(), TextUploadFailed)
	require.NoError(t, err)
	assert.False(t, sent)

	require.Len(t, r.edits, 1)
	assert.Equal(t, "status-9", r.edits[0].messageID)
	assert.Empty(t, r.followups)
}
