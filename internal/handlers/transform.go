// Package handlers turns transform commands into mosaic jobs: validate, download,
// transform, upload with live progress and report the result.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mahirjain10/photomosaic-bot/internal/fetch"
	"github.com/mahirjain10/photomosaic-bot/internal/mosaic"
	"github.com/mahirjain10/photomosaic-bot/internal/progress"
	"github.com/mahirjain10/photomosaic-bot/internal/queue"
	"github.com/mahirjain10/photomosaic-bot/internal/transformation"
	"github.com/mahirjain10/photomosaic-bot/internal/types"
	"github.com/mahirjain10/photomosaic-bot/internal/upload"
	"github.com/mahirjain10/photomosaic-bot/internal/worker"
)

type Options struct {
	Dictionary    *mosaic.TileDictionary
	Fetcher       fetch.Fetcher
	Uploader      upload.Uploader
	TransformPool *worker.Pool
	UploadPool    *worker.Pool
	// Publisher receives job status events; nil disables them.
	Publisher queue.StatusPublisher
	Transform transformation.Options
	// UploadTimeout bounds the whole upload, retries included.
	UploadTimeout time.Duration
	// ReportInterval is the fallback tick of the progress reporter.
	ReportInterval time.Duration
	// Tick replaces the reporter's ticker when set.
	Tick <-chan time.Time
}

type Handler struct {
	opts   Options
	logger *slog.Logger
}

func NewHandler(opts Options, logger *slog.Logger) *Handler {
	if opts.Publisher == nil {
		opts.Publisher = queue.Nop{}
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = upload.DefaultTimeout
	}
	if opts.Transform == (transformation.Options{}) {
		opts.Transform = transformation.DefaultOptions()
	}
	return &Handler{opts: opts, logger: logger}
}

// Handle runs one command to completion. Every accepted command ends with exactly one
// terminal message; no error escapes to the caller.
func (h *Handler) Handle(ctx context.Context, cmd Command, responder Responder) {
	logger := h.logger.With("subcommand", cmd.Subcommand, "user_id", cmd.Invoker.ID)

	if err := responder.Defer(ctx); err != nil {
		logger.Error("failed to acknowledge interaction", "error", err)
		return
	}
	final := NewFinalizer(responder)

	req, err := Route(cmd)
	if err != nil {
		var validationErr *ValidationError
		text := TextInternalError
		if errors.As(err, &validationErr) {
			text = validationErr.Message
		}
		logger.Info("rejected command", "error", err)
		h.finish(ctx, final, logger, false, text)
		return
	}
	req.JobID = uuid.NewString()
	logger = logger.With("job_id", req.JobID, "variant", req.Variant)
	logger.Info("accepted job", "image_url", req.ImageURL)
	queue.PublishStatus(ctx, h.opts.Publisher, logger, req, types.PROCESSING, "", "")

	url, text := h.run(ctx, req, final, logger)
	if text != "" {
		queue.PublishStatus(ctx, h.opts.Publisher, logger, req, types.FAILED, "", text)
		h.finish(ctx, final, logger, false, text)
		return
	}
	queue.PublishStatus(ctx, h.opts.Publisher, logger, req, types.PROCESSED, url, "")
	h.finish(ctx, final, logger, true, url)
	logger.Info("job completed", "public_url", url)
}

// run executes the job and returns the hosted URL, or the text to show on failure.
func (h *Handler) run(ctx context.Context, req types.InteractionRequest, final *Finalizer, logger *slog.Logger) (string, string) {
	src, err := h.opts.Fetcher.Get(ctx, req.ImageURL)
	if err != nil {
		logger.Warn("download failed", "error", err)
		return "", TextDownloadFailed
	}

	started := time.Now()
	encoded, err := worker.Do(ctx, h.opts.TransformPool, func() ([]byte, error) {
		return transformation.Transform(src, h.opts.Dictionary, h.opts.Transform)
	})
	if err != nil {
		logger.Error("transform failed", "error", err)
		return "", TextInternalError
	}
	logger.Debug("transformed image", "bytes", len(encoded), "took", time.Since(started))

	statusID, err := final.responder.Followup(ctx, progress.StatusText(0))
	if err != nil {
		logger.Error("failed to post status message", "error", err)
		return "", TextInternalError
	}
	final.Attach(statusID)

	url, err := h.upload(ctx, encoded, req.JobID+".jpg", final.responder, statusID, logger)
	if err != nil {
		logger.Warn("upload failed", "error", err)
		return "", TextUploadFailed
	}
	return url, ""
}

// upload runs the blocking upload on the upload pool while a reporter edits statusID.
// It returns only after both have finished.
func (h *Handler) upload(ctx context.Context, data []byte, name string, responder Responder, statusID string, logger *slog.Logger) (string, error) {
	state := progress.NewUploadProgress()
	done := make(chan struct{})
	reporter := &progress.Reporter{
		Progress: state,
		Edit: func(ctx context.Context, content string) error {
			return responder.Edit(ctx, statusID, Edit{Content: content})
		},
		Interval: h.opts.ReportInterval,
		Tick:     h.opts.Tick,
		Logger:   logger,
	}
	edits := make(chan int, 1)
	go func() {
		edits <- reporter.Run(ctx, done)
	}()

	uploadCtx, cancel := context.WithTimeout(ctx, h.opts.UploadTimeout)
	defer cancel()
	url, err := worker.Do(uploadCtx, h.opts.UploadPool, func() (string, error) {
		return h.opts.Uploader.Upload(uploadCtx, data, name, state.Set)
	})
	close(done)
	logger.Debug("upload finished", "status_edits", <-edits, "percent", state.Percent())

	if err != nil {
		var uploadErr *upload.UploadError
		if !errors.As(err, &uploadErr) {
			err = &upload.UploadError{Err: err}
		}
		return "", err
	}
	return url, nil
}

func (h *Handler) finish(ctx context.Context, final *Finalizer, logger *slog.Logger, success bool, value string) {
	var err error
	if success {
		_, err = final.Succeed(ctx, value)
	} else {
		_, err = final.Fail(ctx, value)
	}
	if err != nil {
		logger.Error("failed to send result", "error", err)
	}
}
