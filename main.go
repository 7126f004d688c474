package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/mahirjain10/photomosaic-bot/config"
	"github.com/mahirjain10/photomosaic-bot/internal/aws"
	"github.com/mahirjain10/photomosaic-bot/internal/bootstrap"
	"github.com/mahirjain10/photomosaic-bot/internal/discord"
	"github.com/mahirjain10/photomosaic-bot/internal/fetch"
	"github.com/mahirjain10/photomosaic-bot/internal/handlers"
	"github.com/mahirjain10/photomosaic-bot/internal/logger"
	"github.com/mahirjain10/photomosaic-bot/internal/mosaic"
	"github.com/mahirjain10/photomosaic-bot/internal/queue"
	"github.com/mahirjain10/photomosaic-bot/internal/transformation"
	"github.com/mahirjain10/photomosaic-bot/internal/upload"
	"github.com/mahirjain10/photomosaic-bot/internal/worker"
)

const (
	fetchAttempts  = 3
	fetchBackoff   = 250 * time.Millisecond
	uploadAttempts = 3
	uploadBackoff  = 500 * time.Millisecond
)

// Surface is the chat connection commands arrive on.
type Surface interface {
	Open() error
	Close() error
}

// SurfaceFactory connects handler to a chat surface.
type SurfaceFactory func(cfg *config.Config, handler discord.CommandHandler, logger *slog.Logger) (Surface, error)

type App struct {
	config        *config.Config
	logger        *slog.Logger
	dictionary    *mosaic.TileDictionary
	transformPool *worker.Pool
	uploadPool    *worker.Pool
	publisher     queue.StatusPublisher
	surface       Surface
}

// NewApp builds the tile library and wires every dependency. The surface is created
// only once the library has loaded.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, newSurface SurfaceFactory) (*App, error) {
	// Build the tile library; without it there is nothing to serve
	var progressOut io.Writer
	if cfg.ProgressBar {
		progressOut = os.Stderr
	}
	started := time.Now()
	dictionary, stats, err := bootstrap.Build(ctx, bootstrap.Options{
		Path:     cfg.DictionaryPath,
		CellSize: cfg.CellSize(),
		Workers:  cfg.WorkerCount(),
		Policy:   bootstrap.FailurePolicy(cfg.TileFailurePolicy),
		Progress: progressOut,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build tile library: %w", err)
	}
	logger.Info("library successfully loaded",
		"tiles", stats.Loaded,
		"dropped", stats.Dropped,
		"took", time.Since(started))

	uploader, err := newUploader(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		config:        cfg,
		logger:        logger,
		dictionary:    dictionary,
		transformPool: worker.NewPool("transform", cfg.WorkerCount(), logger),
		uploadPool:    worker.NewPool("upload", cfg.UploadWorkers, logger),
		publisher:     publisher,
	}

	handler := handlers.NewHandler(handlers.Options{
		Dictionary:    dictionary,
		Fetcher:       fetch.NewClient(nil, fetchAttempts, fetchBackoff, logger),
		Uploader:      uploader,
		TransformPool: app.transformPool,
		UploadPool:    app.uploadPool,
		Publisher:     publisher,
		Transform: transformation.Options{
			Size:    cfg.WorkingSize,
			Quality: cfg.JPEGQuality,
		},
		UploadTimeout: upload.DefaultTimeout,
	}, logger)

	surface, err := newSurface(cfg, handler, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to create chat surface: %w", err)
	}
	app.surface = surface
	return app, nil
}

func newUploader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (upload.Uploader, error) {
	var backend upload.Uploader
	switch cfg.UploadBackend {
	case "s3":
		awsConfig, err := config.InitializeAws(ctx, cfg.AwsRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AWS config: %w", err)
		}
		backend = aws.NewS3Service(aws.NewS3Client(awsConfig), cfg.AwsBucketName, cfg.S3PublicBaseURL, logger)
	default:
		backend = upload.NewImgur(cfg.ImgurClientID, upload.ImgurEndpoint, nil)
	}
	logger.Info("upload backend ready", "backend", cfg.UploadBackend)
	return upload.WithRetry(backend, uploadAttempts, uploadBackoff, logger), nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (queue.StatusPublisher, error) {
	if cfg.AmqpURL == "" {
		return queue.Nop{}, nil
	}
	publisher, err := queue.NewRabbitMqService(cfg.AmqpURL, cfg.AmqpExchange, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return publisher, nil
}

func newDiscordSurface(cfg *config.Config, handler discord.CommandHandler, logger *slog.Logger) (Surface, error) {
	bot, err := discord.NewBot(cfg.DiscordToken, cfg.ApplicationID, handler, logger)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

// Run opens the surface and serves until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if err := a.surface.Open(); err != nil {
		return err
	}
	a.logger.Info("serving commands")
	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

// Close gracefully shuts down the application
func (a *App) Close() {
	if a.surface != nil {
		if err := a.surface.Close(); err != nil {
			a.logger.Error("error closing chat surface", "error", err)
		}
	}
	a.transformPool.Close()
	a.uploadPool.Close()
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("error closing status publisher", "error", err)
	}
}

func main() {
	config.LoadEnvFiles()

	var cfg config.Config
	kong.Parse(&cfg,
		kong.Name("photomosaic-bot"),
		kong.Description("Chat bot that rebuilds images out of a tile library."),
		kong.UsageOnError(),
	)
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize application
	app, err := NewApp(ctx, &cfg, log, newDiscordSurface)
	if err != nil {
		log.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Error("failed to start application", "error", err)
		stop()
		app.Close()
		os.Exit(1)
	}
}
