package config

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	godotenv "github.com/joho/godotenv"
)

// Config is read once at startup and never mutated afterwards. Every field can be set
// either as a flag or through the environment variable named in its env tag.
type Config struct {
	DiscordToken  string `name:"discord-token" env:"DISCORD_TOKEN" help:"Bot token." validate:"required"`
	ApplicationID string `name:"application-id" env:"APPLICATION_ID" help:"Application (bot user) id." validate:"required"`

	DictionaryPath    string `name:"dictionary-path" env:"DICTIONARY_PATH" help:"Directory holding the tile images." validate:"required"`
	TileWidth         int    `name:"tile-width" env:"TILE_WIDTH" default:"16" help:"Tile cell width in pixels." validate:"gt=0"`
	TileHeight        int    `name:"tile-height" env:"TILE_HEIGHT" default:"16" help:"Tile cell height in pixels." validate:"gt=0"`
	Workers           int    `name:"workers" env:"WORKERS" default:"0" help:"Build and transform parallelism (0 = number of CPUs)." validate:"gte=0"`
	TileFailurePolicy string `name:"tile-failure-policy" env:"TILE_FAILURE_POLICY" default:"skip" enum:"skip,abort" help:"What to do with a tile that fails to load." validate:"oneof=skip abort"`
	ProgressBar       bool   `name:"progress-bar" env:"PROGRESS_BAR" default:"true" negatable:"" help:"Show a progress bar while the tile library loads."`

	WorkingSize   int `name:"working-size" env:"WORKING_SIZE" default:"100" help:"Side of the square working image." validate:"gt=0,lte=512"`
	JPEGQuality   int `name:"jpeg-quality" env:"JPEG_QUALITY" default:"85" help:"JPEG quality of the uploaded result." validate:"gte=1,lte=100"`
	UploadWorkers int `name:"upload-workers" env:"UPLOAD_WORKERS" default:"4" help:"Concurrent uploads." validate:"gt=0"`

	UploadBackend   string `name:"upload-backend" env:"UPLOAD_BACKEND" default:"imgur" enum:"imgur,s3" help:"Where results are hosted." validate:"oneof=imgur s3"`
	ImgurClientID   string `name:"imgur-client-id" env:"IMGUR_CLIENT_ID" help:"Imgur API client id." validate:"required_if=UploadBackend imgur"`
	AwsBucketName   string `name:"aws-bucket-name" env:"AWS_BUCKET_NAME" help:"Bucket for the s3 backend." validate:"required_if=UploadBackend s3"`
	AwsRegion       string `name:"aws-region" env:"AWS_REGION" help:"Region for the s3 backend."`
	S3PublicBaseURL string `name:"s3-public-base-url" env:"S3_PUBLIC_BASE_URL" help:"Public URL prefix of the bucket; presigned URLs are used when empty." validate:"omitempty,url"`

	AmqpURL      string `name:"amqp-url" env:"AMQP_URL" help:"RabbitMQ URL for job status events (disabled when empty)." validate:"omitempty,url"`
	AmqpExchange string `name:"amqp-exchange" env:"AMQP_EXCHANGE" default:"photomosaic" help:"Exchange for job status events." validate:"required_with=AmqpURL"`

	LogLevel  string `name:"log-level" env:"LOG_LEVEL" default:"info" help:"debug, info, warn or error." validate:"oneof=debug info warn error"`
	LogFormat string `name:"log-format" env:"LOG_FORMAT" default:"json" help:"json or text." validate:"oneof=json text"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the parsed configuration. kong calls it after parsing.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// WorkerCount is the configured parallelism, defaulting to the host's CPU count.
func (c *Config) WorkerCount() int {
	if c.Workers <= 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

func (c *Config) CellSize() image.Point {
	return image.Pt(c.TileWidth, c.TileHeight)
}

// LoadEnvFiles loads the env file matching APP_ENV into the process environment.
// Variables already present in the environment win over the file.
func LoadEnvFiles() {
	wd, err := os.Getwd()
	if err == nil {
		slog.Debug("working dir", "path", wd)
	}

	switch appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv {
	case "docker":
		if err := godotenv.Load(".env.docker"); err == nil {
			slog.Info("loaded env file", "file", ".env.docker")
		} else {
			slog.Info(".env.docker not found, using existing environment")
		}
	case "dev", "":
		if err := godotenv.Load(".env.dev"); err == nil {
			slog.Info("loaded env file", "file", ".env.dev")
		} else if err := godotenv.Load(".env"); err == nil {
			slog.Info("loaded env file", "file", ".env")
		} else {
			slog.Info("no .env.dev or .env found, using system environment variables")
		}
	default:
		fname := ".env." + appEnv
		if err := godotenv.Load(fname); err == nil {
			slog.Info("loaded env file", "file", fname)
		} else if err := godotenv.Load(".env"); err == nil {
			slog.Info("loaded env file", "file", ".env")
		} else {
			slog.Info("no env file found, using system environment variables", "file", fname)
		}
	}
}
