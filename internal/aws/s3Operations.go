package aws

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mahirjain10/photomosaic-bot/internal/progress"
	"github.com/mahirjain10/photomosaic-bot/internal/upload"
)

const (
	keyPrefix = "mosaics"
	// longest expiry SigV4 allows
	presignExpiry = 7 * 24 * time.Hour
)

// S3Service hosts results in a bucket. It satisfies upload.Uploader.
type S3Service struct {
	client        *s3.Client
	presign       *s3.PresignClient
	bucketName    string
	publicBaseURL string
	logger        *slog.Logger
}

// NewS3Service returns a service uploading to bucketName. When publicBaseURL is set the
// result URL is publicBaseURL/key, otherwise a presigned GET URL.
func NewS3Service(client *s3.Client, bucketName string, publicBaseURL string, logger *slog.Logger) *S3Service {
	return &S3Service{
		client:        client,
		presign:       s3.NewPresignClient(client),
		bucketName:    bucketName,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		logger:        logger,
	}
}

func (service *S3Service) Upload(ctx context.Context, data []byte, name string, onProgress func(percent int)) (string, error) {
	key := path.Join(keyPrefix, name)
	body := progress.NewReader(bytes.NewReader(data), int64(len(data)), onProgress)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(service.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("image/jpeg"),
	}
	// the counting body is not seekable, so the payload is sent unsigned
	_, err := service.client.PutObject(ctx, input, s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware))
	if err != nil {
		return "", &upload.UploadError{Err: fmt.Errorf("couldn't upload object with key: %s, AWS error: %w", key, err)}
	}
	service.logger.Debug("uploaded object", "bucket", service.bucketName, "key", key, "bytes", len(data))

	if service.publicBaseURL != "" {
		return service.publicBaseURL + "/" + key, nil
	}

	req, err := service.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(service.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", &upload.UploadError{Err: fmt.Errorf("failed to presign url: %w", err)}
	}
	return req.URL, nil
}
