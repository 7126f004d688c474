package aws

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client builds a client whose own retryer is disabled; uploads stream a body that
// cannot be rewound and are retried by the caller instead.
func NewS3Client(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
	opts := append([]func(*s3.Options){func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	}}, optFns...)
	return s3.NewFromConfig(cfg, opts...)
}
