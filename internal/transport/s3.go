package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config locates the S3 service used for s3:// file URLs.
type S3Config struct {
	Region       string
	LocalProfile string
	Endpoint     string
	PathStyle    bool
}

// NewS3Client loads the default AWS configuration and builds an S3 client.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var cfgOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		cfgOpts = append(cfgOpts, config.WithRegion(cfg.Region))
	}
	if cfg.LocalProfile != "" {
		cfgOpts = append(cfgOpts, config.WithSharedConfigProfile(cfg.LocalProfile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &cfg.Endpoint
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}
