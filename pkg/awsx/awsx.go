// Package awsx builds the shared aws.Config used by every AWS-backed client.
package awsx

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/notewellhq/notewell-backend/pkg/config"
)

// NewConfig resolves an aws.Config from the process environment. When static
// credentials are configured (local development against emulators) they take
// precedence over the default provider chain.
func NewConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	if cfg.Region == "" {
		return aws.Config{}, fmt.Errorf("aws region is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.StaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading aws config: %w", err)
	}
	return awsCfg, nil
}

// Endpoint returns a BaseEndpoint override pointer, or nil when none is
// configured and the SDK should resolve the regional endpoint itself.
func Endpoint(cfg config.AWSConfig) *string {
	if cfg.Endpoint == "" {
		return nil
	}
	return aws.String(cfg.Endpoint)
}
