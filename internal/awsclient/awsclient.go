package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/mtanda/cloud-instance-metrics/internal/model"
)

// Resolve loads an aws.Config for the region. Explicit credentials are
// installed as a static provider and are never replaced by the default chain;
// otherwise credential discovery is left to the environment. Nothing is sent
// to AWS here, bad credentials surface on the first API call.
func Resolve(ctx context.Context, cc model.ClientConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cc.Region),
	}
	switch c := cc.Credentials().(type) {
	case model.ExplicitCredentials:
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		))
	case model.AmbientCredentials:
		// default chain
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func NewCloudWatch(ctx context.Context, cc model.ClientConfig) (*cloudwatch.Client, error) {
	awsCfg, err := Resolve(ctx, cc)
	if err != nil {
		return nil, err
	}
	return cloudwatch.NewFromConfig(awsCfg), nil
}

func NewEC2(ctx context.Context, cc model.ClientConfig) (*ec2.Client, error) {
	awsCfg, err := Resolve(ctx, cc)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(awsCfg), nil
}

func NewRDS(ctx context.Context, cc model.ClientConfig) (*rds.Client, error) {
	awsCfg, err := Resolve(ctx, cc)
	if err != nil {
		return nil, err
	}
	return rds.NewFromConfig(awsCfg), nil
}
