package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	configv2 "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// NewSQSClient builds an SQS client for real AWS, or for a LocalStack
// endpoint when one is configured (LocalStack accepts static dummy creds).
func NewSQSClient(ctx context.Context, region, localstackEndpoint string) (*sqs.Client, error) {
	opts := []func(*configv2.LoadOptions) error{
		configv2.WithRegion(region),
	}
	if localstackEndpoint != "" {
		opts = append(opts, configv2.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}

	cfg, err := configv2.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	if localstackEndpoint != "" {
		return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(localstackEndpoint)
		}), nil
	}
	return sqs.NewFromConfig(cfg), nil
}
