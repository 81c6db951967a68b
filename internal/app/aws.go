package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// awsClients loads the shared AWS configuration at most once, and only when a
// configured feature needs it.
type awsClients struct {
	load func() (aws.Config, error)
}

func newAWSClients(ctx context.Context) *awsClients {
	return &awsClients{
		load: sync.OnceValues(func() (aws.Config, error) {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
			}
			return cfg, nil
		}),
	}
}

func (c *awsClients) dynamoDB() (*dynamodb.Client, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (c *awsClients) kms() (*kms.Client, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return kms.NewFromConfig(cfg), nil
}

func (c *awsClients) ssm() (*ssm.Client, error) {
	cfg, err := c.load()
	if err != nil {
		return nil, err
	}
	return ssm.NewFromConfig(cfg), nil
}
