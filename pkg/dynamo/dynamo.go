// Package dynamo wraps the DynamoDB SDK client behind the narrow interface the
// note repositories consume.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/notewellhq/notewell-backend/pkg/config"
)

// API is the slice of the DynamoDB client the repositories depend on.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// New builds a DynamoDB client, honouring a local endpoint override when one
// is configured.
func New(awsCfg aws.Config, endpoint *string) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// Pinger reports whether the notes table is reachable. Used by readiness
// probes.
type Pinger struct {
	client API
	table  string
}

func NewPinger(client API, cfg config.NoteStoreConfig) (*Pinger, error) {
	if client == nil {
		return nil, fmt.Errorf("dynamo client is required")
	}
	if cfg.Table == "" {
		return nil, fmt.Errorf("notes table name is required")
	}
	return &Pinger{client: client, table: cfg.Table}, nil
}

func (p *Pinger) Ping(ctx context.Context) error {
	_, err := p.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(p.table),
	})
	if err != nil {
		return fmt.Errorf("describing table %s: %w", p.table, err)
	}
	return nil
}
