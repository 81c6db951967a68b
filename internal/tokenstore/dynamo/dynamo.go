// Package dynamo stores the CRM refresh token as a single DynamoDB item.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/florianilch/leadbridge/internal/tokenstore"
)

// accountKey is the partition key value of the only item in the table.
const accountKey = "default"

// Client is the subset of *dynamodb.Client methods used by Store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// item is the stored document. The table's partition key is "account" (S).
type item struct {
	Account string    `dynamodbav:"account"`
	Token   string    `dynamodbav:"token"`
	Date    time.Time `dynamodbav:"date"`
}

// Store implements tokenstore.TokenStore over a DynamoDB table.
type Store struct {
	client    Client
	tableName string
}

// Compile-time check to ensure Store implements tokenstore.TokenStore
var _ tokenstore.TokenStore = (*Store)(nil)

// New creates a Store for the given table.
func New(client Client, tableName string) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("missing dynamodb client")
	}
	if tableName == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	return &Store{client: client, tableName: tableName}, nil
}

// Read fetches the token item with a consistent read.
func (s *Store) Read(ctx context.Context) (tokenstore.RefreshToken, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"account": &types.AttributeValueMemberS{Value: accountKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return tokenstore.RefreshToken{}, fmt.Errorf("failed to get item from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return tokenstore.RefreshToken{}, tokenstore.ErrNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return tokenstore.RefreshToken{}, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	return tokenstore.RefreshToken{Value: it.Token, IssuedAt: it.Date}, nil
}

// Write replaces the token item. PutItem overwrites unconditionally, which gives
// upsert semantics for the single key.
func (s *Store) Write(ctx context.Context, token tokenstore.RefreshToken) error {
	av, err := attributevalue.MarshalMap(item{
		Account: accountKey,
		Token:   token.Value,
		Date:    token.IssuedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save token to DynamoDB: %w", err)
	}
	return nil
}
