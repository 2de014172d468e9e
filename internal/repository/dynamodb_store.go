package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/qcom/banksession/internal/models"
	"github.com/sirupsen/logrus"
)

// DynamoDBAPI is the subset of *dynamodb.Client the store uses.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type credentialItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Token     string `dynamodbav:"Token"`
	UpdatedAt string `dynamodbav:"UpdatedAt"`
	TTL       int64  `dynamodbav:"TTL,omitempty"`
}

// DynamoDBStore persists credentials durably in a single-table layout:
// PK = SESSION#<namespace>, SK = TOKEN#<kind>.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	namespace string
	ttl       time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func NewDynamoDBStore(client DynamoDBAPI, tableName, namespace string, ttl time.Duration, logger *logrus.Logger) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DynamoDBStore) itemKey(kind models.TokenKind) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("SESSION#%s", s.namespace)},
		"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("TOKEN#%s", kind)},
	}
}

func (s *DynamoDBStore) Get(ctx context.Context, kind models.TokenKind) (string, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(kind),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", kind, err)
	}

	if result.Item == nil {
		return "", nil
	}

	var item credentialItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return "", fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}

	// DynamoDB deletes expired items lazily.
	if item.TTL > 0 && s.now().Unix() >= item.TTL {
		return "", nil
	}

	return item.Token, nil
}

func (s *DynamoDBStore) Set(ctx context.Context, kind models.TokenKind, token string) error {
	now := s.now()
	item := credentialItem{
		PK:        fmt.Sprintf("SESSION#%s", s.namespace),
		SK:        fmt.Sprintf("TOKEN#%s", kind),
		Token:     token,
		UpdatedAt: now.Format(time.RFC3339),
	}
	if s.ttl > 0 {
		item.TTL = now.Add(s.ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("Failed to store credential in DynamoDB")
		return fmt.Errorf("failed to store %s: %w", kind, err)
	}

	return nil
}

func (s *DynamoDBStore) Clear(ctx context.Context) error {
	for _, kind := range models.Kinds {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       s.itemKey(kind),
		})
		if err != nil {
			s.logger.WithError(err).WithField("kind", kind).Error("Failed to delete credential from DynamoDB")
			return fmt.Errorf("failed to delete %s: %w", kind, err)
		}
	}
	return nil
}
