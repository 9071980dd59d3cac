package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
)

// MonthIndexName is the secondary index keyed by user and month bucket
const MonthIndexName = "gsi1"

// DynamoDBAPI is the subset of the DynamoDB client used by this package
type DynamoDBAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoDBConfig holds the configuration of the DynamoDB client
type DynamoDBConfig struct {
	TableName string
	// Endpoint overrides the service endpoint (e.g., for local DynamoDB)
	Endpoint string
}

// NewClient creates a DynamoDB client from an AWS configuration
func NewClient(awsCfg aws.Config, cfg DynamoDBConfig) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

// DynamoDBDatabase implements databases.TransactionStore and the aggregator customer store
type DynamoDBDatabase struct {
	client    DynamoDBAPI
	tableName string
	now       func() time.Time
}

// NewDynamoDBDatabase creates a new DynamoDB store on an existing client
func NewDynamoDBDatabase(client DynamoDBAPI, tableName string) *DynamoDBDatabase {
	return &DynamoDBDatabase{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// ListTransactions implements databases.TransactionStore
func (db *DynamoDBDatabase) ListTransactions(ctx context.Context, userID, yyyymm string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = databases.DefaultTransactionLimit
	}

	input := &dynamodb.QueryInput{
		TableName: aws.String(db.tableName),
		Limit:     aws.Int32(int32(limit)),
	}

	if yyyymm != "" {
		if len(yyyymm) != 6 {
			return nil, fmt.Errorf("invalid month bucket %q", yyyymm)
		}
		// gsi1sk starts with the ISO date, so yyyy-mm narrows the range to the bucket
		input.IndexName = aws.String(MonthIndexName)
		input.KeyConditionExpression = aws.String("gsi1pk = :g AND begins_with(gsi1sk, :b)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":g": &types.AttributeValueMemberS{Value: models.MonthPartitionKey(userID, yyyymm)},
			":b": &types.AttributeValueMemberS{Value: yyyymm[:4] + "-" + yyyymm[4:]},
		}
	} else {
		input.KeyConditionExpression = aws.String("pk = :p AND begins_with(sk, :tx)")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":p":  &types.AttributeValueMemberS{Value: models.UserPartitionKey(userID)},
			":tx": &types.AttributeValueMemberS{Value: models.TransactionSortPrefix},
		}
	}

	result, err := db.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("Query operation failed: %w", err)
	}

	transactions := make([]models.Transaction, 0, len(result.Items))
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &transactions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transactions: %w", err)
	}

	return transactions, nil
}

// PutTransaction implements databases.TransactionStore
func (db *DynamoDBDatabase) PutTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	item, err := attributevalue.MarshalMap(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	_, err = db.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(db.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		return fmt.Errorf("PutItem operation failed: %w", err)
	}

	return nil
}

// UpdateTransaction implements databases.TransactionStore
func (db *DynamoDBDatabase) UpdateTransaction(ctx context.Context, userID, sk string, updates []models.FieldUpdate) error {
	if len(updates) == 0 {
		return errors.New("no fields to update")
	}

	names := make(map[string]string, len(updates))
	values := make(map[string]types.AttributeValue, len(updates))
	expression := "SET "
	for i, update := range updates {
		value, err := attributevalue.Marshal(update.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", update.Name, err)
		}
		names["#"+update.Name] = update.Name
		values[":"+update.Name] = value
		if i > 0 {
			expression += ", "
		}
		expression += fmt.Sprintf("#%s = :%s", update.Name, update.Name)
	}

	_, err := db.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(db.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: models.UserPartitionKey(userID)},
			"sk": &types.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression:          aws.String(expression),
		ConditionExpression:       aws.String("attribute_exists(sk)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return databases.ErrNotFound
		}
		return fmt.Errorf("UpdateItem operation failed: %w", err)
	}

	return nil
}

// LookupCustomer returns the stored aggregator customer id of a user
func (db *DynamoDBDatabase) LookupCustomer(ctx context.Context, identifier string) (string, bool, error) {
	result, err := db.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(db.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: models.UserPartitionKey(identifier)},
			"sk": &types.AttributeValueMemberS{Value: models.CustomerMappingSortKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("GetItem operation failed: %w", err)
	}

	if len(result.Item) == 0 {
		return "", false, nil
	}

	var mapping models.CustomerMapping
	if err := attributevalue.UnmarshalMap(result.Item, &mapping); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal customer mapping: %w", err)
	}

	return mapping.CustomerID, mapping.CustomerID != "", nil
}

// SaveCustomer stores the aggregator customer id of a user.
// A concurrent writer that got there first wins; both hold the same id.
func (db *DynamoDBDatabase) SaveCustomer(ctx context.Context, identifier, customerID string) error {
	item, err := attributevalue.MarshalMap(models.CustomerMapping{
		PK:         models.UserPartitionKey(identifier),
		SK:         models.CustomerMappingSortKey,
		Identifier: identifier,
		CustomerID: customerID,
		CreatedAt:  db.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal customer mapping: %w", err)
	}

	_, err = db.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(db.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil
		}
		return fmt.Errorf("PutItem operation failed: %w", err)
	}

	return nil
}
