package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// secondaryIndexes lists the table's GSIs; only gsi1 is queried today
var secondaryIndexes = []struct {
	name       string
	projection types.ProjectionType
}{
	{name: "gsi1", projection: types.ProjectionTypeAll},
	{name: "gsi2", projection: types.ProjectionTypeKeysOnly},
	{name: "gsi3", projection: types.ProjectionTypeKeysOnly},
}

// TableExists reports whether the configured table is present
func (db *DynamoDBDatabase) TableExists(ctx context.Context) (bool, error) {
	_, err := db.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(db.tableName),
	})
	if err != nil {
		var notFoundErr *types.ResourceNotFoundException
		if errors.As(err, &notFoundErr) {
			return false, nil
		}
		return false, fmt.Errorf("error checking table: %w", err)
	}
	return true, nil
}

// EnsureTable creates the ledger table with its secondary indexes when it does not exist
// and waits up to maxWait for it to become active.
func (db *DynamoDBDatabase) EnsureTable(ctx context.Context, maxWait time.Duration) (bool, error) {
	exists, err := db.TableExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = db.client.CreateTable(ctx, createTableInput(db.tableName))
	if err != nil {
		var alreadyExistsErr *types.ResourceInUseException
		if errors.As(err, &alreadyExistsErr) {
			// Created concurrently, which is fine
			return false, nil
		}
		return false, fmt.Errorf("failed to create table: %w", err)
	}

	if maxWait > 0 {
		waiter := dynamodb.NewTableExistsWaiter(db.client)
		err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(db.tableName),
		}, maxWait)
		if err != nil {
			return true, fmt.Errorf("failed to wait for table creation: %w", err)
		}
	}

	return true, nil
}

func createTableInput(tableName string) *dynamodb.CreateTableInput {
	attributes := []types.AttributeDefinition{
		{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
		{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
	}

	indexes := make([]types.GlobalSecondaryIndex, 0, len(secondaryIndexes))
	for _, index := range secondaryIndexes {
		partitionKey := index.name + "pk"
		sortKey := index.name + "sk"
		attributes = append(attributes,
			types.AttributeDefinition{AttributeName: aws.String(partitionKey), AttributeType: types.ScalarAttributeTypeS},
			types.AttributeDefinition{AttributeName: aws.String(sortKey), AttributeType: types.ScalarAttributeTypeS},
		)
		indexes = append(indexes, types.GlobalSecondaryIndex{
			IndexName: aws.String(index.name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(partitionKey), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange},
			},
			Projection: &types.Projection{ProjectionType: index.projection},
		})
	}

	return &dynamodb.CreateTableInput{
		TableName:            aws.String(tableName),
		AttributeDefinitions: attributes,
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: indexes,
		BillingMode:            types.BillingModePayPerRequest,
	}
}
