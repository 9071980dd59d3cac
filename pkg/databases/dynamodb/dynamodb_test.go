package dynamodb

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
)

// fakeDynamo is an in-memory stand-in evaluating the key conditions this package issues
type fakeDynamo struct {
	items       []map[string]types.AttributeValue
	queries     []*dynamodb.QueryInput
	updates     []*dynamodb.UpdateItemInput
	created     []*dynamodb.CreateTableInput
	tableExists bool
	queryErr    error
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (f *fakeDynamo) find(pk, sk string) map[string]types.AttributeValue {
	for _, item := range f.items {
		if str(item, "pk") == pk && str(item, "sk") == sk {
			return item
		}
	}
	return nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	pkAttr, skAttr, pkKey, prefixKey := "pk", "sk", ":p", ":tx"
	if in.IndexName != nil {
		pkAttr, skAttr, pkKey, prefixKey = "gsi1pk", "gsi1sk", ":g", ":b"
	}
	pkVal := in.ExpressionAttributeValues[pkKey].(*types.AttributeValueMemberS).Value
	prefix := in.ExpressionAttributeValues[prefixKey].(*types.AttributeValueMemberS).Value

	var out []map[string]types.AttributeValue
	for _, item := range f.items {
		if str(item, pkAttr) == pkVal && strings.HasPrefix(str(item, skAttr), prefix) {
			out = append(out, item)
		}
	}
	return &dynamodb.QueryOutput{Items: out}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	item := f.find(str(in.Key, "pk"), str(in.Key, "sk"))
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.find(str(in.Item, "pk"), str(in.Item, "sk")) != nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.items = append(f.items, in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	item := f.find(str(in.Key, "pk"), str(in.Key, "sk"))
	if item == nil {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	for placeholder, name := range in.ExpressionAttributeNames {
		item[name] = in.ExpressionAttributeValues[":"+strings.TrimPrefix(placeholder, "#")]
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if !f.tableExists {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableName: in.TableName, TableStatus: types.TableStatusActive}}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, in)
	f.tableExists = true
	return &dynamodb.CreateTableOutput{}, nil
}

func putTx(t *testing.T, db *DynamoDBDatabase, userID, id string, at time.Time) *models.Transaction {
	t.Helper()
	tx := models.NewTransaction(userID, id, at)
	tx.AmountNis = 12.5
	tx.Currency = "ILS"
	tx.Category = "Uncategorized"
	tx.Source = "api"
	require.NoError(t, db.PutTransaction(context.Background(), tx))
	return tx
}

func TestListTransactions_ByMonth(t *testing.T) {
	fake := &fakeDynamo{}
	db := NewDynamoDBDatabase(fake, "Ledger")

	march := putTx(t, db, "u1", "a", time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	putTx(t, db, "u1", "b", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	putTx(t, db, "u2", "c", time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC))

	items, err := db.ListTransactions(context.Background(), "u1", "202403", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, march.ID, items[0].ID)
	assert.Equal(t, march.SK, items[0].SK)

	query := fake.queries[len(fake.queries)-1]
	assert.Equal(t, MonthIndexName, aws.ToString(query.IndexName))
	assert.Equal(t, "gsi1pk = :g AND begins_with(gsi1sk, :b)", aws.ToString(query.KeyConditionExpression))
	assert.Equal(t, int32(databases.DefaultTransactionLimit), aws.ToInt32(query.Limit))

	items, err = db.ListTransactions(context.Background(), "u1", "202405", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestListTransactions_ByUserSkipsCustomerMapping(t *testing.T) {
	fake := &fakeDynamo{}
	db := NewDynamoDBDatabase(fake, "Ledger")

	putTx(t, db, "u1", "a", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	putTx(t, db, "u1", "b", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, db.SaveCustomer(context.Background(), "u1", "777"))

	items, err := db.ListTransactions(context.Background(), "u1", "", 50)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	query := fake.queries[0]
	assert.Nil(t, query.IndexName)
	assert.Equal(t, int32(50), aws.ToInt32(query.Limit))
}

func TestListTransactions_Errors(t *testing.T) {
	db := NewDynamoDBDatabase(&fakeDynamo{queryErr: errors.New("throttled")}, "Ledger")

	_, err := db.ListTransactions(context.Background(), "u1", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")

	_, err = db.ListTransactions(context.Background(), "u1", "2024", 0)
	assert.Error(t, err)
}

func TestPutTransaction_RefusesOverwrite(t *testing.T) {
	db := NewDynamoDBDatabase(&fakeDynamo{}, "Ledger")
	at := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	putTx(t, db, "u1", "a", at)
	err := db.PutTransaction(context.Background(), models.NewTransaction("u1", "a", at))
	assert.Error(t, err)

	assert.Error(t, db.PutTransaction(context.Background(), nil))
}

func TestUpdateTransaction(t *testing.T) {
	fake := &fakeDynamo{}
	db := NewDynamoDBDatabase(fake, "Ledger")
	tx := putTx(t, db, "u1", "a", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	err := db.UpdateTransaction(context.Background(), "u1", tx.SK, []models.FieldUpdate{
		{Name: "category", Value: "Groceries"},
		{Name: "merchantClean", Value: "Shufersal"},
	})
	require.NoError(t, err)

	update := fake.updates[0]
	assert.Equal(t, "SET #category = :category, #merchantClean = :merchantClean", aws.ToString(update.UpdateExpression))
	assert.Equal(t, "attribute_exists(sk)", aws.ToString(update.ConditionExpression))

	items, err := db.ListTransactions(context.Background(), "u1", "202403", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Groceries", items[0].Category)
	assert.Equal(t, "Shufersal", items[0].MerchantClean)
	// keys derived from the date are untouched
	assert.Equal(t, tx.GSI1PK, items[0].GSI1PK)
}

func TestUpdateTransaction_NotFound(t *testing.T) {
	db := NewDynamoDBDatabase(&fakeDynamo{}, "Ledger")

	err := db.UpdateTransaction(context.Background(), "u1", "TX#2024-03-15#missing", []models.FieldUpdate{{Name: "category", Value: "x"}})
	assert.ErrorIs(t, err, databases.ErrNotFound)

	err = db.UpdateTransaction(context.Background(), "u1", "TX#2024-03-15#missing", nil)
	assert.Error(t, err)
}

func TestCustomerMapping_Idempotent(t *testing.T) {
	db := NewDynamoDBDatabase(&fakeDynamo{}, "Ledger")
	ctx := context.Background()

	_, found, err := db.LookupCustomer(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.SaveCustomer(ctx, "u1", "123"))
	require.NoError(t, db.SaveCustomer(ctx, "u1", "456"))

	id, found, err := db.LookupCustomer(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "123", id)
}

func TestEnsureTable(t *testing.T) {
	fake := &fakeDynamo{}
	db := NewDynamoDBDatabase(fake, "Ledger")

	created, err := db.EnsureTable(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, fake.created, 1)

	input := fake.created[0]
	assert.Equal(t, "Ledger", aws.ToString(input.TableName))
	require.Len(t, input.GlobalSecondaryIndexes, 3)
	assert.Equal(t, "gsi1", aws.ToString(input.GlobalSecondaryIndexes[0].IndexName))
	assert.Equal(t, types.ProjectionTypeAll, input.GlobalSecondaryIndexes[0].Projection.ProjectionType)
	assert.Equal(t, types.BillingModePayPerRequest, input.BillingMode)

	created, err = db.EnsureTable(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, fake.created, 1)
}
