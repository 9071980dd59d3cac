package models

import (
	"fmt"
	"time"
)

const (
	// TransactionSortPrefix prefixes the sort key of every transaction item
	TransactionSortPrefix = "TX#"

	// CustomerMappingSortKey is the sort key of the aggregator customer mapping item
	CustomerMappingSortKey = "CUSTOMER#SALTEDGE"

	// DateLayout is the ISO-8601 layout used for the date attribute (millisecond precision, UTC)
	DateLayout = "2006-01-02T15:04:05.000Z"

	// MonthBucketLayout formats the month bucket embedded in gsi1pk
	MonthBucketLayout = "200601"
)

// Transaction is a ledger entry stored in the single DynamoDB table.
// Keys are derived from the user id and the date at creation time and never rewritten.
type Transaction struct {
	// PK is USER#<userId>
	PK string `json:"pk" dynamodbav:"pk"`

	// SK is TX#<yyyy-mm-dd>#<id>
	SK string `json:"sk" dynamodbav:"sk"`

	ID string `json:"id" dynamodbav:"id"`

	// GSI1PK is USER#<userId>#MONTH#<yyyymm>
	GSI1PK string `json:"gsi1pk" dynamodbav:"gsi1pk"`

	// GSI1SK is <iso-datetime>#<id>
	GSI1SK string `json:"gsi1sk" dynamodbav:"gsi1sk"`

	AmountNis     float64 `json:"amountNis" dynamodbav:"amountNis"`
	Currency      string  `json:"currency" dynamodbav:"currency"`
	Date          string  `json:"date" dynamodbav:"date"`
	MerchantRaw   string  `json:"merchantRaw" dynamodbav:"merchantRaw"`
	MerchantClean string  `json:"merchantClean" dynamodbav:"merchantClean"`
	Category      string  `json:"category" dynamodbav:"category"`
	Institution   string  `json:"institution" dynamodbav:"institution"`
	AccountID     string  `json:"accountId" dynamodbav:"accountId"`
	IsIncome      bool    `json:"isIncome" dynamodbav:"isIncome"`
	Source        string  `json:"source" dynamodbav:"source"`
}

// NewTransaction builds a transaction with all composite keys derived from userID, id and at
func NewTransaction(userID, id string, at time.Time) *Transaction {
	at = at.UTC()
	date := at.Format(DateLayout)
	return &Transaction{
		PK:     UserPartitionKey(userID),
		SK:     fmt.Sprintf("%s%s#%s", TransactionSortPrefix, at.Format("2006-01-02"), id),
		ID:     id,
		GSI1PK: MonthPartitionKey(userID, MonthBucket(at)),
		GSI1SK: fmt.Sprintf("%s#%s", date, id),
		Date:   date,
	}
}

// UserPartitionKey returns the primary partition key of a user
func UserPartitionKey(userID string) string {
	return "USER#" + userID
}

// MonthPartitionKey returns the gsi1 partition key for a user and a yyyymm bucket
func MonthPartitionKey(userID, yyyymm string) string {
	return fmt.Sprintf("USER#%s#MONTH#%s", userID, yyyymm)
}

// MonthBucket returns the yyyymm bucket a point in time belongs to (UTC)
func MonthBucket(t time.Time) string {
	return t.UTC().Format(MonthBucketLayout)
}

// CustomerMapping associates an internal user with the aggregator's customer id
type CustomerMapping struct {
	PK         string    `json:"pk" dynamodbav:"pk"`
	SK         string    `json:"sk" dynamodbav:"sk"`
	Identifier string    `json:"identifier" dynamodbav:"identifier"`
	CustomerID string    `json:"customerId" dynamodbav:"customerId"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"createdAt"`
}

// FieldUpdate is a single attribute assignment of a partial update
type FieldUpdate struct {
	Name  string
	Value interface{}
}
