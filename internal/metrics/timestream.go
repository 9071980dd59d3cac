package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite"
	"github.com/aws/aws-sdk-go-v2/service/timestreamwrite/types"
)

// Timestream accepts at most 100 records per WriteRecords call
const maxBatchSize = 100

// Sink receives completed invocations
type Sink interface {
	Write(ctx context.Context, inv *Invocation) error
}

// TimestreamWriteAPI is the subset of the Timestream write client used here
type TimestreamWriteAPI interface {
	WriteRecords(ctx context.Context, params *timestreamwrite.WriteRecordsInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.WriteRecordsOutput, error)
	DescribeDatabase(ctx context.Context, params *timestreamwrite.DescribeDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeDatabaseOutput, error)
	CreateDatabase(ctx context.Context, params *timestreamwrite.CreateDatabaseInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateDatabaseOutput, error)
	DescribeTable(ctx context.Context, params *timestreamwrite.DescribeTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *timestreamwrite.CreateTableInput, optFns ...func(*timestreamwrite.Options)) (*timestreamwrite.CreateTableOutput, error)
}

// TimestreamSink writes invocation metrics as Timestream records
type TimestreamSink struct {
	client       TimestreamWriteAPI
	databaseName string
	tableName    string
}

// NewTimestreamSink creates a sink on an existing client
func NewTimestreamSink(client TimestreamWriteAPI, databaseName, tableName string) *TimestreamSink {
	return &TimestreamSink{
		client:       client,
		databaseName: databaseName,
		tableName:    tableName,
	}
}

// Write implements Sink. One record is written for the invocation and one per operation.
func (s *TimestreamSink) Write(ctx context.Context, inv *Invocation) error {
	if inv == nil {
		return errors.New("invocation cannot be nil")
	}

	records := buildRecords(inv)
	for i := 0; i < len(records); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(records) {
			end = len(records)
		}

		_, err := s.client.WriteRecords(ctx, &timestreamwrite.WriteRecordsInput{
			DatabaseName: aws.String(s.databaseName),
			TableName:    aws.String(s.tableName),
			CommonAttributes: &types.Record{
				Dimensions: []types.Dimension{
					{Name: aws.String("function"), Value: aws.String(inv.Function)},
					{Name: aws.String("cold_start"), Value: aws.String(strconv.FormatBool(inv.ColdStart))},
				},
				MeasureValueType: types.MeasureValueTypeDouble,
				TimeUnit:         types.TimeUnitMilliseconds,
			},
			Records: records[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}

func buildRecords(inv *Invocation) []types.Record {
	records := make([]types.Record, 0, len(inv.Operations)+1)

	records = append(records, types.Record{
		Dimensions: []types.Dimension{
			{Name: aws.String("method"), Value: aws.String(orDash(inv.Method))},
			{Name: aws.String("path"), Value: aws.String(orDash(inv.Path))},
			{Name: aws.String("status"), Value: aws.String(strconv.Itoa(inv.StatusCode))},
		},
		MeasureName:  aws.String("invocation_duration_ms"),
		MeasureValue: aws.String(formatMillis(inv.Duration.Seconds() * 1000)),
		Time:         aws.String(strconv.FormatInt(inv.StartTime.UnixMilli(), 10)),
	})

	for _, op := range inv.Operations {
		outcome := "ok"
		if op.Error != nil {
			outcome = "error"
		}
		records = append(records, types.Record{
			Dimensions: []types.Dimension{
				{Name: aws.String("operation_type"), Value: aws.String(string(op.Type))},
				{Name: aws.String("operation"), Value: aws.String(orDash(op.Name))},
				{Name: aws.String("outcome"), Value: aws.String(outcome)},
			},
			MeasureName:  aws.String("operation_duration_ms"),
			MeasureValue: aws.String(formatMillis(op.Duration.Seconds() * 1000)),
			Time:         aws.String(strconv.FormatInt(op.StartTime.UnixMilli(), 10)),
		})
	}

	return records
}

// dimension values must not be empty
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatMillis(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 3, 64)
}

// EnsureStorage creates the metrics database and table when they do not exist
func (s *TimestreamSink) EnsureStorage(ctx context.Context) error {
	if err := s.ensureDatabaseExists(ctx); err != nil {
		return fmt.Errorf("failed to ensure database exists: %w", err)
	}
	if err := s.ensureTableExists(ctx); err != nil {
		return fmt.Errorf("failed to ensure table exists: %w", err)
	}
	return nil
}

func (s *TimestreamSink) ensureDatabaseExists(ctx context.Context) error {
	_, err := s.client.DescribeDatabase(ctx, &timestreamwrite.DescribeDatabaseInput{
		DatabaseName: aws.String(s.databaseName),
	})
	if err == nil {
		return nil
	}

	var notFoundErr *types.ResourceNotFoundException
	if !errors.As(err, &notFoundErr) {
		return fmt.Errorf("error checking database existence: %w", err)
	}

	_, err = s.client.CreateDatabase(ctx, &timestreamwrite.CreateDatabaseInput{
		DatabaseName: aws.String(s.databaseName),
	})
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	return nil
}

func (s *TimestreamSink) ensureTableExists(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &timestreamwrite.DescribeTableInput{
		DatabaseName: aws.String(s.databaseName),
		TableName:    aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}

	var notFoundErr *types.ResourceNotFoundException
	if !errors.As(err, &notFoundErr) {
		return fmt.Errorf("error checking table existence: %w", err)
	}

	_, err = s.client.CreateTable(ctx, &timestreamwrite.CreateTableInput{
		DatabaseName: aws.String(s.databaseName),
		TableName:    aws.String(s.tableName),
		RetentionProperties: &types.RetentionProperties{
			MagneticStoreRetentionPeriodInDays: aws.Int64(30),
			MemoryStoreRetentionPeriodInHours:  aws.Int64(24),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}
