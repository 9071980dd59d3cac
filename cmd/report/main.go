package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pedro-hbl/ledger-lambdas/internal/bootstrap"
	"github.com/pedro-hbl/ledger-lambdas/internal/config"
	"github.com/pedro-hbl/ledger-lambdas/internal/logger"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases"
	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/dynamodb"
)

// Command line flags
var (
	userID    = flag.String("user", "", "User id (the sub claim) whose transactions to report")
	month     = flag.String("month", "", "Month to report, YYYY-MM or YYYYMM (defaults to the current month)")
	chartPath = flag.String("chart", "", "Write a PNG bar chart of spending per category to this path")
	limit     = flag.Int("limit", databases.DefaultTransactionLimit, "Maximum number of transactions to load")
)

func main() {
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "A user is required. Use --user to specify the user id.")
		os.Exit(2)
	}

	yyyymm := strings.Replace(*month, "-", "", 1)
	if yyyymm == "" {
		yyyymm = time.Now().UTC().Format("200601")
	}
	if _, err := time.Parse("200601", yyyymm); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid month %q. Use YYYY-MM.\n", *month)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.LogLevel).Named("report")
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	awsCfg, err := config.LoadAWS(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to load AWS configuration", zap.Error(err))
	}
	store := dynamodb.NewDynamoDBDatabase(bootstrap.DynamoDBClient(awsCfg, cfg), cfg.TableName)

	items, err := store.ListTransactions(ctx, *userID, yyyymm, *limit)
	if err != nil {
		log.Fatal("Failed to load transactions", zap.String("userId", *userID), zap.Error(err))
	}

	report := buildReport(yyyymm[:4]+"-"+yyyymm[4:], items)
	fmt.Printf("%d transactions for %s in %s\n\n", len(report.Transactions), *userID, report.Month)
	writeTransactions(os.Stdout, report)
	fmt.Println()
	writeCategories(os.Stdout, report)

	if *chartPath == "" {
		return
	}

	f, err := os.Create(*chartPath)
	if err != nil {
		log.Fatal("Failed to create chart file", zap.Error(err))
	}
	defer f.Close()

	if err := writeChart(f, report); err != nil {
		log.Error("Failed to write chart", zap.Error(err))
		return
	}
	fmt.Printf("\nChart saved to: %s\n", *chartPath)
}
