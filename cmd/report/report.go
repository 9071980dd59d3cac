package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"

	"github.com/pedro-hbl/ledger-lambdas/pkg/databases/models"
)

var errNothingToChart = errors.New("no spending to chart")

// categoryTotal is the spending of one category over the month
type categoryTotal struct {
	Category string
	Count    int
	Amount   decimal.Decimal
}

// monthReport summarizes one user's month
type monthReport struct {
	Month        string
	Transactions []models.Transaction
	Categories   []categoryTotal
	Spent        decimal.Decimal
	Income       decimal.Decimal
}

func buildReport(month string, items []models.Transaction) monthReport {
	report := monthReport{
		Month:        month,
		Transactions: append([]models.Transaction(nil), items...),
	}
	sort.SliceStable(report.Transactions, func(i, j int) bool {
		return report.Transactions[i].Date < report.Transactions[j].Date
	})

	byCategory := make(map[string]*categoryTotal)
	for _, tx := range report.Transactions {
		amount := decimal.NewFromFloat(tx.AmountNis).Abs()
		if tx.IsIncome {
			report.Income = report.Income.Add(amount)
			continue
		}
		report.Spent = report.Spent.Add(amount)

		total, ok := byCategory[tx.Category]
		if !ok {
			total = &categoryTotal{Category: tx.Category}
			byCategory[tx.Category] = total
		}
		total.Count++
		total.Amount = total.Amount.Add(amount)
	}

	for _, total := range byCategory {
		report.Categories = append(report.Categories, *total)
	}
	// Largest first, ties by name
	sort.Slice(report.Categories, func(i, j int) bool {
		a, b := report.Categories[i], report.Categories[j]
		if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
			return cmp > 0
		}
		return a.Category < b.Category
	})

	return report
}

func writeTransactions(w io.Writer, r monthReport) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Date", "Merchant", "Category", "Amount", "Currency", "Source"})
	table.SetAutoWrapText(false)

	for _, tx := range r.Transactions {
		amount := decimal.NewFromFloat(tx.AmountNis).StringFixed(2)
		if tx.IsIncome {
			amount = "+" + amount
		}
		table.Append([]string{tx.Date, tx.MerchantClean, tx.Category, amount, tx.Currency, tx.Source})
	}

	table.SetFooter([]string{"", "", "Spent", r.Spent.StringFixed(2), "Income", r.Income.StringFixed(2)})
	table.Render()
}

func writeCategories(w io.Writer, r monthReport) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Category", "Transactions", "Amount", "Share"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, total := range r.Categories {
		share := "0.0%"
		if r.Spent.IsPositive() {
			share = total.Amount.Div(r.Spent).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
		}
		table.Append([]string{total.Category, fmt.Sprint(total.Count), total.Amount.StringFixed(2), share})
	}

	table.Render()
}

// writeChart renders spending per category as a PNG bar chart
func writeChart(w io.Writer, r monthReport) error {
	var bars []chart.Value
	top := 0.0
	for _, total := range r.Categories {
		value := total.Amount.InexactFloat64()
		if value <= 0 {
			continue
		}
		if value > top {
			top = value
		}
		bars = append(bars, chart.Value{Label: total.Category, Value: value})
	}
	if len(bars) == 0 {
		return errNothingToChart
	}

	barChart := chart.BarChart{
		Title: fmt.Sprintf("Spending by category, %s", r.Month),
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:    800,
		Height:   400,
		BarWidth: 60,
		Bars:     bars,
	}
	barChart.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: top * 1.1}
	barChart.YAxis.ValueFormatter = func(v interface{}) string {
		if vf, isFloat := v.(float64); isFloat {
			return fmt.Sprintf("%.0f", vf)
		}
		return ""
	}

	if err := barChart.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}
