package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/uhyunpark/dropmarket/pkg/app/core/metrics"
)

// Stat is a mean with its sample standard deviation
type Stat struct {
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
}

func stat(xs []float64) Stat {
	m, s := metrics.MeanStdev(xs)
	return Stat{Mean: m, Stdev: s}
}

// FeeSummary aggregates every run of one fee rate
type FeeSummary struct {
	FeeRate float64 `json:"fee_rate"`
	Runs    int     `json:"runs"`
	Sales   Stat    `json:"sales"`
	Price   Stat    `json:"weighted_mean_price"` // cents
	Fees    Stat    `json:"total_fee"`           // cents
}

// SummaryByFee groups stored runs by fee rate, lowest rate first
func (db *DB) SummaryByFee() ([]FeeSummary, error) {
	rows, err := db.ListRuns(nil)
	if err != nil {
		return nil, err
	}
	return Summarize(rows), nil
}

// Summarize groups rows by fee rate. Rows must be ordered by fee rate.
func Summarize(rows []Row) []FeeSummary {
	var out []FeeSummary
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].FeeRate == rows[start].FeeRate {
			end++
		}
		group := rows[start:end]
		sales := make([]float64, len(group))
		prices := make([]float64, len(group))
		fees := make([]float64, len(group))
		for i, r := range group {
			sales[i] = float64(r.Sales)
			prices[i] = float64(r.WeightedMean)
			fees[i] = float64(r.Fees)
		}
		out = append(out, FeeSummary{
			FeeRate: rows[start].FeeRate,
			Runs:    len(group),
			Sales:   stat(sales),
			Price:   stat(prices),
			Fees:    stat(fees),
		})
		start = end
	}
	return out
}

var csvHeader = []string{
	"fee_rate", "runs",
	"sales_mean", "sales_stdev",
	"price_mean", "price_stdev",
	"total_fee_mean", "total_fee_stdev",
}

// WriteCSV writes one line per fee rate. Prices and fees are in dollars.
func WriteCSV(w io.Writer, summary []FeeSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	for _, s := range summary {
		rec := []string{
			strconv.FormatFloat(s.FeeRate, 'f', -1, 64),
			strconv.Itoa(s.Runs),
			f(s.Sales.Mean), f(s.Sales.Stdev),
			f(s.Price.Mean / 100), f(s.Price.Stdev / 100),
			f(s.Fees.Mean / 100), f(s.Fees.Stdev / 100),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write fee %v: %w", s.FeeRate, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
