// Package metrics derives market statistics from the sales ledger.
// All prices are integer cents.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/uhyunpark/dropmarket/pkg/app/core/market"
)

var (
	ErrInvalidCount  = errors.New("number of sales must be positive")
	ErrInvalidPeriod = errors.New("period must be day, week or month")
)

// Period is a look-back window for volume
type Period int

const (
	Day Period = iota
	Week
	Month
)

// Days is the window length
func (p Period) Days() uint64 {
	switch p {
	case Week:
		return 7
	case Month:
		return 30
	default:
		return 1
	}
}

func (p Period) String() string {
	switch p {
	case Day:
		return "day"
	case Week:
		return "week"
	case Month:
		return "month"
	default:
		return "unknown"
	}
}

// ParsePeriod accepts "day", "week" or "month"
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "day":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	}
	return Day, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

func last(sales []market.Sale, n int) []market.Sale {
	if n < len(sales) {
		return sales[len(sales)-n:]
	}
	return sales
}

// MedianPrice returns the median price of the last n sales (mean of the two
// middle prices for an even count, truncated). 0 when there are no sales.
func MedianPrice(sales []market.Sale, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}
	window := last(sales, n)
	if len(window) == 0 {
		return 0, nil
	}
	prices := make([]int64, len(window))
	for i, s := range window {
		prices[i] = s.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid], nil
	}
	return (prices[mid-1] + prices[mid]) / 2, nil
}

// WeightedMeanPrice returns the quantity-weighted mean price of the last n
// sales, truncated. n <= 0 means every sale.
func WeightedMeanPrice(sales []market.Sale, n int) int64 {
	if n > 0 {
		sales = last(sales, n)
	}
	var qty, value int64
	for _, s := range sales {
		qty += s.Quantity
		value += s.Gross()
	}
	if qty == 0 {
		return 0
	}
	return value / qty
}

// TotalFee sums the fee of every sale in the history
func TotalFee(history map[string][]market.Sale) int64 {
	var total int64
	for _, sales := range history {
		for _, s := range sales {
			total += s.Fee
		}
	}
	return total
}

// SalesVolume returns the units sold within period of the latest sale
// (inclusive of the boundary step)
func SalesVolume(sales []market.Sale, stepsPerDay uint64, period Period) int64 {
	if len(sales) == 0 {
		return 0
	}
	var latest uint64
	for _, s := range sales {
		latest = max(latest, s.Step)
	}
	window := period.Days() * stepsPerDay
	var threshold uint64
	if latest > window {
		threshold = latest - window
	}

	var units int64
	for _, s := range sales {
		if s.Step >= threshold {
			units += s.Quantity
		}
	}
	return units
}

// AllSales flattens the history ordered by step, then sale id
func AllSales(history map[string][]market.Sale) []market.Sale {
	var out []market.Sale
	for _, sales := range history {
		out = append(out, sales...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Candle is one day of trading in an item
type Candle struct {
	Day    uint64 `json:"day"`
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"` // units
	VWAP   int64  `json:"vwap"`
	Sales  int    `json:"sales"`
}

// DailyCandles buckets sales by simulated day. Days without sales are omitted.
func DailyCandles(sales []market.Sale, stepsPerDay uint64) []Candle {
	if stepsPerDay == 0 || len(sales) == 0 {
		return nil
	}
	ordered := append([]market.Sale(nil), sales...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Step != ordered[j].Step {
			return ordered[i].Step < ordered[j].Step
		}
		return ordered[i].ID < ordered[j].ID
	})

	var (
		out   []Candle
		value int64
	)
	for _, s := range ordered {
		day := s.Step / stepsPerDay
		if len(out) == 0 || out[len(out)-1].Day != day {
			out = append(out, Candle{Day: day, Open: s.Price, High: s.Price, Low: s.Price})
			value = 0
		}
		c := &out[len(out)-1]
		c.High = max(c.High, s.Price)
		c.Low = min(c.Low, s.Price)
		c.Close = s.Price
		c.Volume += s.Quantity
		c.Sales++
		value += s.Gross()
		c.VWAP = value / c.Volume
	}
	return out
}

// ItemReport condenses one item's trading over a run
type ItemReport struct {
	Item        string `json:"item"`
	Sales       int    `json:"sales"`
	TradingDays int    `json:"trading_days"`
	Last        Candle `json:"last"`
	WeekVolume  int64  `json:"week_volume"`
	MonthVolume int64  `json:"month_volume"`
}

// ItemReports returns one report per traded item, sorted by item name
func ItemReports(history map[string][]market.Sale, stepsPerDay uint64) []ItemReport {
	out := make([]ItemReport, 0, len(history))
	for item, sales := range history {
		candles := DailyCandles(sales, stepsPerDay)
		if len(candles) == 0 {
			continue
		}
		out = append(out, ItemReport{
			Item:        item,
			Sales:       len(sales),
			TradingDays: len(candles),
			Last:        candles[len(candles)-1],
			WeekVolume:  SalesVolume(sales, stepsPerDay, Week),
			MonthVolume: SalesVolume(sales, stepsPerDay, Month),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// Summary aggregates a set of sales
type Summary struct {
	Sales        int   `json:"sales"`
	Units        int64 `json:"units"`
	Gross        int64 `json:"gross"`
	Fees         int64 `json:"fees"`
	WeightedMean int64 `json:"weighted_mean_price"`
	MinPrice     int64 `json:"min_price"`
	MaxPrice     int64 `json:"max_price"`
}

// Summarize computes a Summary over sales
func Summarize(sales []market.Sale) Summary {
	var s Summary
	for i, sale := range sales {
		s.Sales++
		s.Units += sale.Quantity
		s.Gross += sale.Gross()
		s.Fees += sale.Fee
		if i == 0 || sale.Price < s.MinPrice {
			s.MinPrice = sale.Price
		}
		s.MaxPrice = max(s.MaxPrice, sale.Price)
	}
	if s.Units > 0 {
		s.WeightedMean = s.Gross / s.Units
	}
	return s
}

// MeanStdev returns the mean and sample standard deviation of xs.
// The deviation is 0 for fewer than two values.
func MeanStdev(xs []float64) (mean, stdev float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
