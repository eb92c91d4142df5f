package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Summary is the headline view over all recorded transactions.
	Summary struct {
		TotalExpenses     float64 `json:"totalExpenses"`
		ThisMonth         float64 `json:"thisMonth"`
		LastMonth         float64 `json:"lastMonth"`
		MonthlyChange     float64 `json:"monthlyChange"`
		TotalTransactions int     `json:"totalTransactions"`
	}

	// Pattern is the per-category aggregate over expense-type transactions.
	Pattern struct {
		CategoryID    ID      `json:"categoryId"`
		CategoryName  string  `json:"categoryName"`
		TotalAmount   float64 `json:"totalAmount"`
		Count         int     `json:"count"`
		AverageAmount float64 `json:"averageAmount"`
		Percentage    float64 `json:"percentage"`
	}

	// Trend is one month bucket of a fixed-width series.
	Trend struct {
		Month      string         `json:"month"`
		Total      float64        `json:"total"`
		ByCategory map[ID]float64 `json:"byCategory"`
	}

	// Lending summarizes money lent to and borrowed from people.
	Lending struct {
		TotalLent        float64            `json:"totalLent"`
		TotalBorrowed    float64            `json:"totalBorrowed"`
		NetBalance       float64            `json:"netBalance"`
		LentByPerson     map[string]float64 `json:"lentByPerson"`
		BorrowedByPerson map[string]float64 `json:"borrowedByPerson"`
	}
)

func sameMonth(t time.Time, y int, m time.Month) bool {
	return t.Year() == y && t.Month() == m
}

// Summarize computes the headline totals. Expense-type transactions drive
// the amounts; TotalTransactions counts every record.
func Summarize(txs []Transaction, now time.Time) Summary {
	lastMonthRef := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	var total, thisMonth, lastMonth int64
	for _, t := range txs {
		if t.Type != TypeExpense {
			continue
		}
		total += t.Amount.Cents
		if sameMonth(t.Date, now.Year(), now.Month()) {
			thisMonth += t.Amount.Cents
		}
		if sameMonth(t.Date, lastMonthRef.Year(), lastMonthRef.Month()) {
			lastMonth += t.Amount.Cents
		}
	}

	var change float64
	if lastMonth > 0 {
		change = Percentage(thisMonth-lastMonth, lastMonth)
	}

	return Summary{
		TotalExpenses:     Money{Cents: total}.Float(),
		ThisMonth:         Money{Cents: thisMonth}.Float(),
		LastMonth:         Money{Cents: lastMonth}.Float(),
		MonthlyChange:     change,
		TotalTransactions: len(txs),
	}
}

// ComputePatterns groups expense-type transactions by category. Categories
// with no expenses are dropped; the result is sorted by total descending.
func ComputePatterns(txs []Transaction, cats []Category) []Pattern {
	type bucket struct {
		cents int64
		count int
	}
	buckets := make(map[ID]*bucket)
	var totalCents int64
	for _, t := range txs {
		if t.Type != TypeExpense {
			continue
		}
		b := buckets[t.CategoryID]
		if b == nil {
			b = &bucket{}
			buckets[t.CategoryID] = b
		}
		b.cents += t.Amount.Cents
		b.count++
		totalCents += t.Amount.Cents
	}

	patterns := make([]Pattern, 0, len(buckets))
	for _, c := range cats {
		b := buckets[c.ID]
		if b == nil || b.count == 0 {
			continue
		}
		avg := decimal.New(b.cents, -2).
			Div(decimal.NewFromInt(int64(b.count))).
			Round(2).
			InexactFloat64()
		patterns = append(patterns, Pattern{
			CategoryID:    c.ID,
			CategoryName:  c.Name,
			TotalAmount:   Money{Cents: b.cents}.Float(),
			Count:         b.count,
			AverageAmount: avg,
			Percentage:    Percentage(b.cents, totalCents),
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].TotalAmount > patterns[j].TotalAmount
	})
	return patterns
}

// ComputeTrends returns exactly months buckets, oldest first, each keyed
// by a distinct calendar month ending at now's month.
func ComputeTrends(txs []Transaction, months int, now time.Time) []Trend {
	if months < 1 {
		months = 1
	}
	trends := make([]Trend, 0, months)
	for i := months - 1; i >= 0; i-- {
		ref := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -i, 0)

		var totalCents int64
		byCategory := make(map[ID]int64)
		for _, t := range txs {
			if t.Type != TypeExpense {
				continue
			}
			if !sameMonth(t.Date, ref.Year(), ref.Month()) {
				continue
			}
			totalCents += t.Amount.Cents
			byCategory[t.CategoryID] += t.Amount.Cents
		}

		byCategoryFloat := make(map[ID]float64, len(byCategory))
		for id, cents := range byCategory {
			byCategoryFloat[id] = Money{Cents: cents}.Float()
		}

		trends = append(trends, Trend{
			Month:      ref.Format("Jan 2006"),
			Total:      Money{Cents: totalCents}.Float(),
			ByCategory: byCategoryFloat,
		})
	}
	return trends
}

// ComputeLending accumulates lent/borrowed balances per person.
func ComputeLending(txs []Transaction) Lending {
	var lentCents, borrowedCents int64
	lentBy := make(map[string]int64)
	borrowedBy := make(map[string]int64)
	for _, t := range txs {
		switch t.Type {
		case TypeLent:
			lentCents += t.Amount.Cents
			lentBy[t.PersonName] += t.Amount.Cents
		case TypeBorrowed:
			borrowedCents += t.Amount.Cents
			borrowedBy[t.PersonName] += t.Amount.Cents
		}
	}

	toFloat := func(m map[string]int64) map[string]float64 {
		out := make(map[string]float64, len(m))
		for k, v := range m {
			out[k] = Money{Cents: v}.Float()
		}
		return out
	}

	return Lending{
		TotalLent:        Money{Cents: lentCents}.Float(),
		TotalBorrowed:    Money{Cents: borrowedCents}.Float(),
		NetBalance:       Money{Cents: lentCents - borrowedCents}.Float(),
		LentByPerson:     toFloat(lentBy),
		BorrowedByPerson: toFloat(borrowedBy),
	}
}
