// Package report derives dashboard and report figures from sales and stock.
// Everything here is pure: callers load the rows, these functions only compute.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/pricing"
	"github.com/SamiSolomon/mobile/internal/store"
)

type Period string

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

const (
	AlertOutOfStock = "out_of_stock"
	AlertLowStock   = "low_stock"
	AlertOverdue    = "overdue_payments"
)

func ParsePeriod(raw string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "day", "today":
		return Day, nil
	case "week":
		return Week, nil
	case "month":
		return Month, nil
	case "year":
		return Year, nil
	default:
		return "", store.Invalid("period", "unknown period %q", raw)
	}
}

// Range is inclusive at both ends.
type Range struct {
	Period Period
	From   time.Time
	To     time.Time
}

// RangeFor returns the calendar period containing now, in now's location. Weeks start on Sunday.
func RangeFor(period Period, now time.Time) Range {
	loc := now.Location()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	var from, next time.Time
	switch period {
	case Week:
		from = startOfDay.AddDate(0, 0, -int(startOfDay.Weekday()))
		next = from.AddDate(0, 0, 7)
	case Month:
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		next = from.AddDate(0, 1, 0)
	case Year:
		from = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
		next = from.AddDate(1, 0, 0)
	default:
		period = Day
		from = startOfDay
		next = from.AddDate(0, 0, 1)
	}
	return Range{Period: period, From: from, To: next.Add(-time.Nanosecond)}
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

func (r Range) SaleFilter(customer string) domain.SaleFilter {
	from, to := r.From, r.To
	return domain.SaleFilter{From: &from, To: &to, Customer: customer}
}

func FilterSales(sales []domain.SaleView, filter domain.SaleFilter) []domain.SaleView {
	result := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		if pricing.MatchesSale(sale.Sale, filter) {
			result = append(result, sale)
		}
	}
	return result
}

// Summarize aggregates a set of sales. Profit uses each product's current cost.
func Summarize(sales []domain.SaleView) domain.Metrics {
	var m domain.Metrics
	customers := make(map[string]struct{}, len(sales))
	for _, sale := range sales {
		m.SaleCount++
		m.TotalSalesCents += sale.TotalCents
		if sale.IsCredit {
			m.ReceivablesCents += sale.OutstandingCents()
		}
		customers[strings.ToLower(sale.CustomerLabel())] = struct{}{}
		for _, item := range sale.Items {
			m.ProfitCents += pricing.ItemProfit(item.SaleItem, item.Product)
		}
	}
	m.CustomerCount = len(customers)
	m.MarginPercent = pricing.MarginPercent(m.ProfitCents, m.TotalSalesCents)
	m.AverageSaleCents = AverageSale(m.TotalSalesCents, m.SaleCount)
	return m
}

// AverageSale is zero for an empty period rather than a division by zero.
func AverageSale(totalCents int64, count int) int64 {
	if count == 0 {
		return 0
	}
	return totalCents / int64(count)
}

// StockAlerts emits one message per empty or low product and one aggregate
// message for credit sales that are still owed.
func StockAlerts(products []domain.Product, sales []domain.Sale) []domain.Alert {
	alerts := make([]domain.Alert, 0, 4)
	for _, p := range products {
		switch p.StockStatus() {
		case domain.StockOut:
			alerts = append(alerts, domain.Alert{
				Kind:      AlertOutOfStock,
				ProductID: p.ID,
				Message:   fmt.Sprintf("%s out of stock", p.Name),
			})
		case domain.StockLow:
			alerts = append(alerts, domain.Alert{
				Kind:      AlertLowStock,
				ProductID: p.ID,
				Message:   fmt.Sprintf("%s running low (%d pieces left)", p.Name, p.StockPieces),
			})
		}
	}

	overdue := 0
	for _, s := range sales {
		if s.IsOverdue() {
			overdue++
		}
	}
	if overdue > 0 {
		alerts = append(alerts, domain.Alert{
			Kind:    AlertOverdue,
			Message: fmt.Sprintf("%d overdue payments due today", overdue),
		})
	}
	return alerts
}

func Headers(sales []domain.SaleView) []domain.Sale {
	headers := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		headers = append(headers, s.Sale)
	}
	return headers
}

// Recent returns the n newest sales by id.
func Recent(sales []domain.SaleView, n int) []domain.SaleView {
	sorted := slices.Clone(sales)
	slices.SortFunc(sorted, func(a, b domain.SaleView) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func Finance(creditSales []domain.SaleView, loans []domain.Loan) domain.FinanceSummary {
	var f domain.FinanceSummary
	for _, s := range creditSales {
		if !s.IsCredit {
			continue
		}
		if owed := s.OutstandingCents(); owed > 0 {
			f.CreditOutstandingCents += owed
			f.CreditPendingCount++
		}
	}
	for _, loan := range loans {
		if loan.Status == domain.LoanStatusPaid {
			continue
		}
		switch loan.Kind {
		case domain.LoanLent:
			f.LentOutstandingCents += loan.AmountCents
			f.LentUnpaidCount++
		case domain.LoanBorrowed:
			f.BorrowedOutstandingCents += loan.AmountCents
			f.BorrowedUnpaidCount++
		}
	}
	return f
}

// ReorderSuggestions proposes restocking every product at or under its threshold
// up to twice the threshold, priced at the current cost.
func ReorderSuggestions(products []domain.Product) []domain.ReorderSuggestion {
	suggestions := make([]domain.ReorderSuggestion, 0, 8)
	for _, p := range products {
		if p.StockStatus() == domain.StockOK {
			continue
		}
		threshold := p.LowStockThreshold
		if threshold < pricing.PackSizeOf(p) {
			threshold = pricing.PackSizeOf(p)
		}
		recommended := threshold*2 - p.StockPieces
		// round up to whole packs
		pack := pricing.PackSizeOf(p)
		if rem := recommended % pack; rem != 0 {
			recommended += pack - rem
		}
		if recommended < 1 {
			continue
		}
		cost := p.CostOrZero()
		suggestions = append(suggestions, domain.ReorderSuggestion{
			ProductID:              p.ID,
			Name:                   p.Name,
			CurrentPieces:          p.StockPieces,
			ThresholdPieces:        p.LowStockThreshold,
			RecommendedPieces:      recommended,
			CostPerDozenCents:      cost,
			EstimatedPurchaseCents: recommended / pack * cost,
		})
	}
	slices.SortFunc(suggestions, func(a, b domain.ReorderSuggestion) int {
		if a.CurrentPieces != b.CurrentPieces {
			if a.CurrentPieces < b.CurrentPieces {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return suggestions
}
