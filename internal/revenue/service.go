// Package revenue reports sales totals from the price and cost snapshots
// stored on order lines. Cancelled and refunded orders never count.
package revenue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/store"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type DailyRevenue struct {
	Date       string          `json:"date"`
	Revenue    decimal.Decimal `json:"revenue"`
	Cost       decimal.Decimal `json:"cost"`
	Profit     decimal.Decimal `json:"profit"`
	OrderCount int             `json:"order_count"`
}

type RangeReport struct {
	Start        string          `json:"start"`
	End          string          `json:"end"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	TotalProfit  decimal.Decimal `json:"total_profit"`
	OrderCount   int             `json:"order_count"`
	Daily        []DailyRevenue  `json:"daily"`
}

type MonthlyRevenue struct {
	Month      int             `json:"month"`
	Revenue    decimal.Decimal `json:"revenue"`
	OrderCount int             `json:"order_count"`
	ItemsSold  int             `json:"items_sold"`
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Service{db: db}, nil
}

// ParseDate reads a YYYY-MM-DD calendar day in UTC.
func ParseDate(value string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, apperrors.Wrap(apperrors.CodeValidation, err, "dates must look like YYYY-MM-DD").
			WithDetails(map[string]any{"value": value})
	}
	return day, nil
}

// RevenueForRange covers every UTC day from start through end inclusive,
// bucketed by order creation date. Only days with sales appear in Daily.
func (s *Service) RevenueForRange(ctx context.Context, start, end time.Time) (*RangeReport, error) {
	from := truncateDay(start)
	to := truncateDay(end)
	if to.Before(from) {
		return nil, apperrors.Validation("end date is before start date", map[string]any{
			"start": from.Format(dateLayout),
			"end":   to.Format(dateLayout),
		})
	}

	rows, err := store.DailyRevenue(ctx, s.db, from, to.AddDate(0, 0, 1), models.NonRevenueStatuses())
	if err != nil {
		return nil, err
	}

	report := &RangeReport{
		Start:        from.Format(dateLayout),
		End:          to.Format(dateLayout),
		TotalRevenue: decimal.Zero,
		TotalCost:    decimal.Zero,
		TotalProfit:  decimal.Zero,
		Daily:        make([]DailyRevenue, 0, len(rows)),
	}

	for _, row := range rows {
		profit := row.Revenue.Sub(row.Cost)
		report.Daily = append(report.Daily, DailyRevenue{
			Date:       row.Day.Format(dateLayout),
			Revenue:    row.Revenue.Round(2),
			Cost:       row.Cost.Round(2),
			Profit:     profit.Round(2),
			OrderCount: row.OrderCount,
		})
		report.TotalRevenue = report.TotalRevenue.Add(row.Revenue)
		report.TotalCost = report.TotalCost.Add(row.Cost)
		report.OrderCount += row.OrderCount
	}

	report.TotalProfit = report.TotalRevenue.Sub(report.TotalCost).Round(2)
	report.TotalRevenue = report.TotalRevenue.Round(2)
	report.TotalCost = report.TotalCost.Round(2)

	return report, nil
}

// MonthlySummary always returns twelve entries; months without sales are zero.
func (s *Service) MonthlySummary(ctx context.Context, year int) ([]MonthlyRevenue, error) {
	if year < 1 || year > 9999 {
		return nil, apperrors.Validation("year out of range", map[string]any{"year": year})
	}

	rows, err := store.MonthlyRevenue(ctx, s.db, year, models.NonRevenueStatuses())
	if err != nil {
		return nil, err
	}

	summary := make([]MonthlyRevenue, 12)
	for i := range summary {
		summary[i] = MonthlyRevenue{Month: i + 1, Revenue: decimal.Zero}
	}
	for _, row := range rows {
		if row.Month < 1 || row.Month > 12 {
			continue
		}
		summary[row.Month-1] = MonthlyRevenue{
			Month:      row.Month,
			Revenue:    row.Revenue.Round(2),
			OrderCount: row.OrderCount,
			ItemsSold:  row.ItemsSold,
		}
	}

	return summary, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
