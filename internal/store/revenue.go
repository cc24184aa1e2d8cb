package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/electrostore/internal/models"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// DailyRevenueRow is one UTC calendar day of line-snapshot totals.
type DailyRevenueRow struct {
	Day        time.Time
	Revenue    decimal.Decimal
	Cost       decimal.Decimal
	OrderCount int
}

type MonthlyRevenueRow struct {
	Month      int
	Revenue    decimal.Decimal
	OrderCount int
	ItemsSold  int
}

func excludedStatuses(statuses []models.OrderStatus) any {
	return pq.Array(lo.Map(statuses, func(s models.OrderStatus, _ int) string {
		return string(s)
	}))
}

// DailyRevenue sums line snapshots of orders created in [from, until),
// skipping orders whose status is in excluded.
func DailyRevenue(ctx context.Context, q Querier, from, until time.Time, excluded []models.OrderStatus) ([]DailyRevenueRow, error) {
	query := `
		SELECT (o.created_at AT TIME ZONE 'UTC')::date AS day,
		       COALESCE(SUM(oi.unit_price * oi.quantity), 0) AS revenue,
		       COALESCE(SUM(oi.unit_cost * oi.quantity), 0) AS cost,
		       COUNT(DISTINCT o.id) AS order_count
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.created_at >= $1
		  AND o.created_at < $2
		  AND NOT (o.status = ANY($3))
		GROUP BY day
		ORDER BY day`

	rows, err := q.QueryContext(ctx, query, from, until, excludedStatuses(excluded))
	if err != nil {
		return nil, fmt.Errorf("daily revenue: %w", err)
	}
	defer rows.Close()

	var result []DailyRevenueRow
	for rows.Next() {
		var row DailyRevenueRow
		if err := rows.Scan(&row.Day, &row.Revenue, &row.Cost, &row.OrderCount); err != nil {
			return nil, fmt.Errorf("scan daily revenue: %w", err)
		}
		row.Day = time.Date(row.Day.Year(), row.Day.Month(), row.Day.Day(), 0, 0, 0, 0, time.UTC)
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return result, nil
}

// MonthlyRevenue returns only the months of year that have qualifying sales.
func MonthlyRevenue(ctx context.Context, q Querier, year int, excluded []models.OrderStatus) ([]MonthlyRevenueRow, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(1, 0, 0)

	query := `
		SELECT EXTRACT(MONTH FROM o.created_at AT TIME ZONE 'UTC')::int AS month,
		       COALESCE(SUM(oi.unit_price * oi.quantity), 0) AS revenue,
		       COUNT(DISTINCT o.id) AS order_count,
		       COALESCE(SUM(oi.quantity), 0) AS items_sold
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		WHERE o.created_at >= $1
		  AND o.created_at < $2
		  AND NOT (o.status = ANY($3))
		GROUP BY month
		ORDER BY month`

	rows, err := q.QueryContext(ctx, query, from, until, excludedStatuses(excluded))
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	defer rows.Close()

	var result []MonthlyRevenueRow
	for rows.Next() {
		var row MonthlyRevenueRow
		if err := rows.Scan(&row.Month, &row.Revenue, &row.OrderCount, &row.ItemsSold); err != nil {
			return nil, fmt.Errorf("scan monthly revenue: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return result, nil
}
