package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
)

type CreateDiscountParams struct {
	ProductID int64
	Type      models.DiscountType
	Value     decimal.Decimal
	StartAt   time.Time
	EndAt     time.Time
}

func CreateDiscount(ctx context.Context, q Querier, params CreateDiscountParams) (*models.Discount, error) {
	discount := &models.Discount{}

	query := `
		INSERT INTO discounts (product_id, discount_type, value, start_at, end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp())
		RETURNING id, product_id, discount_type, value, start_at, end_at, created_at`

	err := q.QueryRowContext(ctx, query,
		params.ProductID, params.Type, params.Value, params.StartAt, params.EndAt,
	).Scan(
		&discount.ID,
		&discount.ProductID,
		&discount.Type,
		&discount.Value,
		&discount.StartAt,
		&discount.EndAt,
		&discount.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create discount: %w", err)
	}

	return discount, nil
}

// ListActiveDiscounts returns, per product, every discount whose window
// contains at. Choosing among overlapping windows is the pricing package's job.
func ListActiveDiscounts(ctx context.Context, q Querier, productIDs []int64, at time.Time) (map[int64][]models.Discount, error) {
	discounts := make(map[int64][]models.Discount, len(productIDs))
	if len(productIDs) == 0 {
		return discounts, nil
	}

	query := `
		SELECT id, product_id, discount_type, value, start_at, end_at, created_at
		FROM discounts
		WHERE product_id = ANY($1)
		  AND start_at <= $2
		  AND end_at > $2
		ORDER BY product_id, created_at DESC, id DESC`

	rows, err := q.QueryContext(ctx, query, pq.Array(productIDs), at)
	if err != nil {
		return nil, fmt.Errorf("list active discounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d models.Discount
		err := rows.Scan(
			&d.ID,
			&d.ProductID,
			&d.Type,
			&d.Value,
			&d.StartAt,
			&d.EndAt,
			&d.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan discount: %w", err)
		}
		discounts[d.ProductID] = append(discounts[d.ProductID], d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return discounts, nil
}
