// Package inventory owns every change to products.stock_quantity.
package inventory

import (
	"context"
	"database/sql"
	"math"
	"sort"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/metrics"
	"github.com/safar/electrostore/internal/store"
	"github.com/samber/lo"
)

type Line struct {
	ProductID int64
	Quantity  int
}

// Ledger reserves and releases stock inside a caller-owned transaction.
type Ledger struct {
	metrics *metrics.Commerce
	logg    *logger.Logger
}

func NewLedger(m *metrics.Commerce, logg *logger.Logger) *Ledger {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Ledger{metrics: m, logg: logg}
}

// Reserve decrements stock for every line or for none of them. Rows are
// locked in ascending product id order, and every quantity is checked before
// the first decrement.
func (l *Ledger) Reserve(ctx context.Context, tx *sql.Tx, lines []Line) error {
	merged, err := Merge(lines)
	if err != nil {
		return err
	}

	for _, line := range merged {
		stock, err := store.LockProductStock(ctx, tx, line.ProductID)
		if err != nil {
			return err
		}
		if stock < line.Quantity {
			l.conflict(ctx, line, stock)
			return apperrors.InsufficientStock(line.ProductID)
		}
	}

	for _, line := range merged {
		if err := store.DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			if apperrors.IsCode(err, apperrors.CodeInsufficientStock) {
				l.conflict(ctx, line, -1)
			}
			return err
		}
	}

	return nil
}

// Release returns stock for lines. The caller guarantees it runs once per
// order transition.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, lines []Line) error {
	merged, err := Merge(lines)
	if err != nil {
		return err
	}

	for _, line := range merged {
		if _, err := store.LockProductStock(ctx, tx, line.ProductID); err != nil {
			return err
		}
		if err := store.IncrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}

	return nil
}

// Merge folds duplicate product lines together and sorts by product id.
// MaxQuantity bounds a merged line; stock_quantity is a postgres INT.
const MaxQuantity = math.MaxInt32

func Merge(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, apperrors.Validation("at least one line is required", nil)
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, apperrors.Validation("quantity must be positive", map[string]any{
				"product_id": line.ProductID,
				"quantity":   line.Quantity,
			})
		}
	}

	totals := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.Quantity > MaxQuantity-totals[line.ProductID] {
			return nil, apperrors.Validation("quantity too large", map[string]any{
				"product_id": line.ProductID,
				"max":        MaxQuantity,
			})
		}
		totals[line.ProductID] += line.Quantity
	}

	merged := lo.MapToSlice(totals, func(id int64, qty int) Line {
		return Line{ProductID: id, Quantity: qty}
	})
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID < merged[j].ProductID
	})

	return merged, nil
}

func (l *Ledger) conflict(ctx context.Context, line Line, available int) {
	l.metrics.IncStockConflict()
	fields := map[string]any{
		"product_id": line.ProductID,
		"requested":  line.Quantity,
	}
	if available >= 0 {
		fields["available"] = available
	}
	l.logg.Warn(l.logg.WithFields(ctx, fields), "stock reservation rejected")
}
