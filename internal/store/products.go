package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, sku, name, description, base_price, cost, stock_quantity,
	price_approved, visible, created_at, updated_at, version`

type CreateProductParams struct {
	SKU           string
	Name          string
	Description   string
	BasePrice     decimal.NullDecimal
	Cost          decimal.NullDecimal
	StockQuantity int
	PriceApproved bool
	Visible       bool
}

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.BasePrice,
		&product.Cost,
		&product.StockQuantity,
		&product.PriceApproved,
		&product.Visible,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

// CreateProduct is used by catalog tooling and fixtures; the commerce core
// only reads products.
func CreateProduct(ctx context.Context, q Querier, params CreateProductParams) (*models.Product, error) {
	product := &models.Product{}

	query := `
		INSERT INTO products (sku, name, description, base_price, cost, stock_quantity,
		                      price_approved, visible, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(q.QueryRowContext(ctx, query,
		params.SKU,
		params.Name,
		params.Description,
		params.BasePrice,
		params.Cost,
		params.StockQuantity,
		params.PriceApproved,
		params.Visible,
	), product)
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q Querier, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("product").WithDetails(map[string]any{"product_id": id})
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProductsByIDs returns the products keyed by id. Missing ids are absent
// from the map; callers decide whether that is an error.
func GetProductsByIDs(ctx context.Context, q Querier, ids []int64) (map[int64]models.Product, error) {
	products := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	rows, err := q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products[product.ID] = product
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// LockProductStock takes the row lock for productID and returns the stock
// visible once the lock is granted.
func LockProductStock(ctx context.Context, tx *sql.Tx, productID int64) (int, error) {
	var stock int

	err := tx.QueryRowContext(ctx,
		`SELECT stock_quantity
		 FROM products
		 WHERE id = $1
		 FOR UPDATE`,
		productID).Scan(&stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperrors.NotFound("product").WithDetails(map[string]any{"product_id": productID})
		}
		return 0, fmt.Errorf("lock product %d: %w", productID, err)
	}

	return stock, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.InsufficientStock(productID)
	}

	return nil
}

func IncrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NotFound("product").WithDetails(map[string]any{"product_id": productID})
	}

	return nil
}
