package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, order_number, status, total_amount, delivery_address,
	admin_note, delivered_at, created_at, updated_at, version`

type InsertOrderParams struct {
	UserID          int64
	TotalAmount     decimal.Decimal
	DeliveryAddress string
	CreatedAt       time.Time
}

type InsertOrderItemParams struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
	Subtotal  decimal.Decimal
}

// UpdateOrderStatusParams moves an order from From to To. The update only
// applies while the row still carries Version.
type UpdateOrderStatusParams struct {
	OrderID     int64
	From        models.OrderStatus
	To          models.OrderStatus
	Version     int
	AdminNote   *string
	DeliveredAt *time.Time
}

func GenerateOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", at.UTC().Format("20060102"), uuid.NewString()[:8])
}

func scanOrder(row rowScanner, order *models.Order) error {
	var adminNote sql.NullString
	var deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.Status,
		&order.TotalAmount,
		&order.DeliveryAddress,
		&adminNote,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}

	order.AdminNote = nullStringPtr(adminNote)
	order.DeliveredAt = nullTimePtr(deliveredAt)
	return nil
}

// InsertOrder writes a new order in processing status.
func InsertOrder(ctx context.Context, tx *sql.Tx, params InsertOrderParams) (*models.Order, error) {
	order := &models.Order{}

	query := `
		INSERT INTO orders (user_id, order_number, status, total_amount, delivery_address,
		                    created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $6, 1)
		RETURNING ` + orderColumns

	err := scanOrder(tx.QueryRowContext(ctx, query,
		params.UserID,
		GenerateOrderNumber(params.CreatedAt),
		models.OrderStatusProcessing,
		params.TotalAmount,
		params.DeliveryAddress,
		params.CreatedAt,
	), order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func InsertOrderItems(ctx context.Context, tx *sql.Tx, orderID int64, items []InsertOrderItemParams) ([]models.OrderItem, error) {
	created := make([]models.OrderItem, 0, len(items))

	for _, item := range items {
		row := models.OrderItem{}
		err := tx.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, unit_price, unit_cost, subtotal, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING id, order_id, product_id, quantity, unit_price, unit_cost, subtotal, created_at`,
			orderID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitCost, item.Subtotal,
		).Scan(
			&row.ID,
			&row.OrderID,
			&row.ProductID,
			&row.Quantity,
			&row.UnitPrice,
			&row.UnitCost,
			&row.Subtotal,
			&row.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		created = append(created, row)
	}

	return created, nil
}

func GetOrder(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	return getOrder(ctx, q, id, `SELECT `+orderColumns+` FROM orders WHERE id = $1`)
}

// GetOrderForUpdate locks the order row for the rest of tx.
func GetOrderForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrder(ctx, tx, id, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`)
}

func getOrder(ctx context.Context, q Querier, id int64, query string) (*models.Order, error) {
	order := &models.Order{}

	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("order")
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := GetOrderItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func GetOrderItems(ctx context.Context, q Querier, orderID int64) ([]models.OrderItem, error) {
	itemsQuery := `
		SELECT id, order_id, product_id, quantity, unit_price, unit_cost, subtotal, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := q.QueryContext(ctx, itemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.UnitCost,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// UpdateOrderStatus returns CONFLICT when the row moved on since it was read.
func UpdateOrderStatus(ctx context.Context, tx *sql.Tx, params UpdateOrderStatusParams) (*models.Order, error) {
	order := &models.Order{}

	query := `
		UPDATE orders
		SET status = $1,
		    admin_note = COALESCE($2, admin_note),
		    delivered_at = COALESCE($3, delivered_at),
		    updated_at = NOW(),
		    version = version + 1
		WHERE id = $4
		  AND status = $5
		  AND version = $6
		RETURNING ` + orderColumns

	err := scanOrder(tx.QueryRowContext(ctx, query,
		params.To,
		params.AdminNote,
		params.DeliveredAt,
		params.OrderID,
		params.From,
		params.Version,
	), order)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.CodeConflict, "order was modified concurrently").
				WithDetails(map[string]any{"order_id": params.OrderID})
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

func ListOrdersCursor(ctx context.Context, q Querier, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = NormalizeLimit(limit)

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	rows, err := q.QueryContext(ctx, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrders pages through every order for the management console. A nil
// status lists all statuses.
func ListOrders(ctx context.Context, q Querier, status *models.OrderStatus, page, pageSize int) (*OffsetPage, error) {
	if page < 1 {
		page = 1
	}
	pageSize = NormalizeLimit(pageSize)

	var filter any
	if status != nil {
		filter = string(*status)
	}

	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE ($1::text IS NULL OR status = $1)`,
		filter).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := q.QueryContext(ctx, query, filter, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
