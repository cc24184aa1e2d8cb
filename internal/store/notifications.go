package store

import (
	"context"
	"fmt"

	"github.com/safar/electrostore/internal/models"
)

const (
	NotificationOrderPlaced    = "order_placed"
	NotificationOrderStatus    = "order_status_changed"
	NotificationRefundResolved = "refund_resolved"
)

// InsertNotification records a notification row. Delivery happens elsewhere.
func InsertNotification(ctx context.Context, q Querier, n models.Notification) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO notifications (user_id, order_id, kind, message, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		n.UserID, n.OrderID, n.Kind, n.Message)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func ListNotifications(ctx context.Context, q Querier, userID int64) ([]models.Notification, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, order_id, kind, message, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &n.Kind, &n.Message, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return notifications, nil
}
