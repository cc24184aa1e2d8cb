package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/electrostore/internal/database"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/store"
)

type Service struct {
	db      *sql.DB
	machine *Machine
	logg    *logger.Logger
}

func NewService(db *sql.DB, machine *Machine, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, machine: machine, logg: logg}, nil
}

// Get returns the order with its items. Customers only see their own orders.
func (s *Service) Get(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleCustomer && order.UserID != actor.UserID {
		return nil, apperrors.NotFound("order")
	}
	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error) {
	return store.ListOrdersCursor(ctx, s.db, userID, cursor, limit)
}

// Notifications lists the in-app notifications written for userID, oldest
// first.
func (s *Service) Notifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	return store.ListNotifications(ctx, s.db, userID)
}

func (s *Service) List(ctx context.Context, status *models.OrderStatus, page, pageSize int) (*store.OffsetPage, error) {
	return store.ListOrders(ctx, s.db, status, page, pageSize)
}

// UpdateStatus is the management entry point. Refund states are reached
// through the refund workflow only.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, target models.OrderStatus, note *string) (*models.Order, error) {
	if !target.IsValid() {
		return nil, apperrors.Validation("unknown order status", map[string]any{"status": string(target)})
	}

	switch target {
	case models.OrderStatusRefundRequested, models.OrderStatusRefundApproved, models.OrderStatusRefundDenied:
		return nil, apperrors.Validation("refund statuses are managed through refund requests", map[string]any{"status": string(target)})
	case models.OrderStatusCancelled:
		return s.Cancel(ctx, actor, orderID, note)
	}

	return s.transition(ctx, actor, orderID, target, note)
}

// Cancel restores stock for every line and closes the order. Only orders
// still in processing can be cancelled.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, orderID int64, note *string) (*models.Order, error) {
	return s.transition(ctx, actor, orderID, models.OrderStatusCancelled, note)
}

func (s *Service) transition(ctx context.Context, actor models.Actor, orderID int64, target models.OrderStatus, note *string) (*models.Order, error) {
	var updated *models.Order

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == models.RoleCustomer && order.UserID != actor.UserID {
			return apperrors.NotFound("order")
		}

		updated, err = s.machine.Apply(ctx, tx, order, target, actor, note)
		return err
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}
