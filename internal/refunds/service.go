package refunds

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/safar/electrostore/internal/database"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/store"
)

const MaxReasonLength = 1000

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

func ParseDecision(value string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(value))); d {
	case DecisionApprove, DecisionDeny:
		return d, nil
	default:
		return "", apperrors.Validation("decision must be approve or deny", map[string]any{"decision": value})
	}
}

// Transitioner drives an order whose row is already locked in tx.
type Transitioner interface {
	Apply(ctx context.Context, tx *sql.Tx, order *models.Order, target models.OrderStatus, actor models.Actor, note *string) (*models.Order, error)
}

type Service struct {
	db      *sql.DB
	machine Transitioner
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(db *sql.DB, machine Transitioner, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if machine == nil {
		return nil, fmt.Errorf("state machine required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{db: db, machine: machine, logg: logg, now: time.Now}, nil
}

// RequestRefund opens a refund request for a delivered order and moves the
// order to refund-requested.
func (s *Service) RequestRefund(ctx context.Context, actor models.Actor, orderID int64, reason string) (*models.RefundRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("refund reason is required", map[string]any{"field": "reason"})
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, apperrors.Validation("refund reason is too long", map[string]any{
			"field": "reason",
			"max":   MaxReasonLength,
		})
	}

	var refund *models.RefundRequest

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.GetOrderForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == models.RoleCustomer && order.UserID != actor.UserID {
			return apperrors.NotFound("order")
		}

		open, err := store.HasOpenRefund(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if open {
			return apperrors.New(apperrors.CodeConflict, "an open refund request already exists").
				WithDetails(map[string]any{"order_id": orderID})
		}

		if order.Status != models.OrderStatusDelivered {
			return apperrors.InvalidTransition(order.Status.String(), models.OrderStatusRefundRequested.String())
		}

		if _, err := s.machine.Apply(ctx, tx, order, models.OrderStatusRefundRequested, actor, nil); err != nil {
			return err
		}

		refund, err = store.CreateRefundRequest(ctx, tx, orderID, order.UserID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "refund_id": refund.ID})
	s.logg.Info(logCtx, "refund requested")

	return refund, nil
}

// ResolveRefund approves or denies an open request. Approval restores stock
// through the order state machine.
func (s *Service) ResolveRefund(ctx context.Context, actor models.Actor, refundID int64, decision Decision, adminNote *string) (*models.RefundRequest, error) {
	target, status, err := resolution(decision)
	if err != nil {
		return nil, err
	}

	note := cleanNote(adminNote)
	var resolved *models.RefundRequest

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		refund, err := store.GetRefundRequestForUpdate(ctx, tx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != models.RefundStatusRequested {
			return apperrors.New(apperrors.CodeConflict, "refund request already resolved").
				WithDetails(map[string]any{"refund_id": refundID, "status": string(refund.Status)})
		}

		order, err := store.GetOrderForUpdate(ctx, tx, refund.OrderID)
		if err != nil {
			return err
		}

		if _, err := s.machine.Apply(ctx, tx, order, target, actor, note); err != nil {
			return err
		}

		resolved, err = store.ResolveRefundRequest(ctx, tx, refundID, status, note, s.now().UTC())
		if err != nil {
			return err
		}

		return store.InsertNotification(ctx, tx, models.Notification{
			UserID:  refund.UserID,
			OrderID: &refund.OrderID,
			Kind:    store.NotificationRefundResolved,
			Message: fmt.Sprintf("Your refund request for order %s was %s", order.OrderNumber, status),
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"refund_id": refundID,
		"order_id":  resolved.OrderID,
		"decision":  string(decision),
	})
	s.logg.Info(logCtx, "refund resolved")

	return resolved, nil
}

func (s *Service) List(ctx context.Context, status *models.RefundStatus) ([]models.RefundRequest, error) {
	return store.ListRefundRequests(ctx, s.db, status)
}

func resolution(decision Decision) (models.OrderStatus, models.RefundStatus, error) {
	switch decision {
	case DecisionApprove:
		return models.OrderStatusRefundApproved, models.RefundStatusApproved, nil
	case DecisionDeny:
		return models.OrderStatusRefundDenied, models.RefundStatusDenied, nil
	default:
		return "", "", apperrors.Validation("decision must be approve or deny", map[string]any{"decision": string(decision)})
	}
}

func cleanNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
