package orders

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/metrics"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/store"
	"github.com/samber/lo"
)

type Releaser interface {
	Release(ctx context.Context, tx *sql.Tx, lines []inventory.Line) error
}

// Machine is the only code path that changes orders.status.
type Machine struct {
	inventory Releaser
	metrics   *metrics.Commerce
	logg      *logger.Logger
	now       func() time.Time
}

func NewMachine(inv Releaser, m *metrics.Commerce, logg *logger.Logger) (*Machine, error) {
	if inv == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Machine{inventory: inv, metrics: m, logg: logg, now: time.Now}, nil
}

// Apply moves order to target inside tx. The caller must hold the order row
// lock (store.GetOrderForUpdate) so side effects run once per transition.
func (m *Machine) Apply(ctx context.Context, tx *sql.Tx, order *models.Order, target models.OrderStatus, actor models.Actor, note *string) (*models.Order, error) {
	if order == nil {
		return nil, apperrors.NotFound("order")
	}

	rule, ok := Lookup(order.Status, target)
	if !ok {
		return nil, apperrors.InvalidTransition(order.Status.String(), target.String())
	}
	if !rule.Allows(actor, order.UserID) {
		return nil, apperrors.New(apperrors.CodeForbidden, "not allowed to move order to "+target.String()).
			WithDetails(map[string]any{"from": order.Status.String(), "to": target.String()})
	}

	if rule.ReleaseStock {
		lines := lo.Map(order.Items, func(item models.OrderItem, _ int) inventory.Line {
			return inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity}
		})
		if len(lines) > 0 {
			if err := m.inventory.Release(ctx, tx, lines); err != nil {
				return nil, err
			}
		}
	}

	params := store.UpdateOrderStatusParams{
		OrderID:   order.ID,
		From:      order.Status,
		To:        target,
		Version:   order.Version,
		AdminNote: trimNote(note),
	}
	if rule.StampDelivered {
		deliveredAt := m.now().UTC()
		params.DeliveredAt = &deliveredAt
	}

	updated, err := store.UpdateOrderStatus(ctx, tx, params)
	if err != nil {
		return nil, err
	}
	updated.Items = order.Items

	orderID := order.ID
	err = store.InsertNotification(ctx, tx, models.Notification{
		UserID:  order.UserID,
		OrderID: &orderID,
		Kind:    store.NotificationOrderStatus,
		Message: fmt.Sprintf("Order %s is now %s", order.OrderNumber, target),
	})
	if err != nil {
		return nil, err
	}

	m.metrics.IncTransition(order.Status.String(), target.String())
	logCtx := m.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID,
		"from":       order.Status.String(),
		"to":         target.String(),
		"actor_id":   actor.UserID,
		"actor_role": string(actor.Role),
	})
	m.logg.Info(logCtx, "order status changed")

	return updated, nil
}

func trimNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
