package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/safar/electrostore/internal/checkout"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/refunds"
	"github.com/safar/electrostore/internal/revenue"
	"github.com/safar/electrostore/internal/store"
)

type CheckoutService interface {
	CreateOrder(ctx context.Context, req checkout.CreateOrderRequest) (*models.Order, error)
}

type OrderService interface {
	Get(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error)
	ListForUser(ctx context.Context, userID int64, cursor string, limit int) (*store.CursorPage, error)
	List(ctx context.Context, status *models.OrderStatus, page, pageSize int) (*store.OffsetPage, error)
	UpdateStatus(ctx context.Context, actor models.Actor, orderID int64, target models.OrderStatus, note *string) (*models.Order, error)
	Cancel(ctx context.Context, actor models.Actor, orderID int64, note *string) (*models.Order, error)
	Notifications(ctx context.Context, userID int64) ([]models.Notification, error)
}

type RefundService interface {
	RequestRefund(ctx context.Context, actor models.Actor, orderID int64, reason string) (*models.RefundRequest, error)
	ResolveRefund(ctx context.Context, actor models.Actor, refundID int64, decision refunds.Decision, note *string) (*models.RefundRequest, error)
	List(ctx context.Context, status *models.RefundStatus) ([]models.RefundRequest, error)
}

type RevenueService interface {
	RevenueForRange(ctx context.Context, start, end time.Time) (*revenue.RangeReport, error)
	MonthlySummary(ctx context.Context, year int) ([]revenue.MonthlyRevenue, error)
}

// Cart, address and payment rules live in checkout so the reason codes stay
// in one place.
type checkoutItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type paymentPayload struct {
	CardNumber string `json:"card_number"`
	CardHolder string `json:"card_holder"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

type checkoutRequest struct {
	Items           []checkoutItem `json:"items"`
	DeliveryAddress string         `json:"delivery_address"`
	Payment         paymentPayload `json:"payment"`
}

type checkoutResponse struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type noteRequest struct {
	Note *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type statusRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

type refundRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Decision string  `json:"decision" validate:"required,oneof=approve deny"`
	Note     *string `json:"note,omitempty" validate:"omitempty,max=1000"`
}

func Checkout(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		var payload checkoutRequest
		if err := DecodeJSONBody(r, &payload, false); err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), checkout.CreateOrderRequest{
			UserID: actor.UserID,
			Lines: lo.Map(payload.Items, func(item checkoutItem, _ int) inventory.Line {
				return inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity}
			}),
			DeliveryAddress: payload.DeliveryAddress,
			Payment: checkout.PaymentDetails{
				CardNumber: payload.Payment.CardNumber,
				CardHolder: payload.Payment.CardHolder,
				Expiry:     payload.Payment.Expiry,
				CVV:        payload.Payment.CVV,
			},
		})
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			TotalAmount: order.TotalAmount,
		})
	}
}

func ListMyOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		limit, err := queryInt(r, "limit", store.DefaultPageSize)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListForUser(r.Context(), actor.UserID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, page)
	}
}

func ListNotifications(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		list, err := svc.Notifications(r.Context(), actor.UserID)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, list)
	}
}

func GetOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), actor, id)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, order)
	}
}

func CancelOrder(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		var payload noteRequest
		if err := DecodeJSONBody(r, &payload, true); err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), actor, id, payload.Note)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, order)
	}
}

func RequestRefund(svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		var payload refundRequest
		if err := DecodeJSONBody(r, &payload, false); err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.RequestRefund(r.Context(), actor, id, payload.Reason)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccessStatus(w, http.StatusCreated, refund)
	}
}

func ListAllOrders(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *models.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := models.ParseOrderStatus(raw)
			if err != nil {
				WriteError(r.Context(), logg, w, apperrors.Validation("unknown order status", map[string]any{"status": raw}))
				return
			}
			status = &parsed
		}

		page, err := queryInt(r, "page", 1)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}
		pageSize, err := queryInt(r, "page_size", store.DefaultPageSize)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), status, page, pageSize)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, result)
	}
}

func UpdateOrderStatus(svc OrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusRequest
		if err := DecodeJSONBody(r, &payload, false); err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateStatus(r.Context(), actor, id, models.OrderStatus(strings.TrimSpace(payload.Status)), payload.Note)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, order)
	}
}

func ListRefunds(svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *models.RefundStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := models.ParseRefundStatus(raw)
			if err != nil {
				WriteError(r.Context(), logg, w, apperrors.Validation("unknown refund status", map[string]any{"status": raw}))
				return
			}
			status = &parsed
		}

		list, err := svc.List(r.Context(), status)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, list)
	}
}

func ResolveRefund(svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}

		id, err := pathID(r, "id")
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveRequest
		if err := DecodeJSONBody(r, &payload, false); err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		decision, err := refunds.ParseDecision(payload.Decision)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.ResolveRefund(r.Context(), actor, id, decision, payload.Note)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, refund)
	}
}

func RevenueRange(svc RevenueService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		start, err := revenue.ParseDate(strings.TrimSpace(query.Get("start")))
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := revenue.ParseDate(strings.TrimSpace(query.Get("end")))
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.RevenueForRange(r.Context(), start, end)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, report)
	}
}

func RevenueMonthly(svc RevenueService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, err := queryInt(r, "year", 0)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}
		if year == 0 {
			WriteError(r.Context(), logg, w, apperrors.Validation("year is required", map[string]any{"year": "is required"}))
			return
		}

		months, err := svc.MonthlySummary(r.Context(), year)
		if err != nil {
			WriteError(r.Context(), logg, w, err)
			return
		}

		WriteSuccess(w, map[string]any{"year": year, "months": months})
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (models.Actor, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		WriteError(r.Context(), logg, w, apperrors.New(apperrors.CodeUnauthorized, "missing caller identity"))
		return models.Actor{}, false
	}
	return actor, true
}
