package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/electrostore/internal/database"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/metrics"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/pricing"
	"github.com/safar/electrostore/internal/store"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type PaymentDetails struct {
	CardNumber string
	CardHolder string
	Expiry     string
	CVV        string
}

type CreateOrderRequest struct {
	UserID          int64
	Lines           []inventory.Line
	DeliveryAddress string
	Payment         PaymentDetails
}

type Reserver interface {
	Reserve(ctx context.Context, tx *sql.Tx, lines []inventory.Line) error
}

type Sealer interface {
	Seal(plaintext string) ([]byte, error)
}

type Service struct {
	db        *sql.DB
	inventory Reserver
	vault     Sealer
	metrics   *metrics.Commerce
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(db *sql.DB, inv Reserver, vault Sealer, m *metrics.Commerce, logg *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if vault == nil {
		return nil, fmt.Errorf("card vault required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:        db,
		inventory: inv,
		vault:     vault,
		metrics:   m,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// WithClock replaces the clock used for discount resolution and order
// timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateOrder prices, reserves and persists an order in one transaction.
// Either the order, its items, the payment record and the stock changes are
// all committed, or none of them are.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := ValidateRequest(req); err != nil {
		s.metrics.IncCheckout(metrics.OutcomeInvalid)
		return nil, err
	}

	lines, err := inventory.Merge(req.Lines)
	if err != nil {
		s.metrics.IncCheckout(metrics.OutcomeInvalid)
		return nil, err
	}

	now := s.now().UTC()
	var order *models.Order

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		created, err := s.createOrderTx(ctx, tx, req, lines, now)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		s.metrics.IncCheckout(outcomeFor(err))
		if apperrors.As(err) == nil {
			s.logg.Error(s.logg.WithUserID(ctx, req.UserID), "checkout failed", err)
		}
		return nil, err
	}

	s.metrics.IncCheckout(metrics.OutcomeSuccess)
	logCtx := s.logg.WithFields(s.logg.WithUserID(ctx, req.UserID), map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total_amount": order.TotalAmount.StringFixed(2),
		"lines":        len(order.Items),
	})
	s.logg.Info(logCtx, "order created")

	return order, nil
}

func (s *Service) createOrderTx(ctx context.Context, tx *sql.Tx, req CreateOrderRequest, lines []inventory.Line, now time.Time) (*models.Order, error) {
	exists, err := store.UserExists(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("user")
	}

	productIDs := lo.Map(lines, func(l inventory.Line, _ int) int64 { return l.ProductID })

	products, err := store.GetProductsByIDs(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}

	discounts, err := store.ListActiveDiscounts(ctx, tx, productIDs, now)
	if err != nil {
		return nil, err
	}

	items, total, err := snapshotLines(lines, products, discounts, now)
	if err != nil {
		return nil, err
	}

	if err := s.inventory.Reserve(ctx, tx, lines); err != nil {
		return nil, err
	}

	order, err := store.InsertOrder(ctx, tx, store.InsertOrderParams{
		UserID:          req.UserID,
		TotalAmount:     total,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		CreatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	order.Items, err = store.InsertOrderItems(ctx, tx, order.ID, items)
	if err != nil {
		return nil, err
	}

	payment, err := s.sealPayment(order.ID, req.Payment)
	if err != nil {
		return nil, err
	}
	if _, err := store.InsertPayment(ctx, tx, payment); err != nil {
		return nil, err
	}

	orderID := order.ID
	err = store.InsertNotification(ctx, tx, models.Notification{
		UserID:  req.UserID,
		OrderID: &orderID,
		Kind:    store.NotificationOrderPlaced,
		Message: fmt.Sprintf("Order %s has been placed", order.OrderNumber),
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// snapshotLines resolves the immutable unit price and cost for every line.
func snapshotLines(lines []inventory.Line, products map[int64]models.Product, discounts map[int64][]models.Discount, at time.Time) ([]store.InsertOrderItemParams, decimal.Decimal, error) {
	items := make([]store.InsertOrderItemParams, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, decimal.Zero, apperrors.NotFound("product").WithDetails(map[string]any{"product_id": line.ProductID})
		}

		quote, err := pricing.EffectivePrice(product, discounts[line.ProductID], at)
		if err != nil {
			if errors.Is(err, pricing.ErrNotPurchasable) {
				return nil, decimal.Zero, apperrors.Validation("product is not purchasable", map[string]any{
					"reason":     ReasonNotPurchasable,
					"product_id": line.ProductID,
				})
			}
			return nil, decimal.Zero, err
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		subtotal := quote.UnitPrice.Mul(qty)

		items = append(items, store.InsertOrderItemParams{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: quote.UnitPrice,
			UnitCost:  pricing.UnitCost(product.Cost, quote.UnitPrice),
			Subtotal:  subtotal,
		})
		total = total.Add(subtotal)
	}

	return items, total, nil
}

func (s *Service) sealPayment(orderID int64, p PaymentDetails) (models.PaymentRecord, error) {
	number := NormalizeCardNumber(p.CardNumber)
	record := models.PaymentRecord{
		OrderID:   orderID,
		CardLast4: number[len(number)-4:],
	}

	fields := []struct {
		dst   *[]byte
		value string
	}{
		{&record.CardNumberEnc, number},
		{&record.CardHolderEnc, strings.TrimSpace(p.CardHolder)},
		{&record.CardExpiryEnc, strings.TrimSpace(p.Expiry)},
		{&record.CardCVVEnc, strings.TrimSpace(p.CVV)},
	}
	for _, f := range fields {
		sealed, err := s.vault.Seal(f.value)
		if err != nil {
			return models.PaymentRecord{}, fmt.Errorf("seal payment field: %w", err)
		}
		*f.dst = sealed
	}

	return record, nil
}

func outcomeFor(err error) string {
	switch {
	case apperrors.IsCode(err, apperrors.CodeInsufficientStock):
		return metrics.OutcomeInsufficientStock
	case apperrors.IsCode(err, apperrors.CodeValidation), apperrors.IsCode(err, apperrors.CodeNotFound):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
