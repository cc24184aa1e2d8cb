package refunds_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/safar/electrostore/internal/cardvault"
	"github.com/safar/electrostore/internal/checkout"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/orders"
	"github.com/safar/electrostore/internal/refunds"
	"github.com/safar/electrostore/internal/store"
	"github.com/safar/electrostore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type refundsSuite struct {
	suite.Suite

	pg       *testutil.Postgres
	checkout *checkout.Service
	orders   *orders.Service
	refunds  *refunds.Service

	customer models.Actor
	pm       models.Actor
	sales    models.Actor
}

func TestRefundsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	suite.Run(t, new(refundsSuite))
}

func (s *refundsSuite) SetupSuite() {
	var err error
	s.pg, err = testutil.StartPostgres(context.Background())
	s.Require().NoError(err)

	vault, err := cardvault.New(bytes.Repeat([]byte{3}, 32))
	s.Require().NoError(err)

	ledger := inventory.NewLedger(nil, nil)
	s.checkout, err = checkout.NewService(s.pg.DB, ledger, vault, nil, nil)
	s.Require().NoError(err)

	machine, err := orders.NewMachine(ledger, nil, nil)
	s.Require().NoError(err)
	s.orders, err = orders.NewService(s.pg.DB, machine, nil)
	s.Require().NoError(err)
	s.refunds, err = refunds.NewService(s.pg.DB, machine, nil)
	s.Require().NoError(err)
}

func (s *refundsSuite) TearDownSuite() {
	s.NoError(s.pg.Close(context.Background()))
}

func (s *refundsSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
	actor := func(role models.Role) models.Actor {
		u := testutil.CreateUser(s.T(), s.pg.DB, role)
		return models.Actor{UserID: u.ID, Role: u.Role}
	}
	s.customer = actor(models.RoleCustomer)
	s.pm = actor(models.RoleProductManager)
	s.sales = actor(models.RoleSalesManager)
}

// deliveredOrder places an order for qty units of a fresh product with
// stock 5 and walks it to delivered.
func (s *refundsSuite) deliveredOrder(qty int) (*models.Order, *models.Product) {
	t := s.T()
	product := testutil.CreateProduct(t, s.pg.DB, "50", "20", 5)

	order, err := s.checkout.CreateOrder(context.Background(), checkout.CreateOrderRequest{
		UserID:          s.customer.UserID,
		Lines:           []inventory.Line{{ProductID: product.ID, Quantity: qty}},
		DeliveryAddress: "10 Downing Street",
		Payment: checkout.PaymentDetails{
			CardNumber: "4000 0000 0000 0002",
			CardHolder: "Pat Doe",
			Expiry:     "02/28",
			CVV:        "111",
		},
	})
	require.NoError(t, err)

	order, err = s.orders.UpdateStatus(context.Background(), s.pm, order.ID, models.OrderStatusDelivered, nil)
	require.NoError(t, err)
	return order, product
}

func (s *refundsSuite) TestApproveRestoresStock() {
	t := s.T()
	order, product := s.deliveredOrder(2)
	require.Equal(t, 3, testutil.Stock(t, s.pg.DB, product.ID))

	refund, err := s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "  screen arrived cracked ")
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRequested, refund.Status)
	assert.Equal(t, "screen arrived cracked", refund.Reason)

	got, err := s.orders.Get(context.Background(), s.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefundRequested, got.Status)

	note := "return received"
	resolved, err := s.refunds.ResolveRefund(context.Background(), s.sales, refund.ID, refunds.DecisionApprove, &note)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusApproved, resolved.Status)
	require.NotNil(t, resolved.AdminNote)
	assert.Equal(t, note, *resolved.AdminNote)
	assert.NotNil(t, resolved.ResolvedAt)

	got, err = s.orders.Get(context.Background(), s.sales, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefundApproved, got.Status)
	assert.Equal(t, 5, testutil.Stock(t, s.pg.DB, product.ID))
}

func (s *refundsSuite) TestDenyLeavesStock() {
	t := s.T()
	order, product := s.deliveredOrder(1)

	refund, err := s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "changed my mind")
	require.NoError(t, err)

	resolved, err := s.refunds.ResolveRefund(context.Background(), s.sales, refund.ID, refunds.DecisionDeny, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusDenied, resolved.Status)

	got, err := s.orders.Get(context.Background(), s.sales, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRefundDenied, got.Status)
	assert.Equal(t, 4, testutil.Stock(t, s.pg.DB, product.ID))

	_, err = s.refunds.ResolveRefund(context.Background(), s.sales, refund.ID, refunds.DecisionApprove, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	assert.Equal(t, 4, testutil.Stock(t, s.pg.DB, product.ID))
}

func (s *refundsSuite) TestRequestRequiresDeliveredOrder() {
	t := s.T()
	product := testutil.CreateProduct(t, s.pg.DB, "50", "", 5)
	order, err := s.checkout.CreateOrder(context.Background(), checkout.CreateOrderRequest{
		UserID:          s.customer.UserID,
		Lines:           []inventory.Line{{ProductID: product.ID, Quantity: 1}},
		DeliveryAddress: "Somewhere",
		Payment: checkout.PaymentDetails{
			CardNumber: "4000000000000002", CardHolder: "Pat", Expiry: "02/28", CVV: "111",
		},
	})
	require.NoError(t, err)

	_, err = s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "broken")
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, apperrors.CodeInvalidTransition, typed.Code())
	assert.Equal(t, 0, testutil.CountRows(t, s.pg.DB, "refund_requests"))
}

func (s *refundsSuite) TestSecondOpenRequestConflicts() {
	t := s.T()
	order, _ := s.deliveredOrder(1)

	_, err := s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "dead pixels")
	require.NoError(t, err)

	_, err = s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "still dead pixels")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	open := models.RefundStatusRequested
	list, err := s.refunds.List(context.Background(), &open)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func (s *refundsSuite) TestRequestValidation() {
	t := s.T()
	order, _ := s.deliveredOrder(1)

	_, err := s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "   ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = s.refunds.RequestRefund(context.Background(), s.customer, order.ID, strings.Repeat("x", refunds.MaxReasonLength+1))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = s.refunds.RequestRefund(context.Background(), s.sales, order.ID, "on behalf of customer")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = s.refunds.RequestRefund(context.Background(), s.customer, order.ID+1000, "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func (s *refundsSuite) TestOnlySalesResolves() {
	t := s.T()
	order, product := s.deliveredOrder(1)

	refund, err := s.refunds.RequestRefund(context.Background(), s.customer, order.ID, "wrong colour")
	require.NoError(t, err)

	_, err = s.refunds.ResolveRefund(context.Background(), s.pm, refund.ID, refunds.DecisionApprove, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	stored, err := store.GetRefundRequest(context.Background(), s.pg.DB, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusRequested, stored.Status)
	assert.Equal(t, 4, testutil.Stock(t, s.pg.DB, product.ID))
}

func TestParseDecision(t *testing.T) {
	d, err := refunds.ParseDecision(" Approve ")
	require.NoError(t, err)
	assert.Equal(t, refunds.DecisionApprove, d)

	_, err = refunds.ParseDecision("maybe")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}
