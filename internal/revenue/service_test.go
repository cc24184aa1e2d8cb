package revenue_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/safar/electrostore/internal/cardvault"
	"github.com/safar/electrostore/internal/checkout"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/orders"
	"github.com/safar/electrostore/internal/revenue"
	"github.com/safar/electrostore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type revenueSuite struct {
	suite.Suite

	pg      *testutil.Postgres
	ledger  *inventory.Ledger
	vault   *cardvault.Vault
	orders  *orders.Service
	revenue *revenue.Service

	customer *models.User
	pm       models.Actor
}

func TestRevenueSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	suite.Run(t, new(revenueSuite))
}

func (s *revenueSuite) SetupSuite() {
	var err error
	s.pg, err = testutil.StartPostgres(context.Background())
	s.Require().NoError(err)

	s.vault, err = cardvault.New(bytes.Repeat([]byte{9}, 32))
	s.Require().NoError(err)
	s.ledger = inventory.NewLedger(nil, nil)

	machine, err := orders.NewMachine(s.ledger, nil, nil)
	s.Require().NoError(err)
	s.orders, err = orders.NewService(s.pg.DB, machine, nil)
	s.Require().NoError(err)

	s.revenue, err = revenue.NewService(s.pg.DB)
	s.Require().NoError(err)
}

func (s *revenueSuite) TearDownSuite() {
	s.NoError(s.pg.Close(context.Background()))
}

func (s *revenueSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
	s.customer = testutil.CreateUser(s.T(), s.pg.DB, models.RoleCustomer)
	pm := testutil.CreateUser(s.T(), s.pg.DB, models.RoleProductManager)
	s.pm = models.Actor{UserID: pm.ID, Role: pm.Role}
}

func (s *revenueSuite) placeAt(at time.Time, lines ...inventory.Line) *models.Order {
	svc, err := checkout.NewService(s.pg.DB, s.ledger, s.vault, nil, nil)
	s.Require().NoError(err)
	svc.WithClock(func() time.Time { return at })

	order, err := svc.CreateOrder(context.Background(), checkout.CreateOrderRequest{
		UserID:          s.customer.ID,
		Lines:           lines,
		DeliveryAddress: "Baker Street",
		Payment: checkout.PaymentDetails{
			CardNumber: "4111111111111111", CardHolder: "J. Watson", Expiry: "07/29", CVV: "777",
		},
	})
	s.Require().NoError(err)
	return order
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *revenueSuite) TestCancelledOrdersExcluded() {
	t := s.T()
	ctx := context.Background()
	tv := testutil.CreateProduct(t, s.pg.DB, "100", "50", 5)
	cable := testutil.CreateProduct(t, s.pg.DB, "50", "", 5)

	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	delivered := s.placeAt(at, inventory.Line{ProductID: tv.ID, Quantity: 1})
	cancelled := s.placeAt(at.Add(time.Hour), inventory.Line{ProductID: cable.ID, Quantity: 1})

	_, err := s.orders.UpdateStatus(ctx, s.pm, delivered.ID, models.OrderStatusDelivered, nil)
	require.NoError(t, err)
	_, err = s.orders.Cancel(ctx, s.pm, cancelled.ID, nil)
	require.NoError(t, err)

	report, err := s.revenue.RevenueForRange(ctx, day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)

	assert.Equal(t, "100.00", report.TotalRevenue.StringFixed(2))
	assert.Equal(t, "50.00", report.TotalCost.StringFixed(2))
	assert.Equal(t, "50.00", report.TotalProfit.StringFixed(2))
	assert.Equal(t, 1, report.OrderCount)
	require.Len(t, report.Daily, 1)
	assert.Equal(t, "2026-03-10", report.Daily[0].Date)
}

func (s *revenueSuite) TestRangeIsInclusiveAndSnapshotsAreStable() {
	t := s.T()
	ctx := context.Background()
	product := testutil.CreateProduct(t, s.pg.DB, "30", "", 20)

	s.placeAt(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 1})
	s.placeAt(time.Date(2026, 4, 3, 23, 59, 59, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 2})
	s.placeAt(time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 4})

	before, err := s.revenue.RevenueForRange(ctx, day(2026, 4, 1), day(2026, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, "90.00", before.TotalRevenue.StringFixed(2))
	assert.Equal(t, "45.00", before.TotalCost.StringFixed(2))
	assert.Equal(t, 2, before.OrderCount)
	require.Len(t, before.Daily, 2)
	assert.Equal(t, "2026-04-01", before.Daily[0].Date)
	assert.Equal(t, "2026-04-03", before.Daily[1].Date)
	assert.Equal(t, "60.00", before.Daily[1].Revenue.StringFixed(2))

	_, err = s.pg.DB.ExecContext(ctx, `UPDATE products SET base_price = 1000, cost = 999 WHERE id = $1`, product.ID)
	require.NoError(t, err)

	after, err := s.revenue.RevenueForRange(ctx, day(2026, 4, 1), day(2026, 4, 3))
	require.NoError(t, err)
	assert.True(t, before.TotalRevenue.Equal(after.TotalRevenue))
	assert.True(t, before.TotalCost.Equal(after.TotalCost))
}

func (s *revenueSuite) TestRefundApprovedExcludedRefundDeniedCounted() {
	t := s.T()
	ctx := context.Background()
	product := testutil.CreateProduct(t, s.pg.DB, "10", "4", 10)

	at := time.Date(2026, 7, 7, 12, 0, 0, 0, time.UTC)
	refunded := s.placeAt(at, inventory.Line{ProductID: product.ID, Quantity: 1})
	denied := s.placeAt(at, inventory.Line{ProductID: product.ID, Quantity: 2})

	_, err := s.pg.DB.ExecContext(ctx, `UPDATE orders SET status = 'refund-approved' WHERE id = $1`, refunded.ID)
	require.NoError(t, err)
	_, err = s.pg.DB.ExecContext(ctx, `UPDATE orders SET status = 'refund-denied' WHERE id = $1`, denied.ID)
	require.NoError(t, err)

	report, err := s.revenue.RevenueForRange(ctx, day(2026, 7, 7), day(2026, 7, 7))
	require.NoError(t, err)
	assert.Equal(t, "20.00", report.TotalRevenue.StringFixed(2))
	assert.Equal(t, 1, report.OrderCount)

	monthly, err := s.revenue.MonthlySummary(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, "20.00", monthly[6].Revenue.StringFixed(2))
	assert.Equal(t, 2, monthly[6].ItemsSold)
}

func (s *revenueSuite) TestMonthlySummaryHasTwelveMonths() {
	t := s.T()
	ctx := context.Background()
	product := testutil.CreateProduct(t, s.pg.DB, "25", "", 20)

	s.placeAt(time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 2})
	s.placeAt(time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 1})
	s.placeAt(time.Date(2026, 11, 1, 10, 0, 0, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 3})
	s.placeAt(time.Date(2025, 11, 1, 10, 0, 0, 0, time.UTC), inventory.Line{ProductID: product.ID, Quantity: 3})

	summary, err := s.revenue.MonthlySummary(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, summary, 12)

	for i, m := range summary {
		assert.Equal(t, i+1, m.Month)
	}
	assert.Equal(t, "75.00", summary[1].Revenue.StringFixed(2))
	assert.Equal(t, 2, summary[1].OrderCount)
	assert.Equal(t, 3, summary[1].ItemsSold)
	assert.Equal(t, "75.00", summary[10].Revenue.StringFixed(2))
	assert.True(t, summary[0].Revenue.IsZero())
	assert.Equal(t, 0, summary[0].OrderCount)
}

func (s *revenueSuite) TestValidation() {
	ctx := context.Background()

	_, err := s.revenue.RevenueForRange(ctx, day(2026, 5, 2), day(2026, 5, 1))
	assert.True(s.T(), apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = s.revenue.MonthlySummary(ctx, 0)
	assert.True(s.T(), apperrors.IsCode(err, apperrors.CodeValidation))

	empty, err := s.revenue.RevenueForRange(ctx, day(2030, 1, 1), day(2030, 1, 1))
	require.NoError(s.T(), err)
	assert.True(s.T(), empty.TotalRevenue.IsZero())
	assert.Empty(s.T(), empty.Daily)
}

func TestParseDate(t *testing.T) {
	d, err := revenue.ParseDate("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), d)

	_, err = revenue.ParseDate("28/02/2026")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}
