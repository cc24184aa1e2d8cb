package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/safar/electrostore/internal/api"
	"github.com/safar/electrostore/internal/cardvault"
	"github.com/safar/electrostore/internal/checkout"
	"github.com/safar/electrostore/internal/inventory"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/orders"
	"github.com/safar/electrostore/internal/refunds"
	"github.com/safar/electrostore/internal/revenue"
	"github.com/safar/electrostore/internal/testutil"
)

type flowSuite struct {
	suite.Suite

	pg      *testutil.Postgres
	handler http.Handler
}

func TestFlowSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	suite.Run(t, new(flowSuite))
}

func (s *flowSuite) SetupSuite() {
	var err error
	s.pg, err = testutil.StartPostgres(context.Background())
	s.Require().NoError(err)

	vault, err := cardvault.New(bytes.Repeat([]byte{3}, 32))
	s.Require().NoError(err)

	ledger := inventory.NewLedger(nil, nil)
	machine, err := orders.NewMachine(ledger, nil, nil)
	s.Require().NoError(err)
	checkoutSvc, err := checkout.NewService(s.pg.DB, ledger, vault, nil, nil)
	s.Require().NoError(err)
	orderSvc, err := orders.NewService(s.pg.DB, machine, nil)
	s.Require().NoError(err)
	refundSvc, err := refunds.NewService(s.pg.DB, machine, nil)
	s.Require().NoError(err)
	revenueSvc, err := revenue.NewService(s.pg.DB)
	s.Require().NoError(err)

	s.handler = api.NewRouter(api.Deps{
		Checkout: checkoutSvc,
		Orders:   orderSvc,
		Refunds:  refundSvc,
		Revenue:  revenueSvc,
	})
}

func (s *flowSuite) TearDownSuite() {
	s.NoError(s.pg.Close(context.Background()))
}

func (s *flowSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background()))
}

func (s *flowSuite) call(method, path string, actor *models.User, body any) (*httptest.ResponseRecorder, map[string]any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		s.Require().NoError(err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("X-User-Id", strconv.FormatInt(actor.ID, 10))
		req.Header.Set("X-User-Role", string(actor.Role))
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func checkoutPayload(productID int64, quantity int) map[string]any {
	return map[string]any{
		"items":            []map[string]any{{"product_id": productID, "quantity": quantity}},
		"delivery_address": "221B Baker Street, London",
		"payment": map[string]any{
			"card_number": "4000056655665556",
			"card_holder": "Grace Hopper",
			"expiry":      "09/31",
			"cvv":         "987",
		},
	}
}

func (s *flowSuite) TestConcurrentCheckoutSellsEachUnitOnce() {
	t := s.T()
	product := testutil.CreateProduct(t, s.pg.DB, "499.00", "300.00", 3)

	const buyers = 8
	customers := make([]*models.User, buyers)
	for i := range customers {
		customers[i] = testutil.CreateUser(t, s.pg.DB, models.RoleCustomer)
	}

	var wg sync.WaitGroup
	codes := make(chan int, buyers)
	messages := make(chan string, buyers)
	for _, customer := range customers {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			rec, body := s.call(http.MethodPost, "/api/v1/checkout", u, checkoutPayload(product.ID, 1))
			codes <- rec.Code
			if rec.Code == http.StatusConflict {
				if errBody, ok := body["error"].(map[string]any); ok {
					messages <- fmt.Sprint(errBody["message"])
				}
			}
		}(customer)
	}
	wg.Wait()
	close(codes)
	close(messages)

	created, conflicts := 0, 0
	for code := range codes {
		switch code {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflicts++
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	for msg := range messages {
		s.Equal(fmt.Sprintf("insufficient_stock: %d", product.ID), msg)
	}

	s.Equal(3, created)
	s.Equal(buyers-3, conflicts)
	s.Equal(0, testutil.Stock(t, s.pg.DB, product.ID))
	s.Equal(3, testutil.CountRows(t, s.pg.DB, "orders"))
}

func (s *flowSuite) TestOrderLifecycleThroughRefund() {
	t := s.T()
	customer := testutil.CreateUser(t, s.pg.DB, models.RoleCustomer)
	pm := testutil.CreateUser(t, s.pg.DB, models.RoleProductManager)
	sales := testutil.CreateUser(t, s.pg.DB, models.RoleSalesManager)
	product := testutil.CreateProduct(t, s.pg.DB, "100.00", "50.00", 4)

	rec, body := s.call(http.MethodPost, "/api/v1/checkout", customer, checkoutPayload(product.ID, 2))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	data := body["data"].(map[string]any)
	orderID := int64(data["order_id"].(float64))
	s.True(decimal.RequireFromString("200").Equal(decimal.RequireFromString(fmt.Sprint(data["total_amount"]))))
	s.Equal(2, testutil.Stock(t, s.pg.DB, product.ID))

	today := time.Now().UTC().Format("2006-01-02")
	revenuePath := "/api/v1/manage/revenue?start=" + today + "&end=" + today

	rec, _ = s.call(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/refund", orderID), customer, map[string]any{"reason": "too early"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec, _ = s.call(http.MethodPatch, fmt.Sprintf("/api/v1/manage/orders/%d/status", orderID), customer, map[string]any{"status": "delivered"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec, _ = s.call(http.MethodPatch, fmt.Sprintf("/api/v1/manage/orders/%d/status", orderID), pm, map[string]any{"status": "delivered"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec, body = s.call(http.MethodGet, revenuePath, sales, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	report := body["data"].(map[string]any)
	s.True(decimal.RequireFromString("200").Equal(decimal.RequireFromString(fmt.Sprint(report["total_revenue"]))))
	s.True(decimal.RequireFromString("100").Equal(decimal.RequireFromString(fmt.Sprint(report["total_profit"]))))

	rec, _ = s.call(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), customer, nil)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec, body = s.call(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/refund", orderID), customer, map[string]any{"reason": "screen arrived cracked"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	refundID := int64(body["data"].(map[string]any)["id"].(float64))

	rec, _ = s.call(http.MethodPost, fmt.Sprintf("/api/v1/manage/refunds/%d/resolve", refundID), pm, map[string]any{"decision": "approve"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec, _ = s.call(http.MethodPost, fmt.Sprintf("/api/v1/manage/refunds/%d/resolve", refundID), sales, map[string]any{"decision": "approve", "note": "replacement shipped"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(4, testutil.Stock(t, s.pg.DB, product.ID))

	rec, body = s.call(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), customer, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(string(models.OrderStatusRefundApproved), body["data"].(map[string]any)["status"])

	rec, body = s.call(http.MethodGet, revenuePath, sales, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	report = body["data"].(map[string]any)
	s.True(decimal.Zero.Equal(decimal.RequireFromString(fmt.Sprint(report["total_revenue"]))))
}

func (s *flowSuite) TestCustomersCannotSeeOtherOrders() {
	t := s.T()
	owner := testutil.CreateUser(t, s.pg.DB, models.RoleCustomer)
	stranger := testutil.CreateUser(t, s.pg.DB, models.RoleCustomer)
	product := testutil.CreateProduct(t, s.pg.DB, "20.00", "", 10)

	rec, body := s.call(http.MethodPost, "/api/v1/checkout", owner, checkoutPayload(product.ID, 1))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	orderID := int64(body["data"].(map[string]any)["order_id"].(float64))

	rec, _ = s.call(http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", orderID), stranger, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec, _ = s.call(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/cancel", orderID), stranger, nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(9, testutil.Stock(t, s.pg.DB, product.ID))

	rec, body = s.call(http.MethodGet, "/api/v1/orders", stranger, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	items, _ := body["data"].(map[string]any)["items"].([]any)
	s.Empty(items)
}
