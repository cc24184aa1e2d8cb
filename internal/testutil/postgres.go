// Package testutil starts a migrated postgres for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/safar/electrostore/internal/database"
	"github.com/safar/electrostore/internal/models"
	"github.com/safar/electrostore/internal/store"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

type Postgres struct {
	DB        *sql.DB
	DSN       string
	container testcontainers.Container
}

// StartPostgres runs a postgres container and applies every migration.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("electrostore"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := database.Migrate(ctx, db, "up"); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &Postgres{DB: db, DSN: dsn, container: container}, nil
}

func (p *Postgres) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if p.DB != nil {
		_ = p.DB.Close()
	}
	if p.container != nil {
		return p.container.Terminate(ctx)
	}
	return nil
}

// Truncate empties every table between tests.
func (p *Postgres) Truncate(ctx context.Context) error {
	tables := []string{
		"notifications", "refund_requests", "payments", "order_items",
		"orders", "discounts", "products", "users",
	}
	_, err := p.DB.ExecContext(ctx,
		"TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	return err
}

func CreateUser(t testing.TB, db *sql.DB, role models.Role) *models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), db, gofakeit.Email(), gofakeit.Name(), role)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateProduct inserts an approved, visible product with the given price,
// cost ("" leaves it unset) and stock.
func CreateProduct(t testing.TB, db *sql.DB, price, cost string, stock int) *models.Product {
	t.Helper()

	params := store.CreateProductParams{
		SKU:           gofakeit.Regex("[A-Z]{3}-[0-9]{6}"),
		Name:          gofakeit.ProductName(),
		Description:   gofakeit.ProductDescription(),
		StockQuantity: stock,
		PriceApproved: true,
		Visible:       true,
	}
	if price != "" {
		params.BasePrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if cost != "" {
		params.Cost = decimal.NewNullDecimal(decimal.RequireFromString(cost))
	}

	product, err := store.CreateProduct(context.Background(), db, params)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func Stock(t testing.TB, db *sql.DB, productID int64) int {
	t.Helper()
	product, err := store.GetProduct(context.Background(), db, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	return product.StockQuantity
}

func CountRows(t testing.TB, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
