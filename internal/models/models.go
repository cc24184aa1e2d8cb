package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID            int64               `json:"id"`
	SKU           string              `json:"sku"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	BasePrice     decimal.NullDecimal `json:"base_price"`
	Cost          decimal.NullDecimal `json:"cost"`
	StockQuantity int                 `json:"stock_quantity"`
	PriceApproved bool                `json:"price_approved"`
	Visible       bool                `json:"visible"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Version       int                 `json:"version"`
}

// Purchasable reports whether the product can be priced at checkout.
func (p Product) Purchasable() bool {
	return p.BasePrice.Valid && p.PriceApproved
}

type Discount struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Type      DiscountType    `json:"type"`
	Value     decimal.Decimal `json:"value"`
	StartAt   time.Time       `json:"start_at"`
	EndAt     time.Time       `json:"end_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// ActiveAt reports whether at falls inside the half-open [StartAt, EndAt) window.
func (d Discount) ActiveAt(at time.Time) bool {
	return !at.Before(d.StartAt) && at.Before(d.EndAt)
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	AdminNote       *string         `json:"admin_note,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int             `json:"version"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem carries the price and cost snapshots taken at checkout.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentRecord keeps the sealed card fields for record keeping only.
type PaymentRecord struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"order_id"`
	CardNumberEnc []byte    `json:"-"`
	CardHolderEnc []byte    `json:"-"`
	CardExpiryEnc []byte    `json:"-"`
	CardCVVEnc    []byte    `json:"-"`
	CardLast4     string    `json:"card_last4"`
	CreatedAt     time.Time `json:"created_at"`
}

type RefundRequest struct {
	ID         int64        `json:"id"`
	OrderID    int64        `json:"order_id"`
	UserID     int64        `json:"user_id"`
	Reason     string       `json:"reason"`
	Status     RefundStatus `json:"status"`
	AdminNote  *string      `json:"admin_note,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	OrderID   *int64    `json:"order_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the caller identity forwarded by the gateway.
type Actor struct {
	UserID int64
	Role   Role
}
