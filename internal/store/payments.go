package store

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/models"
)

func InsertPayment(ctx context.Context, tx *sql.Tx, payment models.PaymentRecord) (*models.PaymentRecord, error) {
	created := payment

	err := tx.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, card_number_enc, card_holder_enc, card_expiry_enc,
		                       card_cvv_enc, card_last4, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		payment.OrderID,
		payment.CardNumberEnc,
		payment.CardHolderEnc,
		payment.CardExpiryEnc,
		payment.CardCVVEnc,
		payment.CardLast4,
	).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	return &created, nil
}

func GetPaymentByOrder(ctx context.Context, q Querier, orderID int64) (*models.PaymentRecord, error) {
	payment := &models.PaymentRecord{}

	err := q.QueryRowContext(ctx,
		`SELECT id, order_id, card_number_enc, card_holder_enc, card_expiry_enc,
		        card_cvv_enc, card_last4, created_at
		 FROM payments
		 WHERE order_id = $1`,
		orderID,
	).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.CardNumberEnc,
		&payment.CardHolderEnc,
		&payment.CardExpiryEnc,
		&payment.CardCVVEnc,
		&payment.CardLast4,
		&payment.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("payment")
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	return payment, nil
}
