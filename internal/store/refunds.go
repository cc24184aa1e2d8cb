package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/electrostore/internal/database"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/models"
)

const openRefundConstraint = "refund_requests_open_uidx"

const refundColumns = `id, order_id, user_id, reason, status, admin_note, created_at, resolved_at`

func scanRefund(row rowScanner, refund *models.RefundRequest) error {
	var adminNote sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&refund.ID,
		&refund.OrderID,
		&refund.UserID,
		&refund.Reason,
		&refund.Status,
		&adminNote,
		&refund.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return err
	}

	refund.AdminNote = nullStringPtr(adminNote)
	refund.ResolvedAt = nullTimePtr(resolvedAt)
	return nil
}

// CreateRefundRequest opens a request. A second open request for the same
// order is reported as CONFLICT.
func CreateRefundRequest(ctx context.Context, tx *sql.Tx, orderID, userID int64, reason string) (*models.RefundRequest, error) {
	refund := &models.RefundRequest{}

	query := `
		INSERT INTO refund_requests (order_id, user_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING ` + refundColumns

	err := scanRefund(tx.QueryRowContext(ctx, query, orderID, userID, reason, models.RefundStatusRequested), refund)
	if err != nil {
		if database.IsUniqueViolation(err, openRefundConstraint) {
			return nil, apperrors.Wrap(apperrors.CodeConflict, err, "an open refund request already exists").
				WithDetails(map[string]any{"order_id": orderID})
		}
		return nil, fmt.Errorf("create refund request: %w", err)
	}

	return refund, nil
}

func HasOpenRefund(ctx context.Context, q Querier, orderID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM refund_requests WHERE order_id = $1 AND status = $2)`,
		orderID, models.RefundStatusRequested).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open refund: %w", err)
	}
	return exists, nil
}

func GetRefundRequest(ctx context.Context, q Querier, id int64) (*models.RefundRequest, error) {
	return getRefund(ctx, q, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id)
}

func GetRefundRequestForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.RefundRequest, error) {
	return getRefund(ctx, tx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1 FOR UPDATE`, id)
}

func getRefund(ctx context.Context, q Querier, query string, id int64) (*models.RefundRequest, error) {
	refund := &models.RefundRequest{}
	if err := scanRefund(q.QueryRowContext(ctx, query, id), refund); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("refund request")
		}
		return nil, fmt.Errorf("get refund request: %w", err)
	}
	return refund, nil
}

func ResolveRefundRequest(ctx context.Context, tx *sql.Tx, id int64, status models.RefundStatus, adminNote *string, resolvedAt time.Time) (*models.RefundRequest, error) {
	refund := &models.RefundRequest{}

	query := `
		UPDATE refund_requests
		SET status = $1,
		    admin_note = $2,
		    resolved_at = $3
		WHERE id = $4
		  AND status = $5
		RETURNING ` + refundColumns

	err := scanRefund(tx.QueryRowContext(ctx, query, status, adminNote, resolvedAt, id, models.RefundStatusRequested), refund)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.CodeConflict, "refund request already resolved").
				WithDetails(map[string]any{"refund_id": id})
		}
		return nil, fmt.Errorf("resolve refund request: %w", err)
	}

	return refund, nil
}

// ListRefundRequests returns requests oldest first. A nil status lists all.
func ListRefundRequests(ctx context.Context, q Querier, status *models.RefundStatus) ([]models.RefundRequest, error) {
	var filter any
	if status != nil {
		filter = string(*status)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+refundColumns+`
		 FROM refund_requests
		 WHERE ($1::text IS NULL OR status = $1)
		 ORDER BY created_at, id`,
		filter)
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	defer rows.Close()

	refunds := []models.RefundRequest{}
	for rows.Next() {
		var refund models.RefundRequest
		if err := scanRefund(rows, &refund); err != nil {
			return nil, fmt.Errorf("scan refund request: %w", err)
		}
		refunds = append(refunds, refund)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return refunds, nil
}
