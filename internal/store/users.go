package store

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/models"
)

func CreateUser(ctx context.Context, q Querier, email, name string, role models.Role) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, name, role, created_at, updated_at, version)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		RETURNING id, email, name, role, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query, email, name, role).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, name, role, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func UserExists(ctx context.Context, q Querier, id int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
		id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}
