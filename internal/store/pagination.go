package store

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"time"

	apperrors "github.com/safar/electrostore/internal/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type CursorPage struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

type OffsetPage struct {
	Items      any   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// cursorCeiling sorts after any created_at a row can carry.
var cursorCeiling = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor returns a cursor positioned after the newest row when encoded
// is empty.
func DecodeCursor(encoded string) (OrderCursor, error) {
	var cursor OrderCursor
	if encoded == "" {
		return OrderCursor{
			CreatedAt: cursorCeiling,
			ID:        math.MaxInt64,
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}

	if err := json.Unmarshal(data, &cursor); err != nil {
		return cursor, apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}
	return cursor, nil
}

// NormalizeLimit clamps a page size into [1, MaxPageSize].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

func totalPages(total int64, pageSize int) int {
	pages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		pages++
	}
	return pages
}
