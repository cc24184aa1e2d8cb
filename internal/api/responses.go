package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/logger"
)

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, SuccessEnvelope{Data: data})
}

// WriteError renders err as the typed error envelope. Unknown errors become
// INTERNAL_ERROR and only their public message leaves the process.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := apperrors.As(err)
	if typed == nil {
		typed = apperrors.Wrap(apperrors.CodeInternal, err, "unexpected error")
	}

	meta := apperrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	switch typed.Code() {
	case apperrors.CodeInternal, apperrors.CodeDependency:
	case apperrors.CodeInsufficientStock:
		if id, ok := apperrors.ProductIDFrom(typed); ok {
			msg = fmt.Sprintf("insufficient_stock: %d", id)
		}
	default:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}

	payload := ErrorEnvelope{
		Error: APIError{
			Code:    string(typed.Code()),
			Message: msg,
		},
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"error_code": string(typed.Code()),
			"status":     meta.HTTPStatus,
		})
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(logCtx, "request.error", err)
		} else {
			logg.Info(logCtx, "request.rejected")
		}
	}

	writeJSON(w, meta.HTTPStatus, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
