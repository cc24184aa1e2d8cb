package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/models"
)

const (
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"
	userRoleHeader  = "X-User-Role"
)

type ctxKey string

const actorKey ctxKey = "actor"

func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					ctx := r.Context()
					if logg != nil {
						ctx = logg.WithFields(ctx, map[string]any{"panic": rec})
						logg.Error(ctx, "panic.recovered", err)
					}
					WriteError(ctx, logg, w, apperrors.Wrap(apperrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
				})
				logg.Info(ctx, "request.start")
			}

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()

			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"status":      rec.status,
					"duration_ms": time.Since(start).Milliseconds(),
				})
				logg.Info(ctx, "request.complete")
			}
		})
	}
}

// Actor reads the caller identity forwarded by the gateway in front of the
// service. Requests without a valid identity are rejected.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(userIDHeader)), 10, 64)
			if err != nil || userID <= 0 {
				WriteError(r.Context(), logg, w, apperrors.New(apperrors.CodeUnauthorized, "missing caller identity"))
				return
			}

			role, err := models.ParseRole(strings.TrimSpace(r.Header.Get(userRoleHeader)))
			if err != nil {
				WriteError(r.Context(), logg, w, apperrors.New(apperrors.CodeUnauthorized, "missing caller role"))
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, models.Actor{UserID: userID, Role: role})
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRoles rejects callers whose role is not listed.
func RequireRoles(logg *logger.Logger, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				WriteError(r.Context(), logg, w, apperrors.New(apperrors.CodeUnauthorized, "missing caller identity"))
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			WriteError(r.Context(), logg, w, apperrors.New(apperrors.CodeForbidden, "role not permitted"))
		})
	}
}

func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	if ctx == nil {
		return models.Actor{}, false
	}
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// WithActor is used by tests and internal callers to seed the identity.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
