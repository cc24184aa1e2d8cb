package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/safar/electrostore/internal/errors"
	"github.com/safar/electrostore/internal/idempotency"
	"github.com/safar/electrostore/internal/logger"
	"github.com/safar/electrostore/internal/models"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger         *logger.Logger
	DB             Pinger
	Redis          Pinger
	Gatherer       prometheus.Gatherer
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	Checkout CheckoutService
	Orders   OrderService
	Refunds  RefundService
	Revenue  RevenueService
}

func NewRouter(deps Deps) http.Handler {
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := chi.NewRouter()
	r.Use(
		Recoverer(logg),
		RequestID(logg),
		Logging(logg),
	)

	r.Get("/health", Health(deps.DB, deps.Redis, logg))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	idem := idempotency.Middleware(idempotency.Options{
		Store:  deps.Idempotency,
		TTL:    deps.IdempotencyTTL,
		Logger: logg,
		Scope:  idempotencyScope,
		WriteError: func(w http.ResponseWriter, r *http.Request, err error) {
			WriteError(r.Context(), logg, w, err)
		},
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Actor(logg))

		r.With(idem).Post("/checkout", Checkout(deps.Checkout, logg))
		r.Get("/notifications", ListNotifications(deps.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ListMyOrders(deps.Orders, logg))
			r.Get("/{id}", GetOrder(deps.Orders, logg))
			r.With(idem).Post("/{id}/cancel", CancelOrder(deps.Orders, logg))
			r.With(idem).Post("/{id}/refund", RequestRefund(deps.Refunds, logg))
		})

		r.Route("/manage", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(RequireRoles(logg, models.RoleProductManager, models.RoleSalesManager))
				r.Get("/orders", ListAllOrders(deps.Orders, logg))
				r.Patch("/orders/{id}/status", UpdateOrderStatus(deps.Orders, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireRoles(logg, models.RoleSalesManager))
				r.Get("/refunds", ListRefunds(deps.Refunds, logg))
				r.With(idem).Post("/refunds/{id}/resolve", ResolveRefund(deps.Refunds, logg))
				r.Get("/revenue", RevenueRange(deps.Revenue, logg))
				r.Get("/revenue/monthly", RevenueMonthly(deps.Revenue, logg))
			})
		})
	})

	return r
}

// Health pings the database and, when configured, redis.
func Health(db, redis Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := map[string]string{"status": "ok", "database": "ok"}
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				WriteError(r.Context(), logg, w, apperrors.Wrap(apperrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				WriteError(r.Context(), logg, w, apperrors.Wrap(apperrors.CodeDependency, err, "redis unavailable"))
				return
			}
			status["redis"] = "ok"
		}

		WriteSuccess(w, status)
	}
}

func idempotencyScope(r *http.Request) string {
	actor, _ := ActorFromContext(r.Context())
	return strconv.FormatInt(actor.UserID, 10) + ":" + r.Method + ":" + r.URL.Path
}
