package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/ordercore/internal/cache"
	"github.com/kiwari-pos/ordercore/internal/config"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/enum"
	"github.com/kiwari-pos/ordercore/internal/handler"
	mw "github.com/kiwari-pos/ordercore/internal/middleware"
	"github.com/kiwari-pos/ordercore/internal/service"
	"github.com/kiwari-pos/ordercore/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// Deps are the long-lived components the routes are built from.
type Deps struct {
	Pool        service.TxBeginner
	Queries     *database.Queries
	Hub         *ws.Hub
	StatusCache cache.StatusCache
	Snap        service.SnapClient
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, outlet scoping, and role-based middleware as needed.
func New(cfg *config.Config, deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		hlog.FromRequest(r).WithLevel(level).Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", status).Int("size", size).Dur("duration", duration).Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.IdempotencyKeyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	statusCache := deps.StatusCache
	if statusCache == nil {
		statusCache = cache.NopStatusCache{}
	}

	checkoutService := service.NewCheckoutService(deps.Pool,
		func(db database.DBTX) service.CheckoutStore { return database.New(db) },
		deps.Queries,
	)
	lifecycleService := service.NewLifecycleService(deps.Pool,
		func(db database.DBTX) service.LifecycleStore { return database.New(db) },
		statusCache,
	)
	reconcileService := service.NewReconcileService(deps.Pool,
		func(db database.DBTX) service.ReconcileStore { return database.New(db) },
		cfg.MidtransServerKey,
		statusCache,
	)
	paymentService := service.NewPaymentTokenService(deps.Queries, deps.Snap)

	// Public routes: customer self-ordering and provider callbacks.
	publicHandler := handler.NewPublicHandler(checkoutService, deps.Queries, statusCache)
	r.Route("/public", publicHandler.RegisterRoutes)

	webhookHandler := handler.NewWebhookHandler(reconcileService)
	r.Route("/webhooks", webhookHandler.RegisterRoutes)

	// WebSocket route (handles auth internally via query param)
	r.Method(http.MethodGet, "/ws/outlets/{oid}/orders", ws.NewHandler(deps.Hub, cfg.JWTSecret, cfg.AllowedOrigins))

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/outlets/{oid}", func(r chi.Router) {
			r.Use(mw.RequireOutlet)

			orderHandler := handler.NewOrderHandler(checkoutService, lifecycleService, deps.Queries)
			paymentHandler := handler.NewPaymentHandler(paymentService)
			r.Route("/orders", func(r chi.Router) {
				orderHandler.RegisterRoutes(r)

				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(enum.UserRoleOwner, enum.UserRoleManager, enum.UserRoleCashier))
					paymentHandler.RegisterRoutes(r)
				})
			})
		})
	})

	return r
}
