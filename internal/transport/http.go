package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canteenq/canteenq/internal/auth"
	apphttp "github.com/canteenq/canteenq/internal/handler/http"
	"github.com/canteenq/canteenq/internal/order"
	"github.com/canteenq/canteenq/internal/queue"
	"github.com/canteenq/canteenq/internal/stall"
)

// NewRouter wires repositories, services and handlers onto one chi mux.
func NewRouter(dbPool *pgxpool.Pool) *chi.Mux {
	stallRepo := stall.NewRepository(dbPool)
	queueRepo := queue.NewRepository(dbPool)
	orderRepo := order.NewRepository(dbPool)

	orderSvc := order.NewService(orderRepo, stallRepo, queueRepo)
	ledger := queue.NewLedger(queueRepo, stallRepo, orderRepo)

	orderHandler := apphttp.NewOrderHandler(orderSvc)
	queueHandler := apphttp.NewQueueHandler(ledger)
	stallHandler := apphttp.NewStallHandler(stallRepo)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
		stallHandler.RegisterRoutes(r)
		queueHandler.RegisterPublicRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		orderHandler.RegisterRoutes(r)
		queueHandler.RegisterRoutes(r)
	})

	return r
}
