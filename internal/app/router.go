package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-ims/meridian-ims/internal/catalog"
	"github.com/meridian-ims/meridian-ims/internal/invoicing"
	"github.com/meridian-ims/meridian-ims/internal/ledger"
	"github.com/meridian-ims/meridian-ims/internal/observability"
	"github.com/meridian-ims/meridian-ims/internal/purchasing"
	"github.com/meridian-ims/meridian-ims/internal/rbac"
	"github.com/meridian-ims/meridian-ims/internal/sales"
	"github.com/meridian-ims/meridian-ims/internal/users"
	"github.com/meridian-ims/meridian-ims/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	CatalogHandler    *catalog.Handler
	LedgerHandler     *ledger.Handler
	PurchasingHandler *purchasing.Handler
	SalesHandler      *sales.Handler
	InvoicingHandler  *invoicing.Handler
	UsersHandler      *users.Handler
	RBACHandler       *rbac.Handler
	JobsHandler       *jobs.Handler

	Pool           *pgxpool.Pool
	RBACMiddleware rbac.Middleware
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with the default stack and mounts every
// domain handler behind its permission guard.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Warn("health check ping", slog.Any("error", err))
				http.Error(w, `{"status":"degraded"}`, http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	guard := params.RBACMiddleware

	r.Route("/auth", params.UsersHandler.MountAuthRoutes)

	r.Route("/catalog", func(r chi.Router) {
		r.Use(guardReadWrite(guard, rbac.PermCatalogView, rbac.PermCatalogEdit))
		params.CatalogHandler.MountRoutes(r)
	})
	r.Route("/inventory", func(r chi.Router) {
		r.Use(guardReadWrite(guard, rbac.PermInventoryView, rbac.PermInventoryAdjust))
		params.LedgerHandler.MountRoutes(r)
	})
	r.Route("/purchasing", func(r chi.Router) {
		r.Use(guardReadWrite(guard, rbac.PermPurchasingView, rbac.PermPurchasingEdit, rbac.PermPurchasingRecv))
		params.PurchasingHandler.MountRoutes(r)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Use(guardReadWrite(guard, rbac.PermSalesView, rbac.PermSalesCreate))
		params.SalesHandler.MountRoutes(r)
	})
	r.Route("/invoices", func(r chi.Router) {
		r.Use(guardReadWrite(guard, rbac.PermInvoicingView, rbac.PermInvoicingIssue))
		params.InvoicingHandler.MountRoutes(r)
	})
	r.Route("/users", func(r chi.Router) {
		r.Use(guard.RequireAny(rbac.PermRolesAdminister))
		params.UsersHandler.MountRoutes(r)
	})
	r.Route("/rbac", func(r chi.Router) {
		r.Use(guard.RequireAll(rbac.PermRolesAdminister))
		params.RBACHandler.MountRoutes(r)
	})
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	return r
}

// guardReadWrite requires the read permission for safe methods and the write
// permission for everything else. Workflow services still re-check their own
// operation permissions, so this is the outer gate, not the only one.
func guardReadWrite(m rbac.Middleware, readPerm string, writePerms ...string) func(http.Handler) http.Handler {
	readGuard := m.RequireAny(append([]string{readPerm}, writePerms...)...)
	writeGuard := m.RequireAny(writePerms...)
	return func(next http.Handler) http.Handler {
		read := readGuard(next)
		write := writeGuard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				read.ServeHTTP(w, r)
			default:
				write.ServeHTTP(w, r)
			}
		})
	}
}
