package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmaxis-erp/pharmaxis-erp/internal/disposal"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/inventory"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/masterdata"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/observability"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/pos"
	"github.com/pharmaxis-erp/pharmaxis-erp/internal/transfer"
	"github.com/pharmaxis-erp/pharmaxis-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	InventoryHandler  *inventory.Handler
	POSHandler        *pos.Handler
	TransferHandler   *transfer.Handler
	DisposalHandler   *disposal.Handler
	MasterDataHandler *masterdata.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	Pool              *pgxpool.Pool
}

// NewRouter constructs the chi.Router with Pharmaxis defaults.
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

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		params.InventoryHandler.MountRoutes(r)
		params.POSHandler.MountRoutes(r)
		params.TransferHandler.MountRoutes(r)
		params.DisposalHandler.MountRoutes(r)
		if params.MasterDataHandler != nil {
			params.MasterDataHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
