package relay

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sabyx/saby-crm-relay/internal/metrics"
	"github.com/sabyx/saby-crm-relay/internal/middleware"
)

// maxRequestBody caps inbound request bodies at 1 MiB. CRM payloads are
// small; anything bigger is a mistake or abuse.
const maxRequestBody = 1 << 20

// NewRouter creates a Chi router with all relay endpoints.
// authMiddleware guards the CRM endpoints; pass nil to run without inbound
// authentication. Health and discovery endpoints are always open.
func NewRouter(handler *Handler, authMiddleware func(http.Handler) http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	r.Use(middleware.MaxBodySize(maxRequestBody))
	r.Use(middleware.HTTPLogging(logger))

	// Open endpoints
	r.Get("/", handler.HandleRoot)
	r.Get("/health", handler.HandleHealth)
	r.Get("/info", handler.HandleInfo)

	// CRM endpoints, behind inbound API key auth when configured
	r.Group(func(r chi.Router) {
		if authMiddleware != nil {
			r.Use(authMiddleware)
		}

		r.Post("/deals", handler.HandleCreateDeal)
		r.Get("/deals/{dealID}", handler.HandleGetDeal)
		r.Get("/themes/{themeName}", handler.HandleGetTheme)
		r.Post("/clients/find-or-create", handler.HandleFindOrCreateClient)
		r.Post("/webhook/deal-created", handler.HandleWebhookDealCreated)
	})

	return r
}
