// Package relay implements the HTTP API relayed to Saby CRM.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sabyx/saby-crm-relay/internal/logging"
	"github.com/sabyx/saby-crm-relay/internal/record"
	"github.com/sabyx/saby-crm-relay/internal/saby"
)

// Version is reported by the health and info endpoints.
const Version = "1.0.0"

// healthProbeTheme is the theme name used to probe CRM connectivity.
const healthProbeTheme = "Test"

// SabyClient defines the CRM operations needed by the relay.
// This interface enables testing with mock implementations.
type SabyClient interface {
	// GetThemeByName resolves a CRM theme and its regulation ID by name.
	GetThemeByName(ctx context.Context, name string) (*saby.Theme, error)

	// CreateLead creates a deal in the CRM.
	CreateLead(ctx context.Context, lead *saby.LeadRequest) (*saby.Lead, error)

	// GetLeadStatus retrieves the current state of a deal.
	GetLeadStatus(ctx context.Context, documentID int64) (*record.Object, error)

	// FindOrCreateClient resolves a counterparty by tax IDs, creating it if missing.
	FindOrCreateClient(ctx context.Context, info *saby.ClientInfo) (string, error)
}

// Handler handles relay requests to Saby CRM.
type Handler struct {
	client SabyClient
	logger *slog.Logger
}

// NewHandler creates a new relay handler.
// If logger is nil, slog.Default() will be used.
func NewHandler(client SabyClient, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client: client,
		logger: logger,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode JSON response", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleSabyError maps Saby client errors to HTTP responses.
func (h *Handler) handleSabyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, saby.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("upstream request timed out", "error", err)
		writeError(w, http.StatusGatewayTimeout, "upstream request timed out")
	case errors.Is(err, saby.ErrAuthRejected):
		// The relay's own CRM credentials are bad, not the caller's key.
		h.logger.Error("upstream authentication failed", "error", err)
		writeError(w, http.StatusBadGateway, "upstream authentication failed")
	default:
		var apiErr *saby.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadGateway, apiErr.Message)
			return
		}
		h.logger.Error("saby CRM error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Version       string    `json:"version"`
	SabyConnected bool      `json:"saby_connected"`
}

// HandleHealth reports service health, probing CRM connectivity with a
// throwaway theme lookup. A failed probe degrades the status but still
// returns 200 so that load balancers keep the relay in rotation.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	connected := true
	if _, err := h.client.GetThemeByName(r.Context(), healthProbeTheme); err != nil {
		h.logger.Warn("saby CRM connection check failed", "error", err)
		connected = false
	}

	status := "healthy"
	if !connected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		Version:       Version,
		SabyConnected: connected,
	})
}

// HandleRoot returns a welcome message.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Saby CRM Relay - Integration with Saby CRM",
	})
}

// HandleInfo describes the API surface.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        "Saby CRM Relay",
		"version":     Version,
		"description": "Integration service for Saby CRM",
		"endpoints": map[string]string{
			"health":      "GET /health",
			"create_deal": "POST /deals",
			"get_deal":    "GET /deals/{dealID}",
			"get_theme":   "GET /themes/{themeName}",
			"find_client": "POST /clients/find-or-create",
			"webhook":     "POST /webhook/deal-created",
		},
		"features": map[string]bool{
			"saby_auth":         true,
			"deal_creation":     true,
			"client_management": true,
			"webhooks":          true,
		},
	})
}

// createDealRequest is the body of POST /deals.
type createDealRequest struct {
	Regulation  int64               `json:"regulation"`
	Responsible string              `json:"responsible,omitempty"`
	Client      *saby.ClientInfo    `json:"client,omitempty"`
	Contact     *saby.ContactPerson `json:"contact_person,omitempty"`
	Note        string              `json:"note,omitempty"`
}

// dealResponse is the body of a successful POST /deals.
type dealResponse struct {
	DocumentID int64               `json:"document_id"`
	UUID       string              `json:"uuid"`
	Regulation int64               `json:"regulation"`
	Client     *saby.ClientInfo    `json:"client,omitempty"`
	Contact    *saby.ContactPerson `json:"contact_person,omitempty"`
	Note       string              `json:"note,omitempty"`
	State      string              `json:"state,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// HandleCreateDeal creates a new deal in Saby CRM.
// POST /deals
func (h *Handler) HandleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Regulation <= 0 {
		writeError(w, http.StatusBadRequest, "regulation must be positive")
		return
	}
	if req.Client == nil && req.Contact == nil {
		writeError(w, http.StatusBadRequest, "either client or contact_person must be provided")
		return
	}
	if req.Contact != nil && req.Contact.Name == "" {
		writeError(w, http.StatusBadRequest, "contact_person name is required")
		return
	}
	if req.Client != nil && req.Client.Name == "" && req.Client.FaceID == "" {
		writeError(w, http.StatusBadRequest, "client name or face_id is required")
		return
	}

	lead, err := h.client.CreateLead(r.Context(), &saby.LeadRequest{
		Regulation:  req.Regulation,
		Responsible: req.Responsible,
		Client:      req.Client,
		Contact:     req.Contact,
		Note:        req.Note,
	})
	if err != nil {
		h.handleSabyError(w, err)
		return
	}

	h.logger.Info("deal created",
		"document_id", lead.DocumentID,
		"uuid", lead.DocumentUUID,
		"regulation", lead.Regulation,
	)

	writeJSON(w, http.StatusCreated, dealResponse{
		DocumentID: lead.DocumentID,
		UUID:       lead.DocumentUUID,
		Regulation: lead.Regulation,
		Client:     req.Client,
		Contact:    req.Contact,
		Note:       lead.Note,
		State:      lead.State,
		CreatedAt:  time.Now().UTC(),
	})
}

// HandleGetDeal returns the CRM status of a deal.
// GET /deals/{dealID}
func (h *Handler) HandleGetDeal(w http.ResponseWriter, r *http.Request) {
	dealIDStr := chi.URLParam(r, "dealID")
	dealID, err := strconv.ParseInt(dealIDStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deal ID")
		return
	}

	status, err := h.client.GetLeadStatus(r.Context(), dealID)
	if err != nil {
		h.handleSabyError(w, err)
		return
	}

	h.logger.Info("deal status retrieved", "deal_id", dealID)
	writeJSON(w, http.StatusOK, status)
}

// HandleGetTheme resolves a CRM theme by name.
// GET /themes/{themeName}
func (h *Handler) HandleGetTheme(w http.ResponseWriter, r *http.Request) {
	themeName := chi.URLParam(r, "themeName")
	if themeName == "" {
		writeError(w, http.StatusBadRequest, "missing theme name")
		return
	}

	theme, err := h.client.GetThemeByName(r.Context(), themeName)
	if err != nil {
		h.handleSabyError(w, err)
		return
	}

	if theme.Error != "" {
		writeError(w, http.StatusNotFound, theme.Error)
		return
	}

	h.logger.Info("theme retrieved", "theme", themeName, "regulation", theme.Regulation)
	writeJSON(w, http.StatusOK, theme)
}

// HandleFindOrCreateClient finds a counterparty by tax IDs, creating it if missing.
// POST /clients/find-or-create
func (h *Handler) HandleFindOrCreateClient(w http.ResponseWriter, r *http.Request) {
	var info saby.ClientInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if info.Name == "" && info.INN == "" {
		writeError(w, http.StatusBadRequest, "client name or inn is required")
		return
	}

	clientID, err := h.client.FindOrCreateClient(r.Context(), &info)
	if err != nil {
		h.handleSabyError(w, err)
		return
	}

	h.logger.Info("client processed", "client_id", clientID, "inn", info.INN)

	writeJSON(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"name":      info.Name,
		"inn":       info.INN,
		"kpp":       info.KPP,
	})
}

// webhookPayload is the body of POST /webhook/deal-created.
type webhookPayload struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// webhookLoggedFields are the event data fields safe to log. Anything else
// the CRM attaches (contact names, phone numbers) is redacted.
var webhookLoggedFields = []string{"event_type", "deal_id", "document_id", "status", "timestamp"}

// HandleWebhookDealCreated accepts deal creation events. The payload is
// logged and acknowledged; processing errors are reported in-band so the
// sender does not retry.
func (h *Handler) HandleWebhookDealCreated(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("webhook deal created",
		"event_type", payload.EventType,
		"data", string(logging.MaskJSONBody(payload.Data, webhookLoggedFields)),
	)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "processed",
		"message": "Deal creation webhook processed successfully",
	})
}
