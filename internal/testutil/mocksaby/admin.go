package mocksaby

import (
	"encoding/json"
	"net/http"
)

// addThemeRequest is the body for POST /admin/themes.
type addThemeRequest struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Regulation int64  `json:"regulation"`
}

// stateResponse is the body for GET /admin/state.
type stateResponse struct {
	Themes    []Theme `json:"themes"`
	Leads     []Lead  `json:"leads"`
	AuthCalls int     `json:"auth_calls"`
}

// handleAdminAddTheme seeds a theme over HTTP, for standalone deployments
// where the Go API is out of reach.
func (s *Server) handleAdminAddTheme(w http.ResponseWriter, r *http.Request) {
	var req addThemeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	s.AddTheme(req.Name, req.ID, req.Regulation)
	writeJSON(w, http.StatusCreated, req)
}

// handleAdminState dumps the mock state. Also serves as the container
// health check target.
func (s *Server) handleAdminState(w http.ResponseWriter, r *http.Request) {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()

	resp := stateResponse{
		Themes:    make([]Theme, 0, len(s.state.themes)),
		Leads:     make([]Lead, 0, len(s.state.leads)),
		AuthCalls: s.state.authCalls,
	}
	for _, t := range s.state.themes {
		resp.Themes = append(resp.Themes, t)
	}
	for _, l := range s.state.leads {
		resp.Leads = append(resp.Leads, *l)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleAdminReset clears all mock state, including failure injection.
func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	s.state.mu.Lock()
	s.state.themes = make(map[string]Theme)
	s.state.leads = make(map[int64]*Lead)
	s.state.clients = make(map[string]string)
	s.state.tokens = make(map[string]bool)
	s.state.authCalls = 0
	s.state.nextDocID = 1000
	s.state.failures = FailureInjection{}
	s.state.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
