// Package mocksaby provides a mock Saby CRM server for testing. It speaks
// the same wire protocol as the real service: the service-authorization
// endpoint, the logout event, and the JSON-RPC CRM endpoint with tabular
// record results.
package mocksaby

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Server is a mock Saby CRM backend.
type Server struct {
	router *chi.Mux
	state  *state
}

// New creates a mock server with empty state. Any credential triple with all
// three fields present is accepted; use FailAuth to simulate rejections.
func New() *Server {
	s := &Server{
		router: chi.NewRouter(),
		state:  newState(),
	}

	s.router.Post("/oauth/service/", s.handleAuth)
	s.router.Post("/service/", s.handleService)

	s.router.Post("/admin/themes", s.handleAdminAddTheme)
	s.router.Get("/admin/state", s.handleAdminState)
	s.router.Post("/admin/reset", s.handleAdminReset)

	return s
}

// Handler returns the mock's HTTP handler for mounting in httptest or a
// standalone server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddTheme seeds a CRM theme.
func (s *Server) AddTheme(name string, id, regulation int64) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.themes[name] = Theme{ID: id, Name: name, Regulation: regulation}
}

// RegisterClient seeds a counterparty so tax-ID lookups succeed.
func (s *Server) RegisterClient(inn, kpp, faceID string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.clients[clientKey(inn, kpp)] = faceID
}

// GetLead returns a stored lead by document ID, or nil.
func (s *Server) GetLead(documentID int64) *Lead {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	lead, ok := s.state.leads[documentID]
	if !ok {
		return nil
	}
	copied := *lead
	return &copied
}

// SetLeadState overrides a stored lead's state, for status-polling tests.
func (s *Server) SetLeadState(documentID int64, state string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if lead, ok := s.state.leads[documentID]; ok {
		lead.State = state
	}
}

// AuthCalls returns how many authorization calls the mock has served,
// including rejected ones.
func (s *Server) AuthCalls() int {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	return s.state.authCalls
}

// FailAuth makes the authorization endpoint return the given HTTP status.
// Pass 0 to restore normal behavior.
func (s *Server) FailAuth(status int) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.failures.AuthStatus = status
}

// RejectTokens toggles 401 responses from the service endpoint, simulating a
// server-side token revocation.
func (s *Server) RejectTokens(reject bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.failures.RejectTokens = reject
}

// RevokeAllTokens invalidates every issued token without touching the
// authorization endpoint, simulating a server-side session purge. Fresh
// authorizations still succeed.
func (s *Server) RevokeAllTokens() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	for token := range s.state.tokens {
		s.state.tokens[token] = false
	}
}

// FailRPC makes every method call return a JSON-RPC error. Pass code 0 to
// restore normal behavior.
func (s *Server) FailRPC(code int, message string) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.failures.RPCErrorCode = code
	s.state.failures.RPCErrorMessage = message
}

// TokenRevoked reports whether the given token was revoked via logout.
func (s *Server) TokenRevoked(token string) bool {
	s.state.mu.RLock()
	defer s.state.mu.RUnlock()
	valid, known := s.state.tokens[token]
	return known && !valid
}

// mintToken issues a new valid token and session ID.
func (s *Server) mintToken() (token, sid string) {
	s.state.nextToken++
	token = fmt.Sprintf("mock-token-%d", s.state.nextToken)
	sid = fmt.Sprintf("mock-sid-%d", s.state.nextToken)
	s.state.tokens[token] = true
	return token, sid
}
