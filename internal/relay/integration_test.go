package relay_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabyx/saby-crm-relay/internal/auth"
	"github.com/sabyx/saby-crm-relay/internal/relay"
	"github.com/sabyx/saby-crm-relay/internal/saby"
	"github.com/sabyx/saby-crm-relay/internal/storage"
	"github.com/sabyx/saby-crm-relay/internal/testutil/mocksaby"
)

// newRelayStack wires the full pipeline: relay router -> saby client -> mock CRM.
func newRelayStack(t *testing.T) (*mocksaby.Server, *httptest.Server) {
	t.Helper()

	mock := mocksaby.New()
	crm := httptest.NewServer(mock.Handler())
	t.Cleanup(crm.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := saby.NewClient(
		saby.Credentials{AppClientID: "client", AppSecret: "secret", SecretKey: "key"},
		saby.WithAuthServiceURL(crm.URL+"/oauth/service/"),
		saby.WithServiceURL(crm.URL+"/service/"),
		saby.WithLogger(logger),
	)

	handler := relay.NewHandler(client, logger)
	api := httptest.NewServer(relay.NewRouter(handler, nil, logger))
	t.Cleanup(api.Close)

	return mock, api
}

func TestRelayDealLifecycle(t *testing.T) {
	mock, api := newRelayStack(t)
	mock.AddTheme("Сайт", 11, 7)

	// Resolve the theme to a regulation ID
	resp, err := http.Get(api.URL + "/themes/Сайт")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var theme saby.Theme
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&theme))
	require.Equal(t, int64(7), theme.Regulation)

	// Create a deal against that regulation
	dealBody := `{"regulation":7,"contact_person":{"name":"Иванов Иван","phone":"89151111111"},"note":"from site"}`
	resp, err = http.Post(api.URL+"/deals", "application/json", bytes.NewReader([]byte(dealBody)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var deal struct {
		DocumentID int64  `json:"document_id"`
		UUID       string `json:"uuid"`
		State      string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&deal))
	assert.Positive(t, deal.DocumentID)
	assert.NotEmpty(t, deal.UUID)
	assert.Equal(t, "Новый", deal.State)

	// Poll the deal status after the CRM moves it forward
	mock.SetLeadState(deal.DocumentID, "В работе")

	resp, err = http.Get(api.URL + "/deals/" + jsonNumber(deal.DocumentID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "В работе", status["Состояние"])

	// One authorization served the whole session
	assert.Equal(t, 1, mock.AuthCalls())
}

func TestRelayThemeNotFound(t *testing.T) {
	_, api := newRelayStack(t)

	resp, err := http.Get(api.URL + "/themes/Незнакомая")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRelayFindOrCreateClient(t *testing.T) {
	mock, api := newRelayStack(t)
	mock.RegisterClient("7707083893", "770701001", "face-42")

	body := `{"name":"ООО Ромашка","inn":"7707083893","kpp":"770701001"}`
	resp, err := http.Post(api.URL+"/clients/find-or-create", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "face-42", result["client_id"])
}

func TestRelaySurvivesTokenRevocation(t *testing.T) {
	mock, api := newRelayStack(t)
	mock.AddTheme("Сайт", 11, 7)

	resp, err := http.Get(api.URL + "/themes/Сайт")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Server-side session purge between requests
	mock.RevokeAllTokens()

	resp, err = http.Get(api.URL + "/themes/Сайт")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "relay should renew the token transparently")
	assert.Equal(t, 2, mock.AuthCalls())
}

func TestRelayWithAPIKeyAuth(t *testing.T) {
	mock := mocksaby.New()
	crm := httptest.NewServer(mock.Handler())
	defer crm.Close()
	mock.AddTheme("Сайт", 11, 7)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := saby.NewClient(
		saby.Credentials{AppClientID: "client", AppSecret: "secret", SecretKey: "key"},
		saby.WithAuthServiceURL(crm.URL+"/oauth/service/"),
		saby.WithServiceURL(crm.URL+"/service/"),
		saby.WithLogger(logger),
	)

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	_, err = store.CreateRelayKey(context.Background(), "ci", "relay-secret")
	require.NoError(t, err)

	authMW := auth.Middleware(auth.NewValidator(store), logger)
	api := httptest.NewServer(relay.NewRouter(relay.NewHandler(client, logger), authMW, logger))
	defer api.Close()

	t.Run("rejects missing key", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/themes/Сайт")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts valid key", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, api.URL+"/themes/Сайт", nil)
		require.NoError(t, err)
		req.Header.Set("X-API-Key", "relay-secret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health open without key", func(t *testing.T) {
		resp, err := http.Get(api.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
