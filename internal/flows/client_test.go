package flows

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
	"github.com/chatstack/routing-service/pkg/util"
)

func TestSyncContactFieldsPostsToContactEndpoint(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.FlowsConfig{BaseURL: srv.URL, TimeoutSeconds: 2}, zap.NewNop())
	err := c.SyncContactFields(context.Background(), "whatsapp:5215512345678", map[string]any{"plan": "gold"})
	require.NoError(t, err)

	require.Equal(t, "/api/v2/contacts/whatsapp:5215512345678/fields", gotPath)
	fields, ok := gotBody["fields"].(map[string]any)
	require.True(t, ok, "payload missing fields object: %v", gotBody)
	require.Equal(t, "gold", fields["plan"])
}

func TestSyncContactFieldsMapsEngineRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(config.FlowsConfig{BaseURL: srv.URL, TimeoutSeconds: 2}, zap.NewNop())
	err := c.SyncContactFields(context.Background(), "contact-1", map[string]any{"plan": "gold"})
	require.Error(t, err)

	domainErr := util.ToDomainError(err)
	require.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	require.Equal(t, http.StatusUnprocessableEntity, domainErr.Details["status"])
}

func TestSyncContactFieldsMapsTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(config.FlowsConfig{BaseURL: srv.URL, TimeoutSeconds: 1}, zap.NewNop())
	err := c.SyncContactFields(context.Background(), "contact-1", nil)
	require.Error(t, err)
	require.Equal(t, "TRANSIENT_FAILURE", util.ToDomainError(err).Code)
}
