package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webhook-bridge/internal/auth"
	"webhook-bridge/internal/model"
	"webhook-bridge/internal/storage"
)

type testEnv struct {
	server *httptest.Server
	store  *storage.Storage
	authn  *auth.Authenticator
}

func newTestEnv(t *testing.T, withAuth bool) *testEnv {
	t.Helper()
	s, err := storage.NewStorage(storage.DriverSQLite, ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var authn *auth.Authenticator
	if withAuth {
		authn = auth.NewAuthenticator("test-secret", time.Hour)
	}
	srv := httptest.NewServer(NewAPI(s, authn, nil).Router())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, store: s, authn: authn}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		token, err := e.authn.GenerateToken(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, false)

	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	assert.Equal(t, "2.0", doc["swagger"])

	require.NoError(t, env.store.Close())
	resp = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestManagementRoutesDisabledWithoutAuth(t *testing.T) {
	env := newTestEnv(t, false)
	resp := env.do(t, http.MethodGet, "/rooms/!room:x/webhooks", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequiresToken(t *testing.T) {
	env := newTestEnv(t, true)
	resp := env.do(t, http.MethodGet, "/rooms/!room:x/webhooks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterAndList(t *testing.T) {
	env := newTestEnv(t, true)

	resp := env.do(t, http.MethodPost, "/rooms/!room:x/webhooks", "@alice:x", RegisterRequest{URL: "ftp://nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/rooms/!room:x/webhooks", "@alice:x", RegisterRequest{
		URL:      "https://a.example/hook",
		Template: model.Template{"text": "{body}"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[model.Registration](t, resp)
	assert.Equal(t, "!room:x", reg.RoomID)
	assert.Equal(t, "@alice:x", reg.UserID)
	assert.True(t, reg.Enabled)
	assert.Equal(t, model.Template{"text": "{body}"}, reg.MessageTemplate)

	resp = env.do(t, http.MethodPost, "/rooms/%21room%3Ax/webhooks", "@bob:x", RegisterRequest{URL: "https://b.example/hook"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/rooms/!room:x/webhooks", "@carol:x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decode[[]model.Registration](t, resp)
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)

	resp = env.do(t, http.MethodGet, "/rooms/!room:x/webhooks/mine", "@bob:x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mine := decode[[]model.Registration](t, resp)
	require.Len(t, mine, 1)
	assert.Equal(t, "https://b.example/hook", mine[0].WebhookURL)

	resp = env.do(t, http.MethodGet, "/rooms/!empty:x/webhooks", "@bob:x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]model.Registration](t, resp))
}

func TestRegister_ExistingIDOwnership(t *testing.T) {
	env := newTestEnv(t, true)
	reg, err := env.store.Register(context.Background(), "!room:x", "@alice:x", "https://a.example/hook", nil, nil)
	require.NoError(t, err)

	id := reg.ID
	resp := env.do(t, http.MethodPost, "/rooms/!room:x/webhooks", "@bob:x", RegisterRequest{URL: "https://b.example/hook", ID: &id})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/rooms/!room:x/webhooks", "@alice:x", RegisterRequest{URL: "https://a.example/hook", ID: &id})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, id, decode[model.Registration](t, resp).ID)
}

func TestByIDRoutes(t *testing.T) {
	env := newTestEnv(t, true)
	reg, err := env.store.Register(context.Background(), "!room:x", "@alice:x", "https://a.example/hook", nil, nil)
	require.NoError(t, err)
	base := fmt.Sprintf("/webhooks/%d", reg.ID)

	resp := env.do(t, http.MethodPost, "/webhooks/abc/disable", "@alice:x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/disable", "@bob:x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/webhooks/999/disable", "@alice:x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/disable", "@alice:x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[model.Registration](t, resp).Enabled)

	resp = env.do(t, http.MethodPost, base+"/enable", "@alice:x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[model.Registration](t, resp).Enabled)

	resp = env.do(t, http.MethodPut, base+"/template", "@alice:x", TemplateRequest{Template: model.Template{"t": "{sender}"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.Template{"t": "{sender}"}, decode[model.Registration](t, resp).MessageTemplate)

	resp = env.do(t, http.MethodPut, base+"/template", "@alice:x", map[string]any{"template": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[model.Registration](t, resp).MessageTemplate)

	resp = env.do(t, http.MethodDelete, base, "@bob:x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodDelete, base, "@alice:x", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = env.store.GetByID(context.Background(), reg.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
