package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ransomguard/internal/auth"
	"ransomguard/internal/detect"
	"ransomguard/internal/model"
	"ransomguard/internal/pipeline"
	"ransomguard/internal/storage"
	"ransomguard/internal/watch"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server *httptest.Server
	store  *storage.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := detect.NewEngine(detect.DefaultConfig(), logger, nil)
	hub := NewHub(logger)
	processor := pipeline.NewProcessor(engine, store, hub, "test-host", logger)
	watcher := watch.New([]string{t.TempDir()}, time.Second, processor, logger, nil)
	authMgr := auth.NewManager("test-secret", 30*time.Minute)

	handlers := NewHandlers(store, watcher, engine, processor, nil, authMgr, hub, time.Second, logger)
	server := httptest.NewServer(NewRouter(handlers))
	t.Cleanup(server.Close)
	t.Cleanup(func() { watcher.Stop(time.Second) })

	return &testEnv{server: server, store: store}
}

func (e *testEnv) postJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) registerAndLogin(t *testing.T, email, password string) string {
	t.Helper()
	resp := e.postJSON(t, "/register", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	form := url.Values{"username": {email}, "password": {password}}
	tokenResp, err := http.Post(e.server.URL+"/token", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer tokenResp.Body.Close()
	require.Equal(t, http.StatusOK, tokenResp.StatusCode)

	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(tokenResp.Body).Decode(&payload))
	require.Equal(t, "bearer", payload.TokenType)
	return payload.AccessToken
}

func TestRegisterAndLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	token := env.registerAndLogin(t, "op@example.com", "s3cret-pass")
	require.NotEmpty(t, token)

	resp := env.get(t, "/users/me", token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var user model.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	assert.Equal(t, "op@example.com", user.Email)
	assert.Empty(t, user.HashedPassword)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "dup@example.com", "password1")

	resp := env.postJSON(t, "/register", map[string]string{
		"email":    "dup@example.com",
		"password": "password2",
	}, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTokenWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "op@example.com", "right-password")

	form := url.Values{"username": {"op@example.com"}, "password": {"wrong"}}
	resp, err := http.Post(env.server.URL+"/token", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{"/api/v1/alerts", "/api/v1/file-events", "/api/v1/metrics", "/api/v1/monitoring/status"}
	for _, path := range paths {
		resp := env.get(t, path, "")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	resp := env.get(t, "/api/v1/alerts", "not-a-valid-token")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndListAlerts(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "op@example.com", "password")

	resp := env.postJSON(t, "/api/v1/alerts", map[string]interface{}{
		"host":     "web-1",
		"path":     "/srv/files/report.enc",
		"severity": "critical",
		"fme":      7.92,
		"abt":      2.0,
		"type":     "Ransomware",
	}, token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created model.Alert
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotZero(t, created.ID)

	listResp := env.get(t, "/api/v1/alerts?severity=critical", token)
	defer listResp.Body.Close()
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	var alerts []model.Alert
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "/srv/files/report.enc", alerts[0].Path)
	assert.Equal(t, model.CategoryRansomware, alerts[0].Category)
}

func TestCreateFileEventRunsDetection(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "op@example.com", "password")

	resp := env.postJSON(t, "/api/v1/file-events", map[string]string{
		"path":   "/nonexistent/ransom-note.locked",
		"action": "created",
	}, token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var event model.FileEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&event))
	assert.Equal(t, "/nonexistent/ransom-note.locked", event.Path)

	// The .locked extension alone makes the verdict alert-worthy, so a
	// persisted alert must exist as well.
	alerts, err := env.store.ListAlerts(0, 10, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Reasons[0], "suspicious extension")
}

func TestCreateFileEventValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "op@example.com", "password")

	resp := env.postJSON(t, "/api/v1/file-events", map[string]string{
		"path":   "/tmp/x",
		"action": "renamed",
	}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.postJSON(t, "/api/v1/file-events", map[string]string{
		"action": "created",
	}, token)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonitoringLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "op@example.com", "password")

	statusResp := env.get(t, "/api/v1/monitoring/status", token)
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	assert.Equal(t, "stopped", status["status"])

	startResp := env.postJSON(t, "/api/v1/monitoring/start", map[string]interface{}{}, token)
	startResp.Body.Close()
	require.Equal(t, http.StatusOK, startResp.StatusCode)

	// A second start is reported as benign.
	again := env.postJSON(t, "/api/v1/monitoring/start", map[string]interface{}{}, token)
	var body map[string]string
	require.NoError(t, json.NewDecoder(again.Body).Decode(&body))
	again.Body.Close()
	require.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, "already running", body["status"])

	stopResp := env.postJSON(t, "/api/v1/monitoring/stop", map[string]interface{}{}, token)
	stopResp.Body.Close()
	require.Equal(t, http.StatusOK, stopResp.StatusCode)

	statusResp = env.get(t, "/api/v1/monitoring/status", token)
	require.NoError(t, json.NewDecoder(statusResp.Body).Decode(&status))
	statusResp.Body.Close()
	assert.Equal(t, "stopped", status["status"])
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/health", "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
