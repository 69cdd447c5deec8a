package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ransomguard/internal/auth"
	"ransomguard/internal/detect"
	"ransomguard/internal/model"
	"ransomguard/internal/pipeline"
	"ransomguard/internal/storage"
	"ransomguard/internal/watch"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userEmailKey contextKey = "user_email"

// Handlers carries the dependencies every HTTP handler needs.
type Handlers struct {
	store       *storage.Store
	watcher     *watch.Watcher
	engine      *detect.Engine
	processor   *pipeline.Processor
	retention   *storage.RetentionManager
	authMgr     *auth.Manager
	hub         *Hub
	logger      *logrus.Logger
	stopTimeout time.Duration
	upgrader    websocket.Upgrader
}

// NewHandlers creates the handler set.
func NewHandlers(store *storage.Store, watcher *watch.Watcher, engine *detect.Engine,
	processor *pipeline.Processor, retention *storage.RetentionManager,
	authMgr *auth.Manager, hub *Hub, stopTimeout time.Duration, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:       store,
		watcher:     watcher,
		engine:      engine,
		processor:   processor,
		retention:   retention,
		authMgr:     authMgr,
		hub:         hub,
		logger:      logger,
		stopTimeout: stopTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Register creates a new operator account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	if _, err := h.store.GetUserByEmail(req.Email); err == nil {
		writeError(w, http.StatusBadRequest, "Email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.logger.Errorf("Failed to look up user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Errorf("Failed to hash password: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	user := model.User{
		Email:          req.Email,
		HashedPassword: hashed,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		IsActive:       true,
	}
	if err := h.store.CreateUser(&user); err != nil {
		h.logger.Errorf("Failed to create user: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Token authenticates a user and issues an access token. Credentials come
// as form fields (username, password).
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	email := r.PostFormValue("username")
	password := r.PostFormValue("password")

	user, err := h.store.GetUserByEmail(email)
	if err != nil || !auth.VerifyPassword(user.HashedPassword, password) {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	if !user.IsActive {
		writeError(w, http.StatusUnauthorized, "User is inactive")
		return
	}

	token, err := h.authMgr.CreateAccessToken(user.Email)
	if err != nil {
		h.logger.Errorf("Failed to create access token: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// CurrentUser returns the authenticated user's account.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	email, _ := r.Context().Value(userEmailKey).(string)
	user, err := h.store.GetUserByEmail(email)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetAlerts lists persisted alerts, newest first.
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r, 100)
	severity := r.URL.Query().Get("severity")

	alerts, err := h.store.ListAlerts(skip, limit, severity)
	if err != nil {
		h.logger.Errorf("Failed to list alerts: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

type alertCreateRequest struct {
	Host     string         `json:"host"`
	Path     string         `json:"path"`
	Severity model.Severity `json:"severity"`
	FME      float64        `json:"fme"`
	ABT      float64        `json:"abt"`
	Category model.Category `json:"type"`
}

// CreateAlert persists an externally produced alert and broadcasts it.
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	alert := model.Alert{
		Host:      req.Host,
		Path:      req.Path,
		Severity:  req.Severity,
		FME:       req.FME,
		ABT:       req.ABT,
		Category:  req.Category,
		CreatedAt: time.Now(),
	}
	id, err := h.store.InsertAlert(&alert)
	if err != nil {
		h.logger.Errorf("Failed to insert alert: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	alert.ID = id
	h.hub.BroadcastAlert(alert)

	writeJSON(w, http.StatusOK, alert)
}

// GetFileEvents lists persisted file events, newest first.
func (h *Handlers) GetFileEvents(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r, 50)

	events, err := h.store.ListFileEvents(skip, limit)
	if err != nil {
		h.logger.Errorf("Failed to list file events: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type fileEventCreateRequest struct {
	Path   string           `json:"path"`
	Action model.FileAction `json:"action"`
}

// CreateFileEvent feeds an externally supplied change event through the
// full detection pipeline. This is the only way "modified" events reach the
// engine; the polling watcher cannot observe in-place modification.
func (h *Handlers) CreateFileEvent(w http.ResponseWriter, r *http.Request) {
	var req fileEventCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Path == "" || !req.Action.Valid() {
		writeError(w, http.StatusBadRequest, "path and a valid action are required")
		return
	}

	event := model.FileChangeEvent{
		Path:       req.Path,
		Action:     req.Action,
		ObservedAt: time.Now(),
	}
	fileEvent, _, err := h.processor.Handle(r.Context(), event)
	if err != nil {
		h.logger.Errorf("Failed to process file event: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, http.StatusOK, fileEvent)
}

// GetMetrics returns aggregate alert counts.
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetMetrics()
	if err != nil {
		h.logger.Errorf("Failed to compute metrics: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

type monitoringStartRequest struct {
	Paths []string `json:"paths"`
}

// StartMonitoring starts the watcher, optionally replacing the watch roots
// first. Starting an already-running watcher is a benign no-op.
func (h *Handlers) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	var req monitoringStartRequest
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are ignored.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if len(req.Paths) > 0 {
		if err := h.watcher.SetPaths(req.Paths); err != nil {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "already running",
				"message": "File monitoring is already running",
			})
			return
		}
	}

	if err := h.watcher.Start(); err != nil {
		if errors.Is(err, watch.ErrAlreadyRunning) {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "already running",
				"message": "File monitoring is already running",
			})
			return
		}
		h.logger.Errorf("Failed to start file monitoring: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to start file monitoring")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "started",
		"message": "File monitoring started successfully",
	})
}

// StopMonitoring stops the watcher, waiting up to the stop timeout.
func (h *Handlers) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := h.watcher.Stop(h.stopTimeout); err != nil {
		h.logger.Errorf("Failed to stop file monitoring: %v", err)
		writeError(w, http.StatusInternalServerError, "File monitoring stop did not converge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "stopped",
		"message": "File monitoring stopped",
	})
}

// MonitoringStatus reports the watcher state, the current adaptive burst
// threshold and the in-window event count.
func (h *Handlers) MonitoringStatus(w http.ResponseWriter, r *http.Request) {
	status := "stopped"
	if h.watcher.IsRunning() {
		status = "running"
	}
	retention := "stopped"
	if h.retention != nil && h.retention.IsRunning() {
		retention = "running"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        status,
		"paths":         h.watcher.Paths(),
		"abt":           h.engine.Threshold(),
		"recent_events": h.engine.RecentEvents(),
		"background_services": map[string]string{
			"retention": retention,
		},
	})
}

// StreamAlerts upgrades to WebSocket and pushes new alerts as they are
// persisted. The access token is taken from the token query parameter.
func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	h.streamHandler(w, r, streamAlerts)
}

// StreamFileEvents upgrades to WebSocket and pushes new file events.
func (h *Handlers) StreamFileEvents(w http.ResponseWriter, r *http.Request) {
	h.streamHandler(w, r, streamEvents)
}

func (h *Handlers) streamHandler(w http.ResponseWriter, r *http.Request, stream string) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Missing token")
		return
	}
	if _, err := h.authMgr.VerifyAccessToken(token); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	h.logger.Infof("WebSocket connection established from %s", r.RemoteAddr)

	sub := h.hub.subscribe(stream)
	defer func() {
		h.hub.unsubscribe(sub)
		conn.Close()
		h.logger.Debugf("WebSocket connection closed for %s", r.RemoteAddr)
	}()

	conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// Reader goroutine: drain client messages, detect disconnect.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case msg, ok := <-sub.channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// RequireAuth wraps a handler with bearer-token authentication.
func (h *Handlers) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		email, err := h.authMgr.VerifyAccessToken(header[len(prefix):])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userEmailKey, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

func pagination(r *http.Request, defaultLimit int) (skip, limit int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	if skip < 0 {
		skip = 0
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}
	return skip, limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
