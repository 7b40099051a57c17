package client

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/LeonardoBeccarini/sensorlink/internal/model"
	"github.com/LeonardoBeccarini/sensorlink/internal/observability"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/cloud"
	"github.com/LeonardoBeccarini/sensorlink/internal/services/session"
)

// ErrorWindow is how long a cloud write error keeps the client not ready.
const ErrorWindow = 30 * time.Second

func NewRouter(a *App, m *observability.Metrics) *mux.Router {
	r := mux.NewRouter()
	route := func(path, method string, h http.HandlerFunc) {
		r.Handle(path, m.WrapHandler(path, h)).Methods(method)
	}
	route("/healthz", http.MethodGet, a.handleHealth)
	route("/readyz", http.MethodGet, a.handleReady)
	route("/status", http.MethodGet, a.handleStatus)
	route("/sync", http.MethodPost, a.handleSync)
	route("/connect", http.MethodPost, a.handleConnect)
	route("/disconnect", http.MethodPost, a.handleDisconnect)
	route("/commands", http.MethodPost, a.handleCommand)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// cloudHealth reports (connected, seconds since last error). Stores without
// health information count as connected with no error seen.
func (a *App) cloudHealth() (bool, time.Duration) {
	h, ok := a.store.(cloud.Health)
	if !ok {
		return true, time.Duration(math.MaxInt64)
	}
	return h.Connected(), h.LastErrorAge()
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string             `json:"status"`
		Device          model.SessionState `json:"device"`
		CloudConnected  bool               `json:"cloud_connected"`
		StorageOK       bool               `json:"storage_ok"`
		LastWriteErrorS float64            `json:"last_write_error_age_sec"`
	}
	connected, age := a.cloudHealth()
	_, qerr := a.queue.Len()
	st := status{
		Device:          a.session.State(),
		CloudConnected:  connected,
		StorageOK:       qerr == nil,
		LastWriteErrorS: age.Seconds(),
	}

	switch {
	case st.StorageOK && st.CloudConnected && age > ErrorWindow:
		st.Status = "ok"
	case st.StorageOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	writeJSON(w, http.StatusOK, st)
}

// handleReady answers 200 only when readings can be both stored and uploaded.
func (a *App) handleReady(w http.ResponseWriter, _ *http.Request) {
	connected, age := a.cloudHealth()
	_, qerr := a.queue.Len()
	ready := qerr == nil && connected && age > ErrorWindow
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]bool{"ready": ready})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, err := a.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *App) handleSync(w http.ResponseWriter, r *http.Request) {
	rep, err := a.SyncNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (a *App) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	err := a.Connect(r.Context(), req.Address)
	var connErr *session.ConnectionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, a.session.Status())
	case errors.Is(err, session.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.As(err, &connErr):
		writeError(w, http.StatusBadGateway, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *App) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	a.Disconnect()
	writeJSON(w, http.StatusOK, a.session.Status())
}

func (a *App) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := a.Control(r.Context(), req.Command)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, res)
	case errors.Is(err, session.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
