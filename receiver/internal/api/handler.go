package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/obsidianstack/phimon/receiver/internal/alerts"
	"github.com/obsidianstack/phimon/receiver/internal/monitor"
	"github.com/obsidianstack/phimon/receiver/internal/store"
)

// AlertLister is the part of the alert engine the API reads.
type AlertLister interface {
	Active() []*alerts.Alert
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads peer state from the store and returns JSON responses.
type Handler struct {
	store  *store.Store
	alerts AlertLister
	mux    *http.ServeMux
}

// New creates a Handler wired to the given store and alert engine and
// registers all routes. al may be nil, in which case /alerts is always empty.
func New(st *store.Store, al AlertLister) http.Handler {
	h := &Handler{store: st, alerts: al, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/peers", h.listPeers)
	h.mux.HandleFunc("/api/v1/peers/", h.getPeer) // subtree; extracts {peer}
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, summarize(h.store.List()))
}

// listPeers returns GET /api/v1/peers: all live peers ordered by address.
func (h *Handler) listPeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toPeerResponses(h.store.List()))
}

// getPeer returns GET /api/v1/peers/{peer}.
func (h *Handler) getPeer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	peer := strings.TrimPrefix(r.URL.Path, "/api/v1/peers/")
	if peer == "" {
		h.listPeers(w, r)
		return
	}

	e, ok := h.store.Get(peer)
	// Stale entries that are not evicted yet count as not found.
	if !ok || time.Since(e.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "peer not found")
		return
	}
	jsonResp(w, http.StatusOK, PeerFromEntry(e))
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.alerts != nil {
		out = append(out, h.alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the snapshot payload from the live store entries.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	return SnapshotResponse{
		Peers:       toPeerResponses(entries),
		Health:      summarize(entries),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// summarize counts peers per state. Any abandoned peer makes the receiver
// critical, any suspect one degraded.
func summarize(entries []store.Entry) HealthResponse {
	resp := HealthResponse{PeerCount: len(entries)}
	if len(entries) == 0 {
		resp.State = "unknown"
		return resp
	}
	for _, e := range entries {
		st := e.Status
		switch st.State {
		case monitor.StateWarming:
			resp.WarmingCount++
		case monitor.StateAlive:
			resp.AliveCount++
		case monitor.StateSuspect:
			resp.SuspectCount++
		case monitor.StateAbandoned:
			resp.AbandonedCount++
		case monitor.StateClosed:
			resp.ClosedCount++
		}
		if !st.Final() && st.Phi > resp.MaxPhi {
			resp.MaxPhi = st.Phi
		}
	}
	switch {
	case resp.AbandonedCount > 0:
		resp.State = "critical"
	case resp.SuspectCount > 0:
		resp.State = "degraded"
	default:
		resp.State = "healthy"
	}
	return resp
}

func toPeerResponses(entries []store.Entry) []PeerResponse {
	out := make([]PeerResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, PeerFromEntry(e))
	}
	return out
}

// PeerFromEntry maps a store.Entry to its JSON representation.
func PeerFromEntry(e store.Entry) PeerResponse {
	st := e.Status
	return PeerResponse{
		Peer:             st.Peer,
		State:            st.State,
		Phi:              st.Phi,
		Threshold:        st.Threshold,
		Stable:           st.Stable,
		Heartbeats:       st.Heartbeats,
		MeanIntervalMs:   millis(st.MeanInterval),
		StdDevIntervalMs: millis(st.StdDevInterval),
		LastIntervalMs:   millis(st.LastInterval),
		ConnectedAt:      rfc3339(st.ConnectedAt),
		LastHeartbeat:    rfc3339(st.LastHeartbeat),
		NextCheck:        rfc3339(st.NextCheck),
		LastSeen:         e.UpdatedAt.UTC().Format(time.RFC3339),
		Diagnostics:      computeDiagnostics(st),
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
