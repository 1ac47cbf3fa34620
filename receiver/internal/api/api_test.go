package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/obsidianstack/phimon/receiver/internal/alerts"
	"github.com/obsidianstack/phimon/receiver/internal/api"
	"github.com/obsidianstack/phimon/receiver/internal/monitor"
	"github.com/obsidianstack/phimon/receiver/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(statuses ...monitor.Status) *store.Store {
	st := store.New(5 * time.Minute)
	for _, s := range statuses {
		st.Put(s)
	}
	return st
}

func peer(addr, state string, phi float64) monitor.Status {
	now := time.Now()
	return monitor.Status{
		Peer:          addr,
		State:         state,
		Phi:           phi,
		Threshold:     1,
		Stable:        6,
		Heartbeats:    7,
		MeanInterval:  time.Second,
		LastInterval:  1100 * time.Millisecond,
		ConnectedAt:   now.Add(-time.Minute),
		LastHeartbeat: now,
		NextCheck:     now.Add(time.Second),
		UpdatedAt:     now,
	}
}

type fakeAlerts []*alerts.Alert

func (f fakeAlerts) Active() []*alerts.Alert { return f }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" || resp.PeerCount != 0 {
		t.Errorf("got %+v, want unknown with 0 peers", resp)
	}
}

func TestHealth_States(t *testing.T) {
	tests := []struct {
		name     string
		statuses []monitor.Status
		want     string
	}{
		{"all alive", []monitor.Status{peer("a:1", monitor.StateAlive, 0.3), peer("b:1", monitor.StateWarming, 0.1)}, "healthy"},
		{"one suspect", []monitor.Status{peer("a:1", monitor.StateAlive, 0.3), peer("b:1", monitor.StateSuspect, 2.5)}, "degraded"},
		{"one abandoned", []monitor.Status{peer("a:1", monitor.StateSuspect, 2), peer("b:1", monitor.StateAbandoned, 7)}, "critical"},
		{"closed only", []monitor.Status{peer("a:1", monitor.StateClosed, 0)}, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, api.New(newStore(tt.statuses...), nil), "/api/v1/health")
			var resp api.HealthResponse
			decode(t, rr, &resp)
			if resp.State != tt.want {
				t.Errorf("state: got %q, want %q", resp.State, tt.want)
			}
			if resp.PeerCount != len(tt.statuses) {
				t.Errorf("peer_count: got %d, want %d", resp.PeerCount, len(tt.statuses))
			}
		})
	}
}

func TestHealth_MaxPhiIgnoresEndedSessions(t *testing.T) {
	st := newStore(
		peer("a:1", monitor.StateSuspect, 2.5),
		peer("b:1", monitor.StateAbandoned, 9),
	)
	var resp api.HealthResponse
	decode(t, get(t, api.New(st, nil), "/api/v1/health"), &resp)
	if resp.MaxPhi != 2.5 {
		t.Errorf("max_phi: got %v, want 2.5", resp.MaxPhi)
	}
	if resp.SuspectCount != 1 || resp.AbandonedCount != 1 {
		t.Errorf("counts: %+v", resp)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := api.New(newStore(), nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/peers ----------------------------------------------------------

func TestListPeers_Empty(t *testing.T) {
	rr := get(t, api.New(newStore(), nil), "/api/v1/peers")
	var out []api.PeerResponse
	decode(t, rr, &out)
	if out == nil || len(out) != 0 {
		t.Errorf("want empty array, got %v", out)
	}
}

func TestListPeers_FieldsPresent(t *testing.T) {
	h := api.New(newStore(peer("10.0.0.2:4000", monitor.StateAlive, 0.42), peer("10.0.0.1:4000", monitor.StateWarming, 0)), nil)
	rr := get(t, h, "/api/v1/peers")

	var out []api.PeerResponse
	decode(t, rr, &out)
	if len(out) != 2 {
		t.Fatalf("peers: got %d, want 2", len(out))
	}
	if out[0].Peer != "10.0.0.1:4000" {
		t.Errorf("ordering: first peer %q, want 10.0.0.1:4000", out[0].Peer)
	}
	p := out[1]
	if p.State != monitor.StateAlive || p.Phi != 0.42 || p.Stable != 6 || p.Heartbeats != 7 {
		t.Errorf("unexpected peer: %+v", p)
	}
	if p.MeanIntervalMs != 1000 || p.LastIntervalMs != 1100 {
		t.Errorf("intervals: mean %v last %v", p.MeanIntervalMs, p.LastIntervalMs)
	}
	if p.NextCheck == "" || p.LastHeartbeat == "" || p.LastSeen == "" {
		t.Errorf("timestamps missing: %+v", p)
	}
}

func TestGetPeer_Found(t *testing.T) {
	h := api.New(newStore(peer("127.0.0.1:5555", monitor.StateSuspect, 2.1)), nil)
	rr := get(t, h, "/api/v1/peers/127.0.0.1:5555")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var p api.PeerResponse
	decode(t, rr, &p)
	if p.Peer != "127.0.0.1:5555" || p.State != monitor.StateSuspect {
		t.Errorf("got %+v", p)
	}
	if len(p.Diagnostics) == 0 || p.Diagnostics[0].Key != "suspect" {
		t.Errorf("diagnostics: got %+v", p.Diagnostics)
	}
}

func TestGetPeer_NotFound(t *testing.T) {
	rr := get(t, api.New(newStore(), nil), "/api/v1/peers/10.9.9.9:1")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestGetPeer_BarePathLists(t *testing.T) {
	rr := get(t, api.New(newStore(peer("a:1", monitor.StateAlive, 0)), nil), "/api/v1/peers/")
	var out []api.PeerResponse
	decode(t, rr, &out)
	if len(out) != 1 {
		t.Errorf("peers: got %d, want 1", len(out))
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_EmptyWithoutEngine(t *testing.T) {
	rr := get(t, api.New(newStore(), nil), "/api/v1/alerts")
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("body: got %q, want []", body)
	}
}

func TestAlerts_FromEngine(t *testing.T) {
	al := fakeAlerts{{ID: "x", RuleName: "high-phi", Peer: "a:1", State: alerts.StateFiring}}
	rr := get(t, api.New(newStore(), al), "/api/v1/alerts")

	var out []alerts.Alert
	decode(t, rr, &out)
	if len(out) != 1 || out[0].RuleName != "high-phi" || out[0].Peer != "a:1" {
		t.Errorf("alerts: got %+v", out)
	}
}

// --- /api/v1/snapshot -------------------------------------------------------

func TestSnapshot_AllLivePeers(t *testing.T) {
	st := newStore(peer("a:1", monitor.StateAlive, 0.2), peer("b:1", monitor.StateSuspect, 3.1))
	rr := get(t, api.New(st, nil), "/api/v1/snapshot")

	var snap api.SnapshotResponse
	decode(t, rr, &snap)
	if len(snap.Peers) != 2 {
		t.Errorf("peers: got %d, want 2", len(snap.Peers))
	}
	if snap.Health.State != "degraded" {
		t.Errorf("health.state: got %q, want degraded", snap.Health.State)
	}
	if _, err := time.Parse(time.RFC3339, snap.GeneratedAt); err != nil {
		t.Errorf("generated_at %q: %v", snap.GeneratedAt, err)
	}
}
