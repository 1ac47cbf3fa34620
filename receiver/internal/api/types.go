package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string  `json:"state"` // healthy | degraded | critical | unknown
	PeerCount      int     `json:"peer_count"`
	WarmingCount   int     `json:"warming_count"`
	AliveCount     int     `json:"alive_count"`
	SuspectCount   int     `json:"suspect_count"`
	AbandonedCount int     `json:"abandoned_count"`
	ClosedCount    int     `json:"closed_count"`
	MaxPhi         float64 `json:"max_phi"`
}

// PeerResponse is the JSON representation of one peer status.
type PeerResponse struct {
	Peer             string  `json:"peer"`
	State            string  `json:"state"`
	Phi              float64 `json:"phi"`
	Threshold        float64 `json:"threshold"`
	Stable           int     `json:"stable"`
	Heartbeats       uint64  `json:"heartbeats"`
	MeanIntervalMs   float64 `json:"mean_interval_ms"`
	StdDevIntervalMs float64 `json:"stddev_interval_ms"`
	LastIntervalMs   float64 `json:"last_interval_ms"`
	ConnectedAt      string  `json:"connected_at,omitempty"`
	LastHeartbeat    string  `json:"last_heartbeat,omitempty"`
	NextCheck        string  `json:"next_check,omitempty"`
	LastSeen         string  `json:"last_seen"`

	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Peers       []PeerResponse `json:"peers"`
	Health      HealthResponse `json:"health"`
	GeneratedAt string         `json:"generated_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}
