// Package api serves the receiver's read-only REST API under /api/v1/.
//
// Routes:
//
//	GET /api/v1/health         overall state and per-state peer counts
//	GET /api/v1/peers          every live peer status
//	GET /api/v1/peers/{peer}   one peer, keyed by its remote address
//	GET /api/v1/alerts         firing and recently resolved alerts
//	GET /api/v1/snapshot       peers plus generation time (also pushed over WebSocket)
package api
