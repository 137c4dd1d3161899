// Package api holds the request and response shapes of the TripFlow HTTP API.
//
// # API Overview
//
// Besides the websocket endpoint GET /chat, TripFlow serves:
//   - GET /api/v1/capabilities: the routing table
//   - GET /api/v1/conversations: number of live conversations
//   - GET /api/v1/conversations/{id}/history: live or stored turn history
//   - GET /api/v1/transcripts/stats: stored turns per outcome
//   - GET /api/v1/config, POST /api/v1/config/reload: sanitized config and reload
//   - GET|PUT /api/v1/log/level: runtime log level
//   - /health, /healthz, /ready, /readyz, /version
//
// # Authentication
//
// When api_keys are configured, /chat and /api endpoints require the
// X-API-Key header (or ?api_key= when allow_query_api_key is set). When a
// JWT secret is configured they require an Authorization: Bearer token.
package api
