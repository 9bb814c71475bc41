// Package api implements the HTTP REST API and WebSocket server for the
// ReSet panel core.
//
// This package provides:
//   - REST endpoints to read the audio snapshot, dispatch commands, force a
//     resync, switch the visible domain and page through the command journal
//   - WebSocket hub broadcasting snapshots (audio.snapshot) and command
//     outcomes (audio.command)
//   - Optional HS256 bearer-token authentication
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition on /metrics
//
// # Architecture
//
// The server never touches registry state. Reads come from the processor's
// latest immutable snapshot; writes go through Processor.Dispatch and are
// answered through the returned ticket. The Hub is registered as a processor
// observer, so every published snapshot is pushed to subscribed clients.
//
// # Security
//
// When security.jwt.secret is set, every /api/v1 route except /health and
// /system requires a bearer token. WebSocket clients may pass it as the
// access_token query parameter.
package api
