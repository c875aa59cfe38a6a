// Package api implements the HTTP API and local websocket channel of the
// valve controller.
//
// This package provides:
//   - REST endpoints for valve state, manual commands, control configuration
//     and actuation history under /api/v1
//   - Passkey to bearer token exchange (POST /api/v1/auth/token)
//   - Prometheus metrics on /api/v1/metrics
//   - The local websocket channel, which speaks the device JSON protocol and
//     authenticates with a request_device_info passkey handshake
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Local channel
//
// A new connection may only send request_device_info. Once the passkey
// matches, the client receives device_info and may then send
// device_basic_info (answered with valve_data) and set_valve_basic. Local
// basic commands always clear schedule and sensor mode. Authorised clients
// also receive the periodic valve_data broadcast.
//
// The server operates without MQTT; only the health status degrades.
package api
