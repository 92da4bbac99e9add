// Package api implements the HTTP management surface for the gateway.
//
// This package provides:
//   - The wire-compatible management endpoints (/list, /{imei}/unlock,
//     /{imei}/position, /metrics) used by fleet tooling
//   - A JSON health endpoint under /api/v1
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The API server sits beside the device-facing TCP listener. Commands
// resolve a live session through the registry and write directly to the
// device socket; responses report "pending" because lock confirmations
// arrive later on the device connection, not the HTTP request.
//
// There is no authentication on this surface. It is designed to sit on a
// private network behind fleet tooling, matching the deployments it
// replaces.
package api
