// Package webhook delivers device events to a configured HTTP endpoint.
//
// Delivery is fire-and-forget: each event is posted on its own goroutine
// with a bounded timeout, failures are reported through an optional error
// callback and never retried. A slow or dead endpoint cannot stall the
// device read loops.
package webhook
