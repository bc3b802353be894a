// Package main runs the inspector HTTP service.
//
// The server exposes inspection sessions over REST, node events over a
// WebSocket, the resolver protocol under /protocol and Prometheus metrics
// under /metrics. Sessions inspect one of four backends:
//
//   - sandbox: an embedded JavaScript runtime, one per session (default)
//   - remote: another service speaking the resolver protocol
//   - snapshot: a recorded object table loaded from disk and hot reloaded
//   - cdp: a Chrome page over the DevTools protocol
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	./server -port 8000
//	./server -resolver snapshot -snapshot state.cbor.zst
//	./server -resolver remote -remote http://replay:8000 -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
