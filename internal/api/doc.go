// Package api implements the gateway's HTTP surface.
//
// All application routes live under /api/v1 behind a middleware stack
// (recovery, request ID, logging, CORS, rate limiting, bearer auth).
// Health probes are registered on a top-level mux outside the stack so
// orchestrators can reach them without tokens or rate limits.
//
// Optional route groups (tasks, rag, ollama) are registered only when
// the corresponding module is enabled in configuration.
package api
