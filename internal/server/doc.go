// Package server wires the HTTP surface: webhook ingestion, outbound sends,
// message history, live-update subscriptions (SSE and WebSocket), health
// checks and metrics. Handlers route all domain operations through the
// application service.
package server
