// Package timeouts defines shared timeout constants used across services.
// Centralizing these values keeps the MCP servers, the dashboard and the
// proxy in agreement about how long an upstream call may take.
package timeouts

import "time"

// UpstreamRequest caps a single call to an external API (GitHub, Jira,
// Frappe, Google) when the service config does not override it.
const UpstreamRequest = 30 * time.Second

// ProxyRequest caps one forwarded JSON-RPC request in the stdio proxy.
const ProxyRequest = 60 * time.Second

// Command is the default limit for a bash tool invocation.
const Command = 30 * time.Second

// HealthProbe caps dependency pings made by the health monitor and the
// dashboard collectors.
const HealthProbe = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
