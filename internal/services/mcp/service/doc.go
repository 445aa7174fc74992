// Package service runs one mcpsuite MCP server over stdio or streamable HTTP.
//
// It owns transport, logging and lifecycle. Tool and resource semantics live
// in the per-server packages, which contribute a domain.Module each.
package service
