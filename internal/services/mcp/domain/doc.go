// Package domain holds the MCP plumbing shared by every mcpsuite server.
//
// Server packages describe their tools with the Tool helper and hand back a
// Module. The service package turns modules into a running mcp.Server:
//   - typed tool handlers are registered through ToolRegistration,
//   - handler errors become structured failure payloads,
//   - resource changes are pushed through ResourceUpdateNotifier.
package domain
