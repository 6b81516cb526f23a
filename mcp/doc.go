// Package mcp exposes a tools.Registry as an MCP server, and provides
// the client session used by the orchestrator to discover and call
// the tools of a provider process over stdio.
package mcp
