package schema

import (
	mcpschema "github.com/viant/mcp-protocol/schema"
)

const (
	MethodInitialize              = mcpschema.MethodInitialize
	MethodPing                    = mcpschema.MethodPing
	MethodNotificationCancel      = mcpschema.MethodNotificationCancel
	MethodNotificationInitialized = mcpschema.MethodNotificationInitialized
)

// PingIDPrefix marks ids of keepalive pings issued by the gateway itself.
// Messages carrying such ids never reach the backend.
const PingIDPrefix = "mtgw/ping/"
