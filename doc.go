// Package mcpgw wires the MCP gateway: a client facing ingress, per-session
// connections, a control channel and the backend runs that execute MCP servers.
//
// Example usage:
//
//	options := &mcpgw.Options{
//		Transport: "streamable",
//		Backend:   broker.Target{Type: "stdio", Command: "my-mcp-server"},
//	}
//	gw, err := mcpgw.New(ctx, options)
//	if err != nil {
//		log.Fatal(err)
//	}
//	gw.Start(ctx)
//	log.Fatal(gw.ListenAndServe(ctx))
package mcpgw
