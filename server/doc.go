// Package server exposes the gateway to MCP clients.
//
// Every client transport session (HTTP-SSE, streamable HTTP or stdio) is bound
// to a session.Connection in send-and-receive mode:
//   - client requests are sent through the connection and answered with the
//     correlated backend reply
//   - client notifications and responses are forwarded to the backend
//   - backend requests, notifications and control channel keepalive pings are
//     relayed to the client
//
//	srv := server.New(connections, server.WithLogger(logger))
//	log.Fatal(srv.HTTP(ctx, ":5000").ListenAndServe())
package server
