package server

import (
	"net/http"

	mcpschema "github.com/viant/mcp-protocol/schema"
)

// ProtocolVersionHeader carries the negotiated MCP protocol version.
const ProtocolVersionHeader = "MCP-Protocol-Version"

// Middleware is a function that takes an http.Handler and returns an http.Handler
type Middleware func(next http.Handler) http.Handler

// ChainMiddlewareHandlers chains multiple middleware handlers together
func ChainMiddlewareHandlers(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// protocolVersionMiddleware passes the client's protocol version through to the
// backend unchanged; requests without one get the latest version as default.
func protocolVersionMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			version := r.Header.Get(ProtocolVersionHeader)
			if version == "" {
				version = mcpschema.LatestProtocolVersion
				r.Header.Set(ProtocolVersionHeader, version)
			}
			w.Header().Set(ProtocolVersionHeader, version)
			next.ServeHTTP(w, r)
		})
	}
}

// originValidationMiddleware rejects browser requests from origins outside allowed.
// Requests without Origin are let through; "*" allows any origin.
func originValidationMiddleware(allowed []string) Middleware {
	return func(next http.Handler) http.Handler {
		allowedMap := make(map[string]bool, len(allowed))
		for _, v := range allowed {
			allowedMap[v] = true
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || allowedMap["*"] || allowedMap[origin] {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "origin not allowed", http.StatusForbidden)
		})
	}
}
