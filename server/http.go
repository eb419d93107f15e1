package server

import (
	"context"
	"net/http"

	"github.com/viant/jsonrpc/transport/server/http/sse"
	"github.com/viant/jsonrpc/transport/server/http/streamable"
)

const (
	defaultAddr          = "127.0.0.1:5000"
	defaultSSEURI        = "/sse"
	defaultSSEMessageURI = "/message"
	defaultStreamableURI = "/mcp"
)

// HTTP creates an HTTP server exposing both SSE and streamable endpoints.
func (s *Server) HTTP(_ context.Context, addr string) *http.Server {
	if addr == "" {
		addr = s.addr
	}
	if addr == "" {
		addr = defaultAddr
	}
	return &http.Server{Addr: addr, Handler: s.Mux()}
}

// Mux returns the routed HTTP handler of the ingress.
func (s *Server) Mux() *http.ServeMux {
	if s.sseURI == "" {
		s.sseURI = defaultSSEURI
	}
	if s.sseMessageURI == "" {
		s.sseMessageURI = defaultSSEMessageURI
	}
	if s.streamableURI == "" {
		s.streamableURI = defaultStreamableURI
	}
	sseHandler := sse.New(s.NewHandler,
		sse.WithURI(s.sseURI),
		sse.WithMessageURI(s.sseMessageURI),
	)
	streamingHandler := streamable.New(s.NewHandler,
		streamable.WithURI(s.streamableURI),
	)
	mux := http.NewServeMux()
	for path, handler := range s.customHTTPHandlers {
		mux.Handle(path, handler)
	}
	middlewares := []Middleware{protocolVersionMiddleware(), s.corsHandler}
	if s.corsConfig != nil {
		middlewares = append(middlewares, originValidationMiddleware(s.corsConfig.AllowOrigins))
	}
	sseChain := ChainMiddlewareHandlers(sseHandler, middlewares...)
	mux.Handle(s.sseURI, sseChain)
	mux.Handle(s.sseMessageURI, sseChain)
	mux.Handle(s.streamableURI, ChainMiddlewareHandlers(streamingHandler, middlewares...))
	if s.rootRedirect {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := s.sseURI
			if s.useStreamableHTTP {
				target = s.streamableURI
			}
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
		})
	}
	return mux
}
