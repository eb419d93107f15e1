package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/viant/jsonrpc/transport/server/stdio"
)

// Option configures the ingress.
type Option func(s *Server)

// WithLogger sets the ingress logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCORS sets the CORS policy; its origins also drive Origin validation.
func WithCORS(cors *Cors) Option {
	return func(s *Server) {
		s.corsConfig = cors
		s.corsHandler = (&corsHandler{Cors: cors}).Middleware
	}
}

// WithEndpointAddress sets the default HTTP listen address.
func WithEndpointAddress(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithSSEURI sets the SSE stream path.
func WithSSEURI(uri string) Option {
	return func(s *Server) {
		s.sseURI = uri
	}
}

// WithSSEMessageURI sets the SSE message path.
func WithSSEMessageURI(uri string) Option {
	return func(s *Server) {
		s.sseMessageURI = uri
	}
}

// WithStreamableURI sets the streamable HTTP path.
func WithStreamableURI(uri string) Option {
	return func(s *Server) {
		s.streamableURI = uri
	}
}

// WithStreamableHTTP makes the root redirect point at the streamable endpoint.
func WithStreamableHTTP(flag bool) Option {
	return func(s *Server) {
		s.useStreamableHTTP = flag
	}
}

// WithRootRedirect redirects "/" to the active transport path.
func WithRootRedirect(enable bool) Option {
	return func(s *Server) {
		s.rootRedirect = enable
	}
}

// WithCustomHTTPHandler mounts an extra handler on the HTTP mux.
func WithCustomHTTPHandler(path string, handler http.HandlerFunc) Option {
	return func(s *Server) {
		s.customHTTPHandlers[path] = handler
	}
}

// WithStdioOptions sets stdio server options.
func WithStdioOptions(options ...stdio.Option) Option {
	return func(s *Server) {
		s.stdioOptions = append(s.stdioOptions, options...)
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Server) {
		s.newID = newID
	}
}
