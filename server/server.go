package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/viant/jsonrpc/transport"
	"github.com/viant/jsonrpc/transport/server/stdio"
	"github.com/viant/mcpgw/schema"
	"github.com/viant/mcpgw/session"
)

// Server is the client facing ingress of the gateway.
type Server struct {
	connections *session.Connections
	logger      zerolog.Logger
	newID       func() string

	addr               string
	sseURI             string
	sseMessageURI      string
	streamableURI      string
	rootRedirect       bool
	useStreamableHTTP  bool
	customHTTPHandlers map[string]http.HandlerFunc
	corsConfig         *Cors
	corsHandler        Middleware
	stdioOptions       []stdio.Option
}

// New creates an ingress opening connections from connections.
func New(connections *session.Connections, options ...Option) *Server {
	ret := &Server{
		connections:        connections,
		logger:             zerolog.Nop(),
		newID:              uuid.NewString,
		customHTTPHandlers: make(map[string]http.HandlerFunc),
	}
	for _, option := range options {
		option(ret)
	}
	if ret.corsHandler == nil {
		ret.corsConfig = defaultCors()
		ret.corsHandler = (&corsHandler{Cors: ret.corsConfig}).Middleware
	}
	return ret
}

// NewHandler opens a connection for a new client transport session.
func (s *Server) NewHandler(ctx context.Context, aTransport transport.Transport) transport.Handler {
	return s.newHandler(ctx, aTransport)
}

func (s *Server) newHandler(ctx context.Context, aTransport transport.Transport) *Handler {
	sessionID := s.newID()
	ret := &Handler{
		ctx:       context.WithoutCancel(ctx),
		sessionID: sessionID,
		client:    aTransport,
		active:    newActiveRequests(),
		logger:    s.logger.With().Str("session", sessionID).Logger(),
	}
	ret.conn, ret.err = s.connections.Open(ctx, sessionID, schema.ModeSendAndReceive)
	if ret.err != nil {
		ret.logger.Error().Err(ret.err).Msg("failed to open session connection")
		return ret
	}
	ret.subscribe()
	return ret
}

// Stdio returns a stdio ingress.
func (s *Server) Stdio(ctx context.Context) *stdio.Server {
	return stdio.New(ctx, s.NewHandler, s.stdioOptions...)
}
