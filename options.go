package mcpgw

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/viant/afs"
	"github.com/viant/mcpgw/backend"
	"github.com/viant/mcpgw/broker"
	"github.com/viant/mcpgw/server"
	"github.com/viant/mcpgw/session"
	"gopkg.in/yaml.v3"
)

const (
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
	TransportStdio      = "stdio"

	defaultNamespace = "mcpgw"
)

// Options defines the gateway configuration. Values come from a config file
// (yaml, json or toml) and command line flags, flags taking precedence.
type Options struct {
	ConfigURL   string `yaml:"-" json:"-" toml:"-" short:"c" long:"config" description:"gateway config URL (yaml, json or toml)"`
	Development bool   `yaml:"development,omitempty" json:"development,omitempty" toml:"development" short:"d" long:"dev" description:"development mode"`

	// ingress
	Transport     string       `yaml:"transport,omitempty" json:"transport,omitempty" toml:"transport" short:"T" long:"transport-type" description:"client transport type" choice:"sse" choice:"streamable" choice:"stdio"`
	Port          int          `yaml:"port,omitempty" json:"port,omitempty" toml:"port" short:"p" long:"port" description:"HTTP port"`
	SSEURI        string       `yaml:"sseURI,omitempty" json:"sseURI,omitempty" toml:"sseURI" long:"sse-uri" description:"SSE endpoint URI"`
	SSEMessageURI string       `yaml:"sseMessageURI,omitempty" json:"sseMessageURI,omitempty" toml:"sseMessageURI" long:"sse-message-uri" description:"SSE message endpoint URI"`
	StreamableURI string       `yaml:"streamableURI,omitempty" json:"streamableURI,omitempty" toml:"streamableURI" long:"streamable-uri" description:"streamable endpoint URI"`
	RootRedirect  bool         `yaml:"rootRedirect,omitempty" json:"rootRedirect,omitempty" toml:"rootRedirect" long:"root-redirect" description:"redirect / to the active endpoint"`
	Cors          *server.Cors `yaml:"cors,omitempty" json:"cors,omitempty" toml:"cors" no-flag:"true"`

	// backend
	Backend     broker.Target `yaml:"backend" json:"backend" toml:"backend" group:"backend"`
	BackendKind string        `yaml:"backendKind,omitempty" json:"backendKind,omitempty" toml:"backendKind" short:"k" long:"backend-kind" description:"session adapter variant" choice:"streaming" choice:"event"`
	HistorySize int           `yaml:"historySize,omitempty" json:"historySize,omitempty" toml:"historySize" long:"history-size" description:"messages retained per run for replay"`

	// shared state
	RedisAddr string `yaml:"redisAddr,omitempty" json:"redisAddr,omitempty" toml:"redisAddr" short:"r" long:"redis" description:"redis address; empty keeps the control channel and session store in process"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty" toml:"namespace" short:"N" long:"namespace" description:"redis key and channel namespace"`

	// liveness
	PingIntervalSeconds    int  `yaml:"pingIntervalSeconds,omitempty" json:"pingIntervalSeconds,omitempty" toml:"pingIntervalSeconds" long:"ping-interval" description:"keepalive ping interval in seconds"`
	PingTimeoutSeconds     int  `yaml:"pingTimeoutSeconds,omitempty" json:"pingTimeoutSeconds,omitempty" toml:"pingTimeoutSeconds" long:"ping-timeout" description:"seconds of silence before a connection is closed"`
	ResponseTimeoutSeconds int  `yaml:"responseTimeoutSeconds,omitempty" json:"responseTimeoutSeconds,omitempty" toml:"responseTimeoutSeconds" long:"response-timeout" description:"seconds to wait for a backend reply"`
	IdleTimeoutSeconds     int  `yaml:"idleTimeoutSeconds,omitempty" json:"idleTimeoutSeconds,omitempty" toml:"idleTimeoutSeconds" long:"idle-timeout" description:"seconds before a detached run is stopped"`
	DisableControlDelivery bool `yaml:"disableControlDelivery,omitempty" json:"disableControlDelivery,omitempty" toml:"disableControlDelivery" long:"no-control-delivery" description:"do not deliver control messages to session subscribers"`

	// observability
	LogLevel  string `yaml:"logLevel,omitempty" json:"logLevel,omitempty" toml:"logLevel" short:"l" long:"log-level" description:"log level"`
	LogPretty bool   `yaml:"logPretty,omitempty" json:"logPretty,omitempty" toml:"logPretty" long:"log-pretty" description:"console log output"`
	SentryDSN string `yaml:"sentryDSN,omitempty" json:"sentryDSN,omitempty" toml:"sentryDSN" long:"sentry-dsn" description:"Sentry DSN; empty disables error tracking"`
}

// Init applies defaults.
func (o *Options) Init() {
	if o.Transport == "" {
		o.Transport = TransportSSE
	}
	if o.BackendKind == "" {
		o.BackendKind = string(backend.KindStreaming)
	}
	if o.Namespace == "" {
		o.Namespace = defaultNamespace
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
		if o.Development {
			o.LogLevel = "debug"
		}
	}
	if o.Development {
		o.LogPretty = true
	}
}

// Environment returns the deployment environment name used for error tracking.
func (o *Options) Environment() string {
	if o.Development {
		return "development"
	}
	return "production"
}

// SessionConfig returns the liveness settings of session connections.
func (o *Options) SessionConfig() session.Config {
	ret := session.Config{
		PingInterval:           seconds(o.PingIntervalSeconds),
		PingTimeout:            seconds(o.PingTimeoutSeconds),
		ResponseTimeout:        seconds(o.ResponseTimeoutSeconds),
		ControlNamespace:       o.Namespace + ":ctl",
		DisableControlDelivery: o.DisableControlDelivery,
	}
	if ret.PingInterval == 0 && o.Development {
		ret.PingInterval = session.DevelopmentPingInterval
	}
	return ret
}

// ServerOptions returns the ingress options.
func (o *Options) ServerOptions() []server.Option {
	var ret []server.Option
	if o.Port > 0 {
		ret = append(ret, server.WithEndpointAddress(fmt.Sprintf(":%v", o.Port)))
	}
	if o.Cors != nil {
		ret = append(ret, server.WithCORS(o.Cors))
	}
	if o.SSEURI != "" {
		ret = append(ret, server.WithSSEURI(o.SSEURI))
	}
	if o.SSEMessageURI != "" {
		ret = append(ret, server.WithSSEMessageURI(o.SSEMessageURI))
	}
	if o.StreamableURI != "" {
		ret = append(ret, server.WithStreamableURI(o.StreamableURI))
	}
	if o.RootRedirect {
		ret = append(ret, server.WithRootRedirect(true))
	}
	ret = append(ret, server.WithStreamableHTTP(o.Transport == TransportStreamable))
	return ret
}

// Load decodes the config file at URL into o. The format follows the file extension,
// yaml being the default.
func (o *Options) Load(ctx context.Context, URL string) error {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to download config %v: %w", URL, err)
	}
	switch strings.ToLower(path.Ext(URL)) {
	case ".toml":
		err = toml.Unmarshal(data, o)
	case ".json":
		err = json.Unmarshal(data, o)
	default:
		err = yaml.Unmarshal(data, o)
	}
	if err != nil {
		return fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	return nil
}

// Validate checks the options after Init.
func (o *Options) Validate() error {
	switch o.Transport {
	case TransportSSE, TransportStreamable, TransportStdio:
	default:
		return fmt.Errorf("unsupported transport: %v", o.Transport)
	}
	switch backend.Kind(o.BackendKind) {
	case backend.KindStreaming, backend.KindEvent:
	default:
		return fmt.Errorf("unsupported backend kind: %v", o.BackendKind)
	}
	if o.Backend.Type == "" {
		return fmt.Errorf("backend type was empty")
	}
	return nil
}

func seconds(v int) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v) * time.Second
}
