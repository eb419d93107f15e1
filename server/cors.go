package server

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	AllowOriginHeader      = "Access-Control-Allow-Origin"
	AllowHeadersHeader     = "Access-Control-Allow-Headers"
	AllowMethodsHeader     = "Access-Control-Allow-Methods"
	RequestMethodHeader    = "Access-Control-Request-Method"
	AllowCredentialsHeader = "Access-Control-Allow-Credentials"
	ExposeHeadersHeader    = "Access-Control-Expose-Headers"
	MaxAgeHeader           = "Access-Control-Max-Age"
	separator              = ", "
)

// Cors is the CORS policy of the HTTP ingress.
type Cors struct {
	AllowCredentials *bool    `yaml:"allowCredentials,omitempty" json:"allowCredentials,omitempty"`
	AllowHeaders     []string `yaml:"allowHeaders,omitempty" json:"allowHeaders,omitempty"`
	AllowMethods     []string `yaml:"allowMethods,omitempty" json:"allowMethods,omitempty"`
	AllowOrigins     []string `yaml:"allowOrigins,omitempty" json:"allowOrigins,omitempty"`
	ExposeHeaders    []string `yaml:"exposeHeaders,omitempty" json:"exposeHeaders,omitempty"`
	MaxAge           *int64   `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
}

func (c *Cors) allowsOrigin(origin string) (string, bool) {
	for _, candidate := range c.AllowOrigins {
		if candidate == "*" {
			if origin == "" {
				return "*", true
			}
			return origin, true
		}
		if origin != "" && candidate == origin {
			return origin, true
		}
	}
	return "", false
}

type corsHandler struct {
	*Cors
}

func (h *corsHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Cors.setHeaders(w, r)
		if r.Method == http.MethodOptions && r.Header.Get(RequestMethodHeader) != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Cors) setHeaders(writer http.ResponseWriter, request *http.Request) {
	if c == nil {
		return
	}
	header := writer.Header()
	if origin, ok := c.allowsOrigin(request.Header.Get("Origin")); ok {
		header.Set(AllowOriginHeader, origin)
	}
	if len(c.AllowMethods) > 0 {
		method := request.Method
		if requested := request.Header.Get(RequestMethodHeader); requested != "" {
			method = requested
		}
		header.Set(AllowMethodsHeader, method)
	}
	if len(c.AllowHeaders) > 0 {
		allowed := strings.Join(c.AllowHeaders, separator)
		if allowed == "*" {
			allowed = "Content-Type,Authorization," + ProtocolVersionHeader + ",Mcp-Session-Id,Last-Event-ID"
		}
		header.Set(AllowHeadersHeader, allowed)
	}
	if c.AllowCredentials != nil {
		header.Set(AllowCredentialsHeader, strconv.FormatBool(*c.AllowCredentials))
	}
	if c.MaxAge != nil {
		header.Set(MaxAgeHeader, strconv.FormatInt(*c.MaxAge, 10))
	}
	if len(c.ExposeHeaders) > 0 {
		exposed := strings.Join(c.ExposeHeaders, separator)
		if exposed == "*" {
			exposed = "Content-Type," + ProtocolVersionHeader + ",Mcp-Session-Id"
		}
		header.Set(ExposeHeadersHeader, exposed)
	}
}

func defaultCors() *Cors {
	return &Cors{
		AllowCredentials: &[]bool{true}[0],
		AllowHeaders:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowOrigins:     []string{"*"},
		ExposeHeaders:    []string{"*"},
	}
}
