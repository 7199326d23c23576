// Package http serves the crime dashboard API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"crimewatch/config"
)

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	GzipMinSize    int
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfigFrom(config.Default().HTTP)
}

func ServerConfigFrom(cfg config.HTTPConfig) ServerConfig {
	return ServerConfig{
		Port:           cfg.Port,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		GzipMinSize:    cfg.GzipMinSize,
		AllowedOrigins: cfg.AllowedOrigins,
	}
}

func NewServer(config ServerConfig, api *API, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewHandler(config, api, logger),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// NewHandler wires routes and middleware. The websocket route skips the timeout and gzip layers.
func NewHandler(config ServerConfig, api *API, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if api.Logger == nil {
		api.Logger = logger
	}
	mux := http.NewServeMux()
	api.Register(mux)

	label := routeLabel(api.Routes())
	common := []Middleware{
		RecoveryMiddleware(logger), // outermost, catches panics
		LoggerMiddleware(logger, api.Metrics, label),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
	}

	chain := Chain(append(common,
		TimeoutMiddleware(config.RequestTimeout),
		GzipMiddleware(config.GzipMinSize),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)...)

	root := http.NewServeMux()
	if api.Monitor != nil {
		root.Handle(wsPath, Chain(common...)(http.HandlerFunc(api.handleWebSocket)))
	}
	root.Handle("/", chain(mux))
	return root
}

// routeLabel maps a request path to a bounded metrics label.
func routeLabel(routes []string) func(*http.Request) string {
	known := make(map[string]bool, len(routes))
	for _, pattern := range routes {
		if i := strings.IndexByte(pattern, ' '); i >= 0 {
			pattern = pattern[i+1:]
		}
		known[pattern] = true
	}
	return func(r *http.Request) string {
		if known[r.URL.Path] {
			return r.URL.Path
		}
		return "unmatched"
	}
}

// Start blocks until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	s.logger.Info("websocket endpoint", zap.String("url", "ws://"+ln.Addr().String()+wsPath))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
