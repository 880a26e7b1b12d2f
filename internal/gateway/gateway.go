// Package gateway is the HTTP front of the lingua gateway.
//
// DESIGN: The gateway sits between a client and the Anthropic API:
//   - POST /v1/messages: compress message text, then forward
//   - GET  /health:      gateway and engine health
//   - GET  /stats:       savings and counters (loopback only)
//   - GET  /metrics:     Prometheus metrics
//   - everything else:   forwarded untouched
//
// FILES:
//   - gateway.go:    Gateway struct, New(), Start(), Shutdown()
//   - handler.go:    Request handlers and upstream forwarding
//   - router.go:     Pipe routing and worker pools
//   - middleware.go: Logging, panic recovery, rate limiting
//   - types.go:      PipelineContext and constants
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/lingua-gateway/internal/adapters"
	"github.com/compresr/lingua-gateway/internal/config"
	"github.com/compresr/lingua-gateway/internal/engine"
	"github.com/compresr/lingua-gateway/internal/monitoring"
)

// Gateway is the compression proxy.
type Gateway struct {
	config     *config.Config
	upstream   *url.URL
	httpClient *http.Client
	server     *http.Server
	handler    http.Handler

	registry *adapters.Registry
	router   *Router
	engine   engine.Engine

	logger        *monitoring.Logger
	requestLogger *monitoring.RequestLogger
	alerts        *monitoring.AlertManager
	metrics       *monitoring.MetricsCollector
	savings       *monitoring.SavingsTracker
	rateLimiter   *rateLimiter

	startTime time.Time
}

// Option configures the Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = c
	}
}

// WithSavings sets the savings tracker.
func WithSavings(s *monitoring.SavingsTracker) Option {
	return func(g *Gateway) {
		g.savings = s
	}
}

// WithLogger sets the logger used for request and alert logs.
func WithLogger(l *monitoring.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// New creates a gateway that compresses with eng.
func New(cfg *config.Config, eng engine.Engine, opts ...Option) (*Gateway, error) {
	upstream, err := url.Parse(strings.TrimRight(cfg.Upstream.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url: %w", err)
	}

	g := &Gateway{
		config:    cfg,
		upstream:  upstream,
		registry:  adapters.NewRegistry(),
		engine:    eng,
		metrics:   monitoring.NewMetricsCollector(),
		startTime: time.Now(),
		httpClient: newUpstreamClient(cfg.Upstream.Timeout),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = monitoring.New(monitoring.LoggerConfig{
			Level:  cfg.Monitoring.LogLevel,
			Format: cfg.Monitoring.LogFormat,
			Output: cfg.Monitoring.LogOutput,
		})
	}
	if g.savings == nil {
		g.savings = monitoring.NewSavingsTracker(nil)
	}
	g.requestLogger = monitoring.NewRequestLogger(g.logger)
	g.alerts = monitoring.NewAlertManager(g.logger, monitoring.AlertConfig{})
	g.router = NewRouter(cfg, eng)
	if cfg.Server.RateLimit > 0 {
		g.rateLimiter = newRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	}

	g.handler = g.panicRecovery(g.rateLimit(g.loggingMiddleware(g.routes())))
	g.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      g.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return g, nil
}

// newUpstreamClient bounds connect and time-to-headers only. Response
// bodies, including long event streams, are read until the upstream ends
// them or the client goes away.
func newUpstreamClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{
		Transport: transport,
		// Redirects are the client's business, not ours.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// routes builds the request multiplexer.
func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+adapters.AnthropicMessagesPath, g.handleMessages)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /stats", g.handleStats)
	if g.config.Monitoring.MetricsEnabled {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
	mux.HandleFunc("/", g.handlePassthrough)
	return mux
}

// Handler returns the fully wrapped HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Start listens and serves until Shutdown is called.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.server.Addr, err)
	}
	return g.Serve(ln)
}

// Serve serves on an existing listener.
func (g *Gateway) Serve(ln net.Listener) error {
	log.Info().
		Str("addr", ln.Addr().String()).
		Str("upstream", g.upstream.String()).
		Str("engine", g.engine.Name()).
		Msg("lingua gateway listening")

	if err := g.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	err := g.server.Shutdown(ctx)
	if g.rateLimiter != nil {
		g.rateLimiter.close()
	}
	if closeErr := g.savings.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
