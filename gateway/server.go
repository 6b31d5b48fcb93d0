// Package gateway exposes the payment gateway's HTTP surface: the
// facilitator-fronting settlement endpoints and the MCP relay. Routing is
// chi; each payment endpoint delegates to the settle package and the relay
// mounts the proxy package unchanged.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	payrelay "github.com/payrelay/payrelay-go"
	"github.com/payrelay/payrelay-go/proxy"
	"github.com/payrelay/payrelay-go/settle"
)

// Route paths.
const (
	PathSubmit            = "/api/payment/usdc/submit"
	PathFacilitatorHealth = "/api/payment/facilitator/health"
	PathMCPProxy          = "/api/mcp-proxy"
)

// Server is the payment gateway HTTP server.
type Server struct {
	logger        zerolog.Logger
	listenAddress string
	server        *http.Server

	sessions       proxy.SessionProvider
	allowedOrigins []string
	devMode        bool

	// facilitators maps network ids to their facilitator clients. Populated
	// from the registry at construction; overridable per network for tests
	// and self-hosted facilitators.
	facilitators map[string]*settle.FacilitatorClient
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithListenAddress sets the listen address.
func WithListenAddress(addr string) ServerOption {
	return func(s *Server) {
		s.listenAddress = addr
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSessionProvider sets the session authenticator used by the relay.
func WithSessionProvider(sp proxy.SessionProvider) ServerOption {
	return func(s *Server) {
		s.sessions = sp
	}
}

// WithAllowedOrigins sets the CORS origin allow-list.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithDevMode additionally allows localhost origins.
func WithDevMode(dev bool) ServerOption {
	return func(s *Server) {
		s.devMode = dev
	}
}

// WithFacilitatorClient overrides the facilitator client for one network.
func WithFacilitatorClient(networkID string, client *settle.FacilitatorClient) ServerOption {
	return func(s *Server) {
		s.facilitators[networkID] = client
	}
}

// New creates a Server. Facilitator clients default to the registry's
// facilitator URLs.
func New(opts ...ServerOption) *Server {
	s := &Server{
		listenAddress: ":8080",
		facilitators:  make(map[string]*settle.FacilitatorClient),
	}
	for _, id := range payrelay.Networks() {
		network, _ := payrelay.GetNetworkConfig(id)
		s.facilitators[id] = settle.NewFacilitatorClient(network.FacilitatorURL)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gateway's HTTP handler.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: len(s.allowedOrigins) > 0,
	}))

	r.Post(PathSubmit, s.HandleSubmit)
	r.Get(PathFacilitatorHealth, s.HandleFacilitatorHealth)

	relay := &proxy.Relay{
		Sessions:       s.sessions,
		AllowedOrigins: s.allowedOrigins,
		DevMode:        s.devMode,
		Logger:         s.logger,
	}
	r.Handle(PathMCPProxy, relay)

	s.logger.Info().Str("addr", s.listenAddress).Msg("gateway routes initialized")
	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.allowedOrigins
}

// Start runs the server until Stop or listener failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.listenAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// Read/write timeouts stay unset: relay responses may stream
		// event-source bodies for the lifetime of a conversation.
		IdleTimeout: 120 * time.Second,
	}
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
