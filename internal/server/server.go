package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Server owns the chat core and the transport that feeds it.
type Server struct {
	cfg          Config
	logger       *slog.Logger
	hub          *Hub
	registry     *chat.Registry
	sessions     *chat.Tracker
	router       *chat.Router
	reaper       *chat.Reaper
	metrics      *Metrics
	promRegistry *prometheus.Registry
	origins      *originPolicy
	upgrader     websocket.Upgrader

	stopReaper context.CancelFunc
	reaperDone chan struct{}
	startOnce  sync.Once
}

// New wires the registry, session tracker, router, broadcaster and reaper to
// a fresh hub.
func New(cfg *Config, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := chat.NewRegistry()
	metrics := NewMetrics(promRegistry, registry.Len)
	hub := NewHub(
		WithLogger(logger.With("component", "hub")),
		WithMetrics(metrics),
		WithSendBufferSize(sanitized.SendBufferSize),
		WithMaxMessageSize(sanitized.MaxMessageSize),
	)
	sessions := chat.NewTracker()
	broadcaster := chat.NewBroadcaster(registry, hub, logger)
	router := chat.NewRouter(registry, sessions, hub, broadcaster, logger,
		chat.WithEventHook(metrics.ObserveEvent))
	hub.SetHandler(router)

	origins := newOriginPolicy(sanitized.AllowedOrigins, logger)

	return &Server{
		cfg:          sanitized,
		logger:       logger,
		hub:          hub,
		registry:     registry,
		sessions:     sessions,
		router:       router,
		reaper:       chat.NewReaper(registry, broadcaster, sanitized.RoomIdleTTL, sanitized.ReapInterval, logger),
		metrics:      metrics,
		promRegistry: promRegistry,
		origins:      origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		reaperDone: make(chan struct{}),
	}
}

// Start runs the hub loop and the room reaper in the background.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		go s.hub.Run()

		ctx, cancel := context.WithCancel(context.Background())
		s.stopReaper = cancel
		go func() {
			defer close(s.reaperDone)
			if err := s.reaper.Run(ctx); err != nil {
				s.logger.Error("Room reaper stopped", "error", err)
			}
		}()
		s.logger.Info("Hub started and ready to manage WebSocket connections",
			"reaper", s.reaper.Enabled(), "room_idle_ttl", s.cfg.RoomIdleTTL)
	})
}

// Shutdown stops the reaper and closes every connection, waiting at most
// timeout for client goroutines to finish.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.stopReaper != nil {
		s.stopReaper()
		<-s.reaperDone
	}
	return s.hub.Shutdown(timeout)
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}

// Config returns the sanitized configuration the server runs with.
func (s *Server) Config() Config {
	return s.cfg
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Registry returns the room registry.
func (s *Server) Registry() *chat.Registry {
	return s.registry
}

// Sessions returns the session tracker.
func (s *Server) Sessions() *chat.Tracker {
	return s.sessions
}
