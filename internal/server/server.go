package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatwave/internal/realtime"
	"github.com/Tyrowin/chatwave/internal/storage"
	"github.com/Tyrowin/chatwave/internal/supervisor"
)

// Store is the persistence the server needs: room membership for joins,
// messages and reactions for inbound commands, and the message REST API.
type Store interface {
	realtime.Membership
	GetRoom(ctx context.Context, roomID string) (storage.Room, error)
	PersistMessage(ctx context.Context, msg storage.Message) (storage.Message, error)
	GetMessage(ctx context.Context, id string) (storage.Message, error)
	EditMessage(ctx context.Context, id, content string) (storage.Message, error)
	SoftDeleteMessage(ctx context.Context, id string) (storage.Message, error)
	RoomMessages(ctx context.Context, roomID string, skip, limit int) ([]storage.Message, error)
	AddReaction(ctx context.Context, reaction storage.Reaction) (bool, error)
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) (bool, error)
	Reactions(ctx context.Context, messageID string) ([]storage.Reaction, error)
}

// Server owns the realtime engine and its HTTP surface.
type Server struct {
	config     Config
	log        *slog.Logger
	store      Store
	verifier   realtime.Verifier
	registry   *realtime.Registry
	index      *realtime.Index
	queue      *realtime.EvictionQueue
	dispatcher *realtime.Dispatcher
	controller *realtime.Controller
	supervisor *supervisor.Supervisor
	origins    *originPolicy
	upgrader   websocket.Upgrader

	ctx         context.Context
	cancel      context.CancelFunc
	pumps       sync.WaitGroup
	workersDone chan struct{}
	startOnce   sync.Once

	mu         sync.Mutex
	closing    bool
	httpServer *http.Server
}

// New builds a Server around store and verifier. Call Start, or
// ListenAndServe, to run its workers.
func New(log *slog.Logger, config Config, store Store, verifier realtime.Verifier) *Server {
	config = sanitizeConfig(config)

	registry := realtime.NewRegistry()
	index := realtime.NewIndex()
	queue := realtime.NewEvictionQueue(config.EvictionQueueSize)
	dispatcher := realtime.NewDispatcher(log, registry, index, queue, realtime.DispatcherConfig{
		DeliveryTimeout: config.DeliveryTimeout,
		Concurrency:     config.FanoutConcurrency,
	})
	presence := realtime.NewPresence(log, dispatcher)
	controller := realtime.NewController(log, registry, index, dispatcher, presence, verifier, store,
		realtime.ControllerConfig{Strict: config.StrictInvariants})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      config,
		log:         log,
		store:       store,
		verifier:    verifier,
		registry:    registry,
		index:       index,
		queue:       queue,
		dispatcher:  dispatcher,
		controller:  controller,
		origins:     newOriginPolicy(log, config.Origins()),
		ctx:         ctx,
		cancel:      cancel,
		workersDone: make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.supervisor = supervisor.New(log).Add(
		realtime.NewReaper(log, queue, controller),
		newStatsReporter(log, s, config.StatsInterval),
	)
	return s
}

// Start launches the background workers. Calling it again is a no-op.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		go func() {
			defer close(s.workersDone)
			s.supervisor.Run(s.ctx)
		}()
		s.log.Info("Realtime engine started")
	})
}

// Handler returns the HTTP routes served by s.
func (s *Server) Handler() http.Handler { return s.routes() }

// Controller exposes the connection lifecycle, mostly for tests and tooling.
func (s *Server) Controller() *realtime.Controller { return s.controller }

// ListenAndServe starts the workers and serves HTTP on the configured port
// until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.Start()
	httpServer := CreateServer(s.config.Port, s.Handler())
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.httpServer = httpServer
	s.mu.Unlock()

	s.log.Info("Server listening", "addr", s.config.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, disconnects every live connection and
// waits for the pumps and workers to exit, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.mu.Lock()
	s.closing = true
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	handles := s.registry.Handles()
	for _, h := range handles {
		s.controller.Disconnect(ctx, h, "server shutdown")
	}
	s.log.Info("Disconnected clients", "count", len(handles))

	s.cancel()
	s.supervisor.Stop()

	if err := waitFor(ctx, s.pumps.Wait); err != nil {
		errs = append(errs, fmt.Errorf("waiting for connections: %w", err))
	}
	s.startOnce.Do(func() { close(s.workersDone) })
	select {
	case <-s.workersDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for workers: %w", ctx.Err()))
	}

	s.log.Info("Server shutdown completed")
	return errors.Join(errs...)
}

// spawn runs fn as a tracked connection goroutine. It refuses once shutdown
// has begun.
func (s *Server) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.pumps.Add(1)
	go func() {
		defer s.pumps.Done()
		fn()
	}()
	return true
}

func waitFor(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
