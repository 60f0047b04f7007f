// WebSocket Transport.
//
// Serves the chat protocol over WebSocket plus health and metrics
// endpoints.
//
// Information Hiding:
// - Connection upgrade and per-connection loops hidden
// - Frame encoding hidden behind protocol types
// - Broadcast bookkeeping hidden in the hub

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/richinex/tablecopilot/model"
	"github.com/richinex/tablecopilot/notifier"
	"github.com/richinex/tablecopilot/observability"
	"github.com/richinex/tablecopilot/orchestration"
)

// ConnectedMessage is sent in the connection frame.
const ConnectedMessage = "Connected to tablecopilot"

// shutdownTimeout bounds the HTTP shutdown plus the wait for in-flight turns.
const shutdownTimeout = 30 * time.Second

// Orchestrator is what the transport needs from the turn machinery.
type Orchestrator interface {
	ProcessMessage(ctx context.Context, sessionID, text string, sink orchestration.Sink) (model.TurnResult, error)
	ClearHistory(sessionID string) bool
}

// Config holds listener settings.
type Config struct {
	Host        string
	Port        int
	MetricsPath string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the WebSocket front end.
type Server struct {
	config   Config
	orch     Orchestrator
	logger   *zap.Logger
	metrics  *observability.Metrics
	hub      *hub
	upgrader websocket.Upgrader
}

// New creates a server. metrics may be nil.
func New(config Config, orch Orchestrator, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	return &Server{
		config:  config,
		orch:    orch,
		logger:  logger,
		metrics: metrics,
		hub:     newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok %d\n", s.hub.len())
	})
	if s.metrics != nil {
		mux.Handle(s.config.MetricsPath, s.metrics.Handler())
	}
	mux.HandleFunc("/", s.serveWS)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.closeAll()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	// Upgraded connections are hijacked, so Shutdown does not wait for them.
	if closeErr := s.Close(shutdownCtx); err == nil {
		err = closeErr
	}
	s.logger.Info("Server stopped")
	return err
}

// Close disconnects every client, refuses new ones, and waits until each
// connection's in-flight turn has finished or ctx ends.
func (s *Server) Close(ctx context.Context) error {
	s.hub.closeAll()
	if err := s.hub.wait(ctx); err != nil {
		return fmt.Errorf("waiting for connections: %w", err)
	}
	return nil
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	return s.hub.len()
}

// Notify broadcasts a reminder to every open connection.
func (s *Server) Notify(_ context.Context, n notifier.Notification) error {
	delivered, dropped := s.hub.broadcast(NotificationFrame(n))
	if dropped > 0 {
		s.metrics.RecordTransportError("broadcast_dropped")
	}
	s.logger.Debug("Broadcast notification",
		zap.String("schedule", n.ScheduleID),
		zap.Int("delivered", delivered),
		zap.Int("dropped", dropped))
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.metrics.RecordTransportError("upgrade")
		s.logger.Debug("Upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newConn(s, ws, r.RemoteAddr)
	if !s.hub.add(c) {
		c.close()
		return
	}
	s.metrics.IncConnections()
	s.logger.Info("Client connected", zap.String("client", c.id))

	c.run()

	s.hub.remove(c)
	s.metrics.DecConnections()
	s.logger.Info("Client disconnected", zap.String("client", c.id))
}

var _ notifier.Sink = (*Server)(nil)
