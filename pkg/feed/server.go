package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/version"
)

// Server serves the websocket feed and a JSON status endpoint.
type Server struct {
	hub     *Hub
	tracker *connection.Tracker
	path    string
	logger  *slog.Logger

	upgrader websocket.Upgrader
}

// NewServer creates a feed server for tracker. Path defaults to "/events".
func NewServer(tracker *connection.Tracker, path string, logger *slog.Logger) *Server {
	if path == "" {
		path = "/events"
	}
	return &Server{
		hub:     NewHub(),
		tracker: tracker,
		path:    path,
		logger:  logger,
		upgrader: websocket.Upgrader{
			Subprotocols: version.SupportedSubprotocols(),
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes: the websocket at the configured path and
// GET /status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleEvents)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Forward broadcasts tracker events until ctx ends or the tracker closes.
func (s *Server) Forward(ctx context.Context) {
	events, cancel := s.tracker.Subscribe()
	defer cancel()
	s.forward(ctx, events)
}

func (s *Server) forward(ctx context.Context, events <-chan connection.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(MessageFrom(ev))
		}
	}
}

// ListenAndServe serves on addr and forwards events until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go s.Forward(ctx)
	go func() {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.infoLog("event feed listening", "addr", ln.Addr().String(), "path", s.path)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// checkVersion rejects clients that ask for another major protocol
// version, either with ?version=major.minor or by subprotocol.
func checkVersion(r *http.Request) error {
	if v := r.URL.Query().Get("version"); v != "" {
		if err := version.Check(v); err != nil {
			return err
		}
	}
	return version.CheckSubprotocols(websocket.Subprotocols(r))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if err := checkVersion(r); err != nil {
		s.infoLog("feed client rejected", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.infoLog("websocket upgrade failed", "error", err)
		return
	}

	// The snapshot goes out before registration so it never races a
	// broadcast write on the same connection.
	conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
	if err := conn.WriteJSON(snapshotMessage(s.tracker.Snapshot())); err != nil {
		conn.Close()
		return
	}
	if !s.hub.AddClient(conn) {
		return
	}

	// Clients only listen; reading detects the close.
	go func() {
		defer s.hub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		json.NewEncoder(w).Encode(map[string]string{"error": "Method not allowed"})
		return
	}
	json.NewEncoder(w).Encode(StatusFrom(s.tracker.Snapshot()))
}

func (s *Server) infoLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
