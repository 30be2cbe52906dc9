package stream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Server serves the hub websocket endpoint over HTTP.
type Server struct {
	Hub *Hub
	srv *http.Server
}

// NewServer creates new Server listening on addr which streams hub messages on /ws.
func NewServer(addr string, hub *Hub) *Server {
	mux := http.NewServeMux()

	// WebSocket
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &Server{
		Hub: hub,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns server HTTP handler
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start runs the hub and serves HTTP until ctx is cancelled.
// It returns nil once the server has been shut down.
func (s *Server) Start(ctx context.Context) error {
	go s.Hub.Run(ctx)

	errc := make(chan error, 1)
	go func() {
		s.Hub.log.Info("stream server listening", slog.String("addr", s.srv.Addr))
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
