// Package ws pushes status snapshots to dashboards over websockets.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"hivescan/internal/app/status"

	"github.com/gorilla/websocket"
)

const DefaultInterval = 2 * time.Second

type Snapshotter interface {
	Snapshot() status.Snapshot
}

type frame struct {
	Type     string          `json:"type"`
	SentAt   int64           `json:"sent_at"`
	Snapshot status.Snapshot `json:"snapshot"`
}

type Server struct {
	source   Snapshotter
	interval time.Duration
	upgrader websocket.Upgrader
	clients  atomic.Int64

	Logger *slog.Logger
}

func NewServer(source Snapshotter, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Server{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Clients is the number of connected dashboards.
func (s *Server) Clients() int64 { return s.clients.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		s.clients.Add(1)
		defer s.clients.Add(-1)
		s.logger().Info("feed client connected", "remote", r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			for {
				if err := s.push(conn); err != nil {
					writeErr <- err
					return
				}
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-ticker.C:
				}
			}
		}()

		// Reads only detect the client going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		s.logger().Info("feed client disconnected", "remote", r.RemoteAddr)
	}
}

func (s *Server) push(conn *websocket.Conn) error {
	b, err := json.Marshal(frame{Type: "status", SentAt: time.Now().Unix(), Snapshot: s.source.Snapshot()})
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// ListenAndServe serves the feed on addr at /feed until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/feed", s.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
