// Package monitor exposes the output path's counters over a small
// WebSocket endpoint, so dropped writes are observable instead of
// fully silent.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Snapshot is one stats sample pushed to connected clients.
type Snapshot struct {
	Frames        uint64 `json:"frames"`
	DroppedWrites uint64 `json:"dropped_writes"`
	Strips        int    `json:"strips"`
	Pixels        int    `json:"pixels"`
}

// State broadcasts periodic snapshots to every connected client.
type State struct {
	snap func() Snapshot

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New builds a State around a snapshot source.
func New(snap func() Snapshot) *State {
	return &State{
		snap:    snap,
		clients: map[*websocket.Conn]bool{},
	}
}

// HandleStatsWS upgrades the connection and registers it for
// broadcasts. Client reads are discarded; the socket is send-only.
func (s *State) HandleStatsWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Run pushes a snapshot to all clients once per second until the
// context is canceled.
func (s *State) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(s.snap())
		}
	}
}

func (s *State) broadcast(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteJSON(snap); err != nil {
			delete(s.clients, conn)
			_ = conn.Close()
		}
	}
}

// Serve runs the HTTP endpoint until the context is canceled.
func Serve(ctx context.Context, addr string, s *State) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleStatsWS)
	mux.HandleFunc("/health", s.HandleHealth)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	go s.Run(ctx)

	log.Info().Str("addr", addr).Msg("status endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("status endpoint crashed")
	}
}
