package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voxline/animus/internal/engine"
)

// FrameFeed serves rendered parameter frames to attached renderer
// clients over WebSocket. A slow client is dropped rather than allowed
// to stall the frame loop.
type FrameFeed struct {
	addr     string
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

type feedClient struct {
	conn *websocket.Conn
	send chan FrameMessage
}

// NewFrameFeed creates a feed listening on addr.
func NewFrameFeed(addr string, logger zerolog.Logger) *FrameFeed {
	return &FrameFeed{
		addr:   addr,
		logger: logger.With().Str("component", "frame-feed").Logger(),
		upgrader: websocket.Upgrader{
			// Renderer clients are local tools; no origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*feedClient]struct{}),
	}
}

// Start begins serving in the background.
func (f *FrameFeed) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/frames", f.handleFrames)
	f.server = &http.Server{Addr: f.addr, Handler: mux}

	go func() {
		f.logger.Info().Str("addr", f.addr).Msg("Frame feed listening")
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			f.logger.Error().Err(err).Msg("Frame feed server failed")
		}
	}()
}

// Stop shuts the server down and disconnects all clients.
func (f *FrameFeed) Stop() {
	if f.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		f.server.Shutdown(ctx)
	}

	f.mu.Lock()
	for c := range f.clients {
		close(c.send)
		delete(f.clients, c)
	}
	f.mu.Unlock()
}

// Broadcast sends a frame to every attached client without blocking.
func (f *FrameFeed) Broadcast(frame engine.Frame) {
	msg := FrameMessage{
		Type:    "frame",
		Params:  frame.Params,
		Talking: frame.Talking,
		Gesture: frame.Gesture,
	}

	f.mu.Lock()
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
			// Backed-up client: drop it.
			close(c.send)
			delete(f.clients, c)
			f.logger.Warn().Msg("Dropping slow feed client")
		}
	}
	f.mu.Unlock()
}

// ClientCount returns the number of attached renderers.
func (f *FrameFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *FrameFeed) handleFrames(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Feed upgrade failed")
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan FrameMessage, 8),
	}

	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()
	f.logger.Info().Str("remote", r.RemoteAddr).Msg("Feed client attached")

	go f.writeLoop(client)

	// Drain inbound messages so pings and close frames are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.mu.Lock()
	if _, ok := f.clients[client]; ok {
		close(client.send)
		delete(f.clients, client)
	}
	f.mu.Unlock()
	conn.Close()
}

func (f *FrameFeed) writeLoop(c *feedClient) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
}
