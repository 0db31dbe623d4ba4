// Package channel carries the chat protocol over WebSocket connections.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"searchbot/internal/domain"
	"searchbot/internal/metrics"
	"searchbot/internal/stream"
)

// openSignal tells the client the connection is ready for requests.
var openSignal = []byte(`{"type":"signal","data":"open"}`)

// Handler processes one inbound frame, writing replies to sink.
type Handler interface {
	Handle(ctx context.Context, raw []byte, sink stream.Sink)
}

// WSConfig configures the WebSocket endpoint.
type WSConfig struct {
	AllowedOrigins  []string // empty allows any origin
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	Logger          *slog.Logger
}

// WebSocketServer accepts client connections and feeds their frames to a
// Handler. It implements http.Handler.
type WebSocketServer struct {
	upgrader     websocket.Upgrader
	handler      Handler
	writeTimeout time.Duration
	maxMessage   int64
	logger       *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// wsClient is one connection. Writes are serialized because several
// streams may share the connection.
type wsClient struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func NewWebSocketServer(cfg WSConfig, h Handler) *WebSocketServer {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return &WebSocketServer{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		handler:      h,
		writeTimeout: cfg.WriteTimeout,
		maxMessage:   cfg.MaxMessageBytes,
		logger:       cfg.Logger,
		clients:      make(map[*wsClient]struct{}),
	}
}

func (ws *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(ws.maxMessage)

	client := &wsClient{conn: conn, writeTimeout: ws.writeTimeout}
	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()
	metrics.OpenConnection.Inc()

	// Streams started on this connection stop when it closes.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		ws.mu.Lock()
		delete(ws.clients, client)
		ws.mu.Unlock()
		metrics.OpenConnection.Dec()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
	}()

	ws.logger.Info("websocket client connected", "remote", r.RemoteAddr)
	if err := client.write(openSignal); err != nil {
		return
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Warn("websocket read error", "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		ws.handler.Handle(ctx, data, client)
	}
}

// Clients returns the number of open connections.
func (ws *WebSocketServer) Clients() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.clients)
}

// CloseAll closes every open connection. Their read loops then exit and
// cancel their streams.
func (ws *WebSocketServer) CloseAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for c := range ws.clients {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.conn.Close()
	}
}

// Send implements stream.Sink.
func (c *wsClient) Send(ctx context.Context, f domain.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", f.Type, err)
	}
	return c.write(data)
}

var errWriteFailed = errors.New("websocket write failed")

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", errWriteFailed, err)
	}
	return nil
}
