package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// wsIndication is pushed to every client for each coordinator event.
type wsIndication struct {
	Type string `json:"type"`
	Ind  string `json:"ind"`
	Data any    `json:"data"`
}

// wsRequest is a client request frame.
type wsRequest struct {
	Type string          `json:"type"`
	Seq  int             `json:"seq"`
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// wsResponse answers a wsRequest with the same seq. Status is 0 on
// success and 1 on failure.
type wsResponse struct {
	Type   string `json:"type"`
	Seq    int    `json:"seq"`
	Cmd    string `json:"cmd,omitempty"`
	Status int    `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

const (
	wsStatusOK   = 0
	wsStatusFail = 1
)

var errUnknownCommand = errors.New("unknown command")

// WSHub manages WebSocket connections and broadcasts events.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan any
	direct     chan directMsg

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

type directMsg struct {
	client *wsClient
	msg    any
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan any, 256),
		direct:     make(chan directMsg, 64),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Only Run closes client send channels.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client connected", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client disconnected", "total", total)

		case dm := <-h.direct:
			data, err := json.Marshal(dm.msg)
			if err != nil {
				h.logger.Error("ws marshal", "err", err)
				continue
			}
			h.mu.Lock()
			if _, ok := h.clients[dm.client]; ok {
				select {
				case dm.client.send <- data:
				default:
					delete(h.clients, dm.client)
					close(dm.client.send)
					h.logger.Warn("ws client evicted (too slow)")
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("ws marshal", "err", err)
				continue
			}
			h.mu.Lock()
			var slow []*wsClient
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					slow = append(slow, client)
				}
			}
			for _, client := range slow {
				delete(h.clients, client)
				close(client.send)
				h.logger.Warn("ws client evicted (too slow)")
			}
			h.mu.Unlock()
		}
	}
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg any) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws broadcast channel full, dropping message")
	}
}

// Send delivers a message to a single client if it is still connected.
func (h *WSHub) Send(client *wsClient, msg any) {
	select {
	case h.direct <- directMsg{client: client, msg: msg}:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	// Without allowedOrigins, nhooyr defaults to a same-origin check.

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}

	conn.SetReadLimit(4096)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	// Channel closed by hub; close connection.
	client.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		_, data, err := client.conn.Read(ctx)
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "req" {
			s.logger.Debug("ws ignoring frame", "err", err)
			continue
		}
		s.wsHub.Send(client, s.handleWSRequest(ctx, req))
	}
}

// handleWSRequest runs one client request and builds its response.
func (s *Server) handleWSRequest(ctx context.Context, req wsRequest) wsResponse {
	rsp := wsResponse{Type: "rsp", Seq: req.Seq, Cmd: req.Cmd, Status: wsStatusOK}

	var err error
	switch req.Cmd {
	case "getDevs":
		rsp.Data = s.coord.GetDevices()
	case "permitJoin":
		var args permitJoinRequest
		if err = decodeArgs(req.Args, &args); err == nil {
			err = s.coord.PermitJoin(ctx, args.Time)
		}
	case "write":
		var args writeRequest
		if err = decodeArgs(req.Args, &args); err == nil {
			err = s.coord.Write(ctx, args.PermAddr, args.AuxID, args.Value)
			rsp.Data = args.Value
		}
	default:
		err = errUnknownCommand
	}

	if err != nil {
		s.logger.Warn("ws request failed", "cmd", req.Cmd, "seq", req.Seq, "err", err)
		rsp.Status = wsStatusFail
		rsp.Data = nil
		rsp.Error = err.Error()
	}
	return rsp
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing args")
	}
	return json.Unmarshal(raw, v)
}
