package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/beacon/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	outboundQueueSize = 32
	writeDeadline     = 5 * time.Second
	pongDeadline      = 60 * time.Second
	pingInterval      = 30 * time.Second
	maxFrameSize      = 512
)

var errUnknownHandle = errors.New("server: unknown connection handle")

// SessionEvents receives the lifecycle callbacks the transport raises for
// each connection. Satisfied by the session controller.
type SessionEvents interface {
	OnConnect(handle string)
	OnJoin(handle string, userID int64) error
	OnLeave(handle string, userID int64)
	OnDisconnect(handle string)
}

// serverFrame is the envelope for every event pushed to a client.
type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// clientFrame is what clients send: a join or leave for a user id.
type clientFrame struct {
	Action string `json:"action"`
	UserID int64  `json:"user_id"`
}

// TransportConfig describes the dependencies for the websocket transport.
type TransportConfig struct {
	Logger *zap.Logger
}

// Transport owns the websocket side of the delivery service: it upgrades
// connections, assigns each one a handle, pumps outbound frames through a
// bounded per-connection queue, and raises session lifecycle events. It is
// the Sender the delivery engine and session controller push through.
type Transport struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient

	sessions SessionEvents
}

// NewTransport constructs the websocket transport.
func NewTransport(cfg TransportConfig) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

// BindSessions attaches the session controller. The transport and the
// controller reference each other, so the controller is attached after both
// are constructed.
func (t *Transport) BindSessions(sessions SessionEvents) {
	t.sessions = sessions
}

// Send pushes one event frame to a single handle. The frame is queued on the
// connection's bounded outbound queue; a full queue or an unknown handle is
// reported as an error and affects only that handle.
func (t *Transport) Send(handle string, event string, payload any) error {
	t.mu.RLock()
	client := t.clients[handle]
	t.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("%w: %s", errUnknownHandle, handle)
	}

	frame, err := json.Marshal(serverFrame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("server: encoding %s frame: %w", event, err)
	}

	select {
	case client.outbound <- frame:
		return nil
	default:
		return fmt.Errorf("server: outbound queue full for handle %s", handle)
	}
}

// HandleConnection upgrades the request and runs the connection until the
// client goes away.
func (t *Transport) HandleConnection(c *gin.Context) {
	if t.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "transport_not_ready"})
		return
	}

	conn, err := t.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		t.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	handle := uuid.NewString()
	client := newWSClient(conn)

	t.mu.Lock()
	t.clients[handle] = client
	t.mu.Unlock()
	metrics.LiveConnections.Inc()

	t.sessions.OnConnect(handle)
	go client.writePump(t.logger, handle)

	defer func() {
		t.mu.Lock()
		delete(t.clients, handle)
		t.mu.Unlock()
		metrics.LiveConnections.Dec()
		t.sessions.OnDisconnect(handle)
		client.close()
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.logger.Debug("discarding malformed client frame", zap.String("handle", handle))
			continue
		}

		switch frame.Action {
		case "join":
			if frame.UserID <= 0 {
				continue
			}
			if err := t.sessions.OnJoin(handle, frame.UserID); err != nil {
				t.logger.Warn("join failed",
					zap.String("handle", handle),
					zap.Int64("user_id", frame.UserID),
					zap.Error(err))
			}
		case "leave":
			if frame.UserID <= 0 {
				continue
			}
			t.sessions.OnLeave(handle, frame.UserID)
		default:
			t.logger.Debug("discarding unknown client action",
				zap.String("handle", handle),
				zap.String("action", frame.Action))
		}
	}
}

type wsClient struct {
	conn      *websocket.Conn
	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:     conn,
		outbound: make(chan []byte, outboundQueueSize),
		done:     make(chan struct{}),
	}
}

func (c *wsClient) writePump(logger *zap.Logger, handle string) {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("websocket write failed", zap.String("handle", handle), zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
