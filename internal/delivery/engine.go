package delivery

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/beacon/internal/metrics"
	"github.com/MarcoPoloResearchLab/beacon/internal/notifications"
	"go.uber.org/zap"
)

const (
	// EventReceiveNotification carries a single live-pushed notification.
	EventReceiveNotification = "ReceiveNotification"
	// EventLoadExistingNotifications carries the backlog batch replayed on join.
	EventLoadExistingNotifications = "LoadExistingNotifications"
)

// Sender pushes one event to a single connection handle. The transport layer
// implements it; a failed send affects only that handle.
type Sender interface {
	Send(handle string, event string, payload any) error
}

// ConnectionSource resolves the live handles of a user. Satisfied by the
// connection registry.
type ConnectionSource interface {
	ConnectionsFor(userID int64) []string
}

// NotificationPayload is the wire shape of one notification.
type NotificationPayload struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// PayloadFor maps a stored notification to its wire shape.
func PayloadFor(notification notifications.Notification) NotificationPayload {
	return NotificationPayload{
		ID:        notification.ID,
		Message:   notification.Message,
		CreatedAt: notification.CreatedAt,
	}
}

// PayloadsFor maps a backlog slice to its wire shape, preserving order.
func PayloadsFor(backlog []notifications.Notification) []NotificationPayload {
	payloads := make([]NotificationPayload, 0, len(backlog))
	for _, notification := range backlog {
		payloads = append(payloads, PayloadFor(notification))
	}
	return payloads
}

// EngineConfig describes the dependencies for the delivery engine.
type EngineConfig struct {
	Connections ConnectionSource
	Sender      Sender
	Logger      *zap.Logger
}

// Engine fans a notification out to every live connection of its target
// user. It holds no persistent state and never acknowledges delivery; the
// session layer owns acknowledgment because a transport-level send reaching
// the client application is not guaranteed.
type Engine struct {
	connections ConnectionSource
	sender      Sender
	logger      *zap.Logger
}

// NewEngine constructs the delivery engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Connections == nil {
		return nil, fmt.Errorf("delivery: connection source required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("delivery: sender required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{connections: cfg.Connections, sender: cfg.Sender, logger: logger}, nil
}

// Publish sends the notification to every live handle of the target user.
// A user with no live connections is the normal offline path: the
// notification stays unacknowledged and the next join replays it. A send
// failure on one handle never blocks delivery to the others.
func (e *Engine) Publish(notification notifications.Notification) {
	handles := e.connections.ConnectionsFor(notification.UserID)
	if len(handles) == 0 {
		metrics.OfflinePublishes.Inc()
		e.logger.Debug("no live connections, notification left pending",
			zap.Int64("user_id", notification.UserID),
			zap.Int64("notification_id", notification.ID))
		return
	}

	payload := PayloadFor(notification)
	for _, handle := range handles {
		if err := e.sender.Send(handle, EventReceiveNotification, payload); err != nil {
			metrics.SendFailures.Inc()
			e.logger.Warn("live push failed for handle",
				zap.String("handle", handle),
				zap.Int64("notification_id", notification.ID),
				zap.Error(err))
		}
	}
	metrics.LivePushes.Inc()
}
