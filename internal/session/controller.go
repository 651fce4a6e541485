package session

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/beacon/internal/delivery"
	"github.com/MarcoPoloResearchLab/beacon/internal/metrics"
	"github.com/MarcoPoloResearchLab/beacon/internal/notifications"
	"github.com/MarcoPoloResearchLab/beacon/internal/registry"
	"go.uber.org/zap"
)

// backlogLimit caps how many unacknowledged notifications a single join
// replays, newest first.
const backlogLimit = 50

// ControllerConfig describes the dependencies for the session controller.
type ControllerConfig struct {
	Registry *registry.Registry
	Store    notifications.Store
	Sender   delivery.Sender
	Logger   *zap.Logger
}

// Controller orchestrates the connect, join, replay, and disconnect sequence
// for each (user, handle) pair.
type Controller struct {
	registry *registry.Registry
	store    notifications.Store
	sender   delivery.Sender
	logger   *zap.Logger
}

// NewController constructs the session lifecycle controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session: registry required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: store required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("session: sender required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		registry: cfg.Registry,
		store:    cfg.Store,
		sender:   cfg.Sender,
		logger:   logger,
	}, nil
}

// OnConnect is invoked when a transport session is established, before any
// user identity is known.
func (c *Controller) OnConnect(handle string) {
	c.logger.Debug("connection established", zap.String("handle", handle))
}

// OnJoin registers the handle under the user, replays the unacknowledged
// backlog to it in one batch, then marks each replayed notification
// acknowledged. Acknowledgment happens only after the push attempt succeeds;
// if the push fails the backlog stays unacknowledged and the next join
// replays it again. The registry registration is never rolled back on store
// or transport failure.
func (c *Controller) OnJoin(handle string, userID int64) error {
	c.registry.Join(userID, handle)

	backlog, err := c.store.UnacknowledgedFor(userID, backlogLimit)
	if err != nil {
		return fmt.Errorf("session: fetching backlog for user %d: %w", userID, err)
	}
	if len(backlog) == 0 {
		return nil
	}

	payloads := delivery.PayloadsFor(backlog)
	if err := c.sender.Send(handle, delivery.EventLoadExistingNotifications, payloads); err != nil {
		metrics.SendFailures.Inc()
		return fmt.Errorf("session: replaying backlog to handle %s: %w", handle, err)
	}

	// Each acknowledgment is independent: a failed write leaves that one
	// notification pending for the next join without stopping the rest.
	for _, notification := range backlog {
		if err := c.store.MarkAcknowledged(userID, notification.ID); err != nil {
			c.logger.Warn("failed to acknowledge replayed notification",
				zap.Int64("user_id", userID),
				zap.Int64("notification_id", notification.ID),
				zap.Error(err))
			continue
		}
		metrics.ReplayedNotifications.Inc()
	}

	c.logger.Info("backlog replayed",
		zap.Int64("user_id", userID),
		zap.String("handle", handle),
		zap.Int("count", len(backlog)))
	return nil
}

// OnLeave removes the handle from the user's connection set. No store state
// changes on leave.
func (c *Controller) OnLeave(handle string, userID int64) {
	c.registry.Leave(userID, handle)
}

// OnDisconnect purges the handle from every user's set, covering sessions
// that drop without an explicit leave.
func (c *Controller) OnDisconnect(handle string) {
	c.registry.LeaveAll(handle)
	c.logger.Debug("connection closed", zap.String("handle", handle))
}
