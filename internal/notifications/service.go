package notifications

import (
	"fmt"
)

// Publisher pushes a freshly persisted notification toward the target user's
// live connections.
type Publisher interface {
	Publish(notification Notification)
}

// ServiceConfig describes the dependencies for the submission service.
type ServiceConfig struct {
	Store     Store
	Publisher Publisher
}

// Service accepts notification submissions from producers, persists them, and
// hands them to the delivery engine.
type Service struct {
	store     Store
	publisher Publisher
}

// NewService constructs the submission service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("notifications: store required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("notifications: publisher required")
	}
	return &Service{store: cfg.Store, publisher: cfg.Publisher}, nil
}

// Submit validates the target user, persists the notification, and fans it
// out to the user's live connections. A user with no live connections is not
// an error; the notification stays pending until the next join replays it.
func (s *Service) Submit(userID int64, message string) (Notification, error) {
	known, err := s.store.Exists(userID)
	if err != nil {
		return Notification{}, err
	}
	if !known {
		return Notification{}, fmt.Errorf("%w: id %d", ErrUnknownUser, userID)
	}

	notification, err := s.store.Append(userID, message)
	if err != nil {
		return Notification{}, err
	}

	s.publisher.Publish(notification)
	return notification, nil
}
