package notifications

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUnknownUser indicates a notification targeted a user id with no matching
// identity.
var ErrUnknownUser = errors.New("notifications: unknown user")

// Store is the durable collaborator behind the delivery core: an append-only
// notification log per user plus the delivery-acknowledgment records.
type Store interface {
	Append(userID int64, message string) (Notification, error)
	UnacknowledgedFor(userID int64, limit int) ([]Notification, error)
	MarkAcknowledged(userID, notificationID int64) error
	Exists(userID int64) (bool, error)
}

// GormStore implements Store on a gorm database handle.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// GormStoreConfig describes the dependencies for the gorm-backed store.
type GormStoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// NewGormStore constructs the store.
func NewGormStore(cfg GormStoreConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("notifications: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &GormStore{db: cfg.Database, now: clock}, nil
}

// Append persists a new notification with a freshly assigned increasing id.
func (s *GormStore) Append(userID int64, message string) (Notification, error) {
	notification := Notification{
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.Create(&notification).Error; err != nil {
		return Notification{}, err
	}
	return notification, nil
}

// UnacknowledgedFor returns the most recent notifications for the user that
// have no delivery record yet, newest first, capped at limit.
func (s *GormStore) UnacknowledgedFor(userID int64, limit int) ([]Notification, error) {
	acknowledged := s.db.
		Model(&DeliveryRecord{}).
		Select("notification_id").
		Where("user_id = ?", userID)

	var backlog []Notification
	err := s.db.
		Where("user_id = ?", userID).
		Where("id NOT IN (?)", acknowledged).
		Order("id DESC").
		Limit(limit).
		Find(&backlog).
		Error
	if err != nil {
		return nil, err
	}
	return backlog, nil
}

// MarkAcknowledged records that the notification reached the user. The write
// is idempotent: a second call for the same pair hits the composite key and
// is treated as success.
func (s *GormStore) MarkAcknowledged(userID, notificationID int64) error {
	acknowledgedAt := s.now().UTC()
	record := DeliveryRecord{
		UserID:         userID,
		NotificationID: notificationID,
		Acknowledged:   true,
		AcknowledgedAt: &acknowledgedAt,
	}
	return s.db.
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).
		Error
}

// Exists reports whether the user id is a known identity.
func (s *GormStore) Exists(userID int64) (bool, error) {
	var count int64
	err := s.db.Model(&User{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateUser registers a new recipient identity.
func (s *GormStore) CreateUser(displayName string) (User, error) {
	user := User{DisplayName: displayName, CreatedAt: s.now().UTC()}
	if err := s.db.Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// ListUsers returns all known recipient identities.
func (s *GormStore) ListUsers() ([]User, error) {
	var users []User
	if err := s.db.Order("id ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
