package notifications

import (
	"time"
)

// User is a known notification recipient. Identities are established through
// the API before notifications may target them; the core never invents ids.
type User struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// Notification is an immutable message addressed to one user. The store
// assigns the monotonic id and timestamp on append.
type Notification struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"column:user_id;not null;index" json:"user_id"`
	Message   string    `gorm:"column:message;not null" json:"message"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName exposes the table backing notifications.
func (Notification) TableName() string {
	return "notifications"
}

// DeliveryRecord marks a notification as delivered to a user. The composite
// primary key enforces at most one record per (user, notification) pair;
// absence of a record means the notification has not been acknowledged yet.
type DeliveryRecord struct {
	UserID         int64      `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	NotificationID int64      `gorm:"column:notification_id;primaryKey;autoIncrement:false"`
	Acknowledged   bool       `gorm:"column:acknowledged;not null"`
	AcknowledgedAt *time.Time `gorm:"column:acknowledged_at"`
}

// TableName exposes the table backing delivery records.
func (DeliveryRecord) TableName() string {
	return "delivery_records"
}
