package model

import "time"

// NotificationType identifies the event that produced a notification.
type NotificationType string

const (
	NotificationNewCandidate NotificationType = "new_candidate"
	NotificationNewHighFit   NotificationType = "new_high_fit"
)

// Notification is a persisted event row surfaced to the consumer UI.
type Notification struct {
	ID          string
	Type        NotificationType
	Title       string
	Message     string
	CandidateID int64
	JobID       int64
	Read        bool
	CreatedAt   time.Time
}
