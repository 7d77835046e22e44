package core

import "time"

// Notification is one entry of the header notification list.
// The backend sometimes sends bare strings; those have no ID and cannot be deleted.
type Notification struct {
	ID          string
	Message     string
	CreatedAt   time.Time
	SenderImage string
}

// Deletable reports whether the notification can be removed individually.
func (n Notification) Deletable() bool {
	return n.ID != ""
}
