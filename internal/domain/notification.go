package domain

import "time"

type NotificationKind string

const (
	NotificationLike    NotificationKind = "like"
	NotificationMention NotificationKind = "mention"
)

// Notification is a fire-and-forget payload handed to the notification sink.
type Notification struct {
	Kind         NotificationKind
	FromUser     string
	ToUser       string
	ItemRef      string
	ItemPostedAt time.Time
}
