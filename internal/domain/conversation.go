package domain

import "time"

// ConversationMessage is the auxiliary direct message appended when a user is
// mentioned on a story. ConversationID is empty when no conversation between
// the two users exists yet; the sink creates one in that case.
type ConversationMessage struct {
	ConversationID string
	FromUser       string
	ToUser         string
	Payload        string
	CreatedAt      time.Time
}
