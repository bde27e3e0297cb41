package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is one entry of a session's conversation history. It records who
// said what during a step and is treated as immutable once appended.
type Event struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event authored by author.
func NewEvent(author, content string) Event {
	return Event{
		ID:        NewID(),
		Author:    author,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewID returns a new random identifier.
func NewID() string { return uuid.NewString() }
