package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent("ResearchAssistant", "Paris")
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "ResearchAssistant", ev.Author)
	assert.Equal(t, "Paris", ev.Content)
	assert.False(t, ev.Timestamp.IsZero())
	assert.NotEqual(t, ev.ID, NewEvent("x", "y").ID)
}
