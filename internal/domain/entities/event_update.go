package entities

import (
	"time"

	"github.com/google/uuid"
)

// EventUpdateType represents the kind of change made to an event
type EventUpdateType string

const (
	EventUpdateTypeCreated     EventUpdateType = "created"
	EventUpdateTypeUpdated     EventUpdateType = "updated"
	EventUpdateTypePublished   EventUpdateType = "published"
	EventUpdateTypeUnpublished EventUpdateType = "unpublished"
	EventUpdateTypeCancelled   EventUpdateType = "cancelled"
	EventUpdateTypeDeleted     EventUpdateType = "deleted"
	EventUpdateTypeEngagement  EventUpdateType = "engagement"
)

// EventUpdate is a change notification for one event, published on the event bus
type EventUpdate struct {
	ID            string                 `json:"id"`
	EventID       string                 `json:"event_id"`
	Type          EventUpdateType        `json:"type"`
	Timestamp     time.Time              `json:"timestamp"`
	ChangedFields map[string]interface{} `json:"changed_fields,omitempty"`
}

// NewEventUpdate creates a new event update
func NewEventUpdate(eventID string, updateType EventUpdateType, changedFields map[string]interface{}) *EventUpdate {
	return &EventUpdate{
		ID:            uuid.NewString(),
		EventID:       eventID,
		Type:          updateType,
		Timestamp:     time.Now(),
		ChangedFields: changedFields,
	}
}

// RemovesFromResults reports whether the event can no longer appear in search results
func (u *EventUpdate) RemovesFromResults() bool {
	switch u.Type {
	case EventUpdateTypeCancelled, EventUpdateTypeDeleted, EventUpdateTypeUnpublished:
		return true
	}
	return false
}

// ChangesSearchableText reports whether the update touches an indexed field
func (u *EventUpdate) ChangesSearchableText() bool {
	if u.Type == EventUpdateTypeCreated || u.Type == EventUpdateTypePublished {
		return true
	}
	for _, f := range []string{"title", "description", "address", "location_notes", "emoji_description", "categories"} {
		if _, ok := u.ChangedFields[f]; ok {
			return true
		}
	}
	return false
}
