package streaming

import (
	"time"

	"github.com/google/uuid"

	"stigwatch/internal/domain/models"
)

// EventType represents the type of checklist event
type EventType string

const (
	EventTypeChecklistCreated EventType = "checklist_created"
	EventTypeChecklistUpdated EventType = "checklist_updated"
	EventTypeChecklistDeleted EventType = "checklist_deleted"
	EventTypeScanImported     EventType = "scan_imported"
)

// ChecklistEvent tells listeners that a system's compliance posture may have
// changed
type ChecklistEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	SystemID    string `json:"system_id"`
	ChecklistID string `json:"checklist_id"`
	Title       string `json:"title,omitempty"`
	HostName    string `json:"host_name,omitempty"`

	// Updated is the number of findings a scan import changed
	Updated int `json:"updated,omitempty"`
}

// NewChecklistEvent creates an event for a stored checklist
func NewChecklistEvent(eventType EventType, record *models.ChecklistRecord) *ChecklistEvent {
	return &ChecklistEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		SystemID:    record.SystemID.String(),
		ChecklistID: record.ID.String(),
		Title:       record.Title,
		HostName:    record.HostName,
	}
}

// Subject returns the subject an event is published on:
// <prefix>.<event_type>.<system_id>
func (e *ChecklistEvent) Subject(prefix string) string {
	system := e.SystemID
	if system == "" {
		system = "none"
	}
	return prefix + "." + string(e.Type) + "." + system
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Filter by system (empty = all)
	SystemID string `json:"system_id,omitempty"`

	// Filter by event types (empty = all)
	Types []EventType `json:"types,omitempty"`
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *ChecklistEvent) bool {
	if s == nil {
		return true
	}
	if s.SystemID != "" && s.SystemID != event.SystemID {
		return false
	}
	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FilterSubject narrows a JetStream consumer to the subscription's system
// when it names one. Type filtering happens after delivery.
func (s *Subscription) FilterSubject(prefix string) string {
	if s == nil || s.SystemID == "" {
		return prefix + ".>"
	}
	return prefix + ".*." + s.SystemID
}
