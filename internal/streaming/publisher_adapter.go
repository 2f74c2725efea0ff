package streaming

import (
	"context"

	"stigwatch/internal/domain/models"
)

// EventBusPublisher implements services.EventPublisher using the EventBus
type EventBusPublisher struct {
	eventBus *EventBus
	wsHub    *WebSocketHub
}

// NewEventBusPublisher creates a new publisher adapter. Either argument may
// be nil.
func NewEventBusPublisher(eventBus *EventBus, wsHub *WebSocketHub) *EventBusPublisher {
	return &EventBusPublisher{
		eventBus: eventBus,
		wsHub:    wsHub,
	}
}

// ChecklistCreated announces a newly uploaded checklist
func (p *EventBusPublisher) ChecklistCreated(ctx context.Context, record *models.ChecklistRecord) error {
	return p.publish(ctx, NewChecklistEvent(EventTypeChecklistCreated, record))
}

// ChecklistUpdated announces a replaced checklist document
func (p *EventBusPublisher) ChecklistUpdated(ctx context.Context, record *models.ChecklistRecord) error {
	return p.publish(ctx, NewChecklistEvent(EventTypeChecklistUpdated, record))
}

// ChecklistDeleted announces a removed checklist
func (p *EventBusPublisher) ChecklistDeleted(ctx context.Context, record *models.ChecklistRecord) error {
	return p.publish(ctx, NewChecklistEvent(EventTypeChecklistDeleted, record))
}

// ScanImported announces a scan merged into a checklist
func (p *EventBusPublisher) ScanImported(ctx context.Context, record *models.ChecklistRecord, updated int) error {
	event := NewChecklistEvent(EventTypeScanImported, record)
	event.Updated = updated
	return p.publish(ctx, event)
}

func (p *EventBusPublisher) publish(ctx context.Context, event *ChecklistEvent) error {
	if p.eventBus != nil {
		if err := p.eventBus.Publish(ctx, event); err != nil {
			return err
		}
	}

	if p.wsHub != nil {
		p.wsHub.BroadcastEvent(event)
	}

	return nil
}
