package notification

import (
	"context"
	"fmt"

	"lab-inventory-api/internal/notification"
	"lab-inventory-api/internal/service"

	"github.com/google/uuid"
)

// ServiceAdapter adapts the webhook client to the service layer interface
type ServiceAdapter struct {
	client notification.Notifier
}

// NewServiceAdapter creates a new sync-event adapter
func NewServiceAdapter(client notification.Notifier) *ServiceAdapter {
	return &ServiceAdapter{
		client: client,
	}
}

var _ service.EventNotifier = (*ServiceAdapter)(nil)

// NotifyEquipmentSynced converts an equipment sync outcome into a webhook event
func (a *ServiceAdapter) NotifyEquipmentSynced(ctx context.Context, equipmentID uuid.UUID, hostname string, action service.SyncAction) error {
	event := notification.Event{
		Level:       mapEventLevel(action),
		EquipmentID: equipmentID.String(),
		Hostname:    hostname,
		Action:      string(action),
		Message:     fmt.Sprintf("Equipment %s %s by agent", hostname, action),
		Metadata: map[string]string{
			"equipamento_id": equipmentID.String(),
		},
	}

	return a.client.SendEvent(ctx, event)
}

// mapEventLevel maps sync actions to event levels. A restore is
// surfaced as a warning because it usually means someone soft-deleted a
// machine that is still alive in the field.
func mapEventLevel(action service.SyncAction) notification.EventLevel {
	switch action {
	case service.ActionRestored:
		return notification.LevelWarning
	default:
		return notification.LevelInfo
	}
}
