package jobs

import "github.com/geocoder89/projecthub/internal/notifications"

// SendNotificationPayload carries one outbound message to the worker.
type SendNotificationPayload struct {
	Message notifications.Message `json:"message"`
}
