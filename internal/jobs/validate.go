package jobs

import "strings"

// ValidatePayload performs minimal validation on decoded payloads.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	switch t {
	case JobSendNotification:
		var p SendNotificationPayload
		switch v := payload.(type) {
		case SendNotificationPayload:
			p = v
		case *SendNotificationPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if !p.Message.Kind.IsValid() || strings.TrimSpace(p.Message.To) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
