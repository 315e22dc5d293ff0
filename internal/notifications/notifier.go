package notifications

import (
	"context"
	"time"
)

type Kind string

const (
	KindVerificationCode Kind = "verification_code"
	KindLoginAlert       Kind = "login_alert"
	KindLogoutAlert      Kind = "logout_alert"
	KindPasswordReset    Kind = "password_reset"
	KindPasswordChanged  Kind = "password_changed"
	KindInvitation       Kind = "invitation"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindVerificationCode, KindLoginAlert, KindLogoutAlert, KindPasswordReset, KindPasswordChanged, KindInvitation:
		return true
	default:
		return false
	}
}

// Message is one outbound email. Only the fields its Kind needs are set.
type Message struct {
	Kind         Kind      `json:"kind"`
	To           string    `json:"to"`
	Username     string    `json:"username"`
	Code         string    `json:"code,omitempty"`
	Token        string    `json:"token,omitempty"`
	TempPassword string    `json:"tempPassword,omitempty"`
	At           time.Time `json:"at"`
}

// Notifier delivers a message and reports whether it went out.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
