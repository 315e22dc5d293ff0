package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// MemberCursor points just past the last member of a page ordered by (CreatedAt, ID).
type MemberCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func EncodeMemberCursor(createdAt time.Time, id string) (string, error) {
	b, err := json.Marshal(MemberCursor{CreatedAt: createdAt, ID: id})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeMemberCursor(cursor string) (MemberCursor, error) {
	if cursor == "" {
		return MemberCursor{}, ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return MemberCursor{}, ErrInvalidCursor
	}
	var c MemberCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return MemberCursor{}, ErrInvalidCursor
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return MemberCursor{}, ErrInvalidCursor
	}
	return c, nil
}
