package utils

import (
	"errors"
	"testing"
	"time"
)

func TestMemberCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	s, err := EncodeMemberCursor(at, "u-1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	c, err := DecodeMemberCursor(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !c.CreatedAt.Equal(at) || c.ID != "u-1" {
		t.Fatalf("unexpected cursor %+v", c)
	}
}

func TestDecodeMemberCursor_Rejects(t *testing.T) {
	empty, _ := EncodeMemberCursor(time.Time{}, "")

	for _, in := range []string{"", "%%%", "bm90LWpzb24", empty} {
		if _, err := DecodeMemberCursor(in); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("input %q: expected ErrInvalidCursor, got %v", in, err)
		}
	}
}
