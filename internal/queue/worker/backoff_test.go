package worker

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	jitter := 250 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{10, 30 * time.Second},
		{200, 30 * time.Second},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt, 500*time.Millisecond, 30*time.Second)
		if got < tt.want || got >= tt.want+jitter {
			t.Fatalf("attempt %d: got %v, want [%v, %v)", tt.attempt, got, tt.want, tt.want+jitter)
		}
	}
}
