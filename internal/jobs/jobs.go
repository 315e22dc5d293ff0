package jobs

import (
	"time"

	"github.com/google/uuid"
)

// a Job is one unit of asynchronous work as it travels through the Redis list.
type Job struct {
	ID        string    `json:"id"`
	Type      JobType   `json:"type"`
	Payload   []byte    `json:"payload"` // raw json
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewJob(t JobType, payloadJSON []byte, requestID string) (Job, error) {
	if !t.IsValid() {
		return Job{}, ErrInvalidJobType
	}
	if len(payloadJSON) == 0 {
		return Job{}, ErrInvalidJobPayload
	}

	return Job{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payloadJSON,
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}, nil
}
