package worker

import (
	"context"
	"errors"

	"github.com/geocoder89/projecthub/internal/jobs"
	"github.com/geocoder89/projecthub/internal/queue/redisclient"
)

// ProcessOne pops at most one job. It reports whether a job was taken; the
// error is only set when the queue itself failed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	raw, err := w.src.Dequeue(ctx, w.cfg.Queue, w.cfg.PopTimeout)
	if err != nil {
		if errors.Is(err, redisclient.ErrEmpty) {
			return false, nil
		}
		return false, err
	}

	w.execute(ctx, raw)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, raw []byte) {
	j, err := jobs.DecodeJob(raw)
	if err != nil {
		w.observe("unknown", "invalid")
		w.log.ErrorContext(ctx, "job.invalid", "err", err)
		return
	}

	payload, err := jobs.DecodePayload(j)
	if err == nil {
		err = jobs.ValidatePayload(j.Type, payload)
	}
	if err != nil {
		w.observe("unknown", "invalid")
		w.log.ErrorContext(ctx, "job.invalid", "job_id", j.ID, "type", string(j.Type), "err", err)
		return
	}

	msg := payload.(jobs.SendNotificationPayload).Message

	if err := w.notifier.Send(ctx, msg); err != nil {
		w.observe(msg.Kind, "failed")
		w.log.ErrorContext(ctx, "notification.failed",
			"job_id", j.ID,
			"request_id", j.RequestID,
			"kind", string(msg.Kind),
			"to", msg.To,
			"err", err,
		)
		return
	}

	w.observe(msg.Kind, "sent")
	w.log.DebugContext(ctx, "job.done", "job_id", j.ID, "request_id", j.RequestID, "kind", string(msg.Kind))
}
