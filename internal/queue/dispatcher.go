package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/geocoder89/projecthub/internal/actorctx"
	"github.com/geocoder89/projecthub/internal/jobs"
	"github.com/geocoder89/projecthub/internal/notifications"
)

// Enqueuer is the producer half of the Redis list queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
}

type RedisDispatcherConfig struct {
	Queue string
	// Workers and Buffer size the in-process hand-off in front of Redis.
	Workers int
	Buffer  int
	// EnqueueTimeout bounds a single LPUSH.
	EnqueueTimeout time.Duration
}

// RedisDispatcher hands notifications to cmd/worker through a Redis list.
// The LPUSH runs on a bounded worker pool, so a slow Redis never holds up
// the response. An enqueue failure is logged and counted; the caller never sees it.
type RedisDispatcher struct {
	q       Enqueuer
	queue   string
	timeout time.Duration
	log     *slog.Logger
	rec     notifications.Recorder
	pool    *notifications.PoolDispatcher
}

func NewRedisDispatcher(q Enqueuer, cfg RedisDispatcherConfig, log *slog.Logger, rec notifications.Recorder) *RedisDispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 2 * time.Second
	}

	d := &RedisDispatcher{q: q, queue: cfg.Queue, timeout: cfg.EnqueueTimeout, log: log, rec: rec}

	// drops on a full buffer are counted by the pool; enqueue results by d
	d.pool = notifications.NewPoolDispatcher(enqueuer{d}, notifications.PoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.Buffer,
	}, log, dropsOnly{rec})

	return d
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, msg notifications.Message) {
	d.pool.Dispatch(ctx, msg)
}

// Close waits for pending enqueues to finish or ctx to end.
func (d *RedisDispatcher) Close(ctx context.Context) error {
	return d.pool.Close(ctx)
}

func (d *RedisDispatcher) enqueue(ctx context.Context, msg notifications.Message) {
	raw, err := d.encode(ctx, msg)
	if err != nil {
		d.fail(ctx, msg, err)
		return
	}

	pushCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.q.Enqueue(pushCtx, d.queue, raw); err != nil {
		d.fail(ctx, msg, err)
		return
	}

	d.observe(msg, "queued")
}

func (d *RedisDispatcher) encode(ctx context.Context, msg notifications.Message) ([]byte, error) {
	payload, err := jobs.EncodePayload(jobs.JobSendNotification, jobs.SendNotificationPayload{Message: msg})
	if err != nil {
		return nil, err
	}

	j, err := jobs.NewJob(jobs.JobSendNotification, payload, actorctx.RequestID(ctx))
	if err != nil {
		return nil, err
	}

	return jobs.EncodeJob(j)
}

func (d *RedisDispatcher) fail(ctx context.Context, msg notifications.Message, err error) {
	d.observe(msg, "enqueue_failed")
	d.log.ErrorContext(ctx, "notification.enqueue_failed", "kind", string(msg.Kind), "to", msg.To, "err", err)
}

func (d *RedisDispatcher) observe(msg notifications.Message, result string) {
	if d.rec != nil {
		d.rec.ObserveNotification(string(msg.Kind), result)
	}
}

// enqueuer adapts the LPUSH to the pool's Notifier. It reports its own
// outcome, so the pool never sees an error.
type enqueuer struct{ d *RedisDispatcher }

func (e enqueuer) Send(ctx context.Context, msg notifications.Message) error {
	e.d.enqueue(ctx, msg)
	return nil
}

// dropsOnly forwards the pool's "dropped" results and swallows its "sent".
type dropsOnly struct{ rec notifications.Recorder }

func (r dropsOnly) ObserveNotification(kind, result string) {
	if r.rec != nil && result == "dropped" {
		r.rec.ObserveNotification(kind, result)
	}
}
