package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Dispatcher submits a message for background delivery. Dispatch never blocks
// the caller on delivery and never reports failure: there is no ordering, no
// retry, and a failed send is only logged and counted.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message)
}

// Recorder counts delivery outcomes. *observability.Prom implements it.
type Recorder interface {
	ObserveNotification(kind, result string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveNotification(string, string) {}

func deliver(ctx context.Context, n Notifier, log *slog.Logger, rec Recorder, msg Message) {
	if err := n.Send(ctx, msg); err != nil {
		rec.ObserveNotification(string(msg.Kind), "failed")
		log.ErrorContext(ctx, "notification.failed", "kind", string(msg.Kind), "to", msg.To, "err", err)
		return
	}
	rec.ObserveNotification(string(msg.Kind), "sent")
}

// InlineDispatcher delivers on the calling goroutine. Tests use it to make
// side effects observable without sleeping.
type InlineDispatcher struct {
	notifier Notifier
	log      *slog.Logger
	rec      Recorder
}

func NewInlineDispatcher(n Notifier, log *slog.Logger, rec Recorder) *InlineDispatcher {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	return &InlineDispatcher{notifier: n, log: log, rec: rec}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, msg Message) {
	deliver(context.WithoutCancel(ctx), d.notifier, d.log, d.rec, msg)
}

var ErrDispatcherClosed = errors.New("dispatcher closed")

type PoolConfig struct {
	Workers   int
	QueueSize int
}

// PoolDispatcher hands messages to a fixed set of worker goroutines through a
// bounded queue. When the queue is full the message is dropped and logged.
type PoolDispatcher struct {
	notifier Notifier
	log      *slog.Logger
	rec      Recorder

	queue chan queued
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type queued struct {
	ctx context.Context
	msg Message
}

func NewPoolDispatcher(n Notifier, cfg PoolConfig, log *slog.Logger, rec Recorder) *PoolDispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = noopRecorder{}
	}

	d := &PoolDispatcher{
		notifier: n,
		log:      log,
		rec:      rec,
		queue:    make(chan queued, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.run()
	}

	return d
}

func (d *PoolDispatcher) run() {
	defer d.wg.Done()

	for q := range d.queue {
		deliver(q.ctx, d.notifier, d.log, d.rec, q.msg)
	}
}

func (d *PoolDispatcher) Dispatch(ctx context.Context, msg Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.rec.ObserveNotification(string(msg.Kind), "dropped")
		d.log.WarnContext(ctx, "notification.dropped", "kind", string(msg.Kind), "reason", ErrDispatcherClosed.Error())
		return
	}

	// the request context ends with the response; keep its values, drop its deadline
	select {
	case d.queue <- queued{ctx: context.WithoutCancel(ctx), msg: msg}:
	default:
		d.rec.ObserveNotification(string(msg.Kind), "dropped")
		d.log.WarnContext(ctx, "notification.dropped", "kind", string(msg.Kind), "reason", "queue full")
	}
}

// Close stops accepting messages and waits for queued ones to finish or ctx to end.
func (d *PoolDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
