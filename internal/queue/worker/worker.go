package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/projecthub/internal/notifications"
)

// Source is the consumer half of the Redis list queue.
type Source interface {
	Dequeue(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Queue       string
	PopTimeout  time.Duration
	Concurrency int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Worker drains notification jobs and hands each one to the Notifier.
// A failed send is logged and counted, never re-queued.
type Worker struct {
	cfg      Config
	src      Source
	notifier notifications.Notifier
	log      *slog.Logger
	rec      notifications.Recorder

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, src Source, n notifications.Notifier, log *slog.Logger, rec notifications.Recorder) *Worker {
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = 2 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg,
		src:      src,
		notifier: n,
		log:      log,
		rec:      rec,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	w.log.InfoContext(ctx, "worker.started", "queue", w.cfg.Queue, "concurrency", w.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}

	wg.Wait()
	w.log.Info("worker received shutdown signal")
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	attempt := 0

	for ctx.Err() == nil {
		_, err := w.ProcessOne(ctx)
		if err == nil {
			attempt = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}

		delay := ExponentialBackoff(attempt, w.cfg.BackoffBase, w.cfg.BackoffMax)
		w.log.WarnContext(ctx, "queue.dequeue_failed", "err", err, "retry_in", delay.String())
		attempt++

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) observe(kind notifications.Kind, result string) {
	if w.rec != nil {
		w.rec.ObserveNotification(string(kind), result)
	}
}
