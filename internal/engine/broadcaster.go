package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"

	"dropzone/internal/logging"
	"dropzone/internal/metrics"
	"dropzone/internal/storage"
)

// ErrClosed is returned by Subscribe once the broadcaster has shut down.
var ErrClosed = errors.New("broadcaster closed")

// Subscriber is one live listing connection. Send hands a marshaled
// snapshot to the transport; it should return quickly, and an error drops
// the subscriber.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, payload []byte) error
}

type BroadcasterOptions struct {
	// Workers bounds how many deliveries run at once.
	Workers int
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Broadcaster keeps the subscriber set and pushes a fresh directory
// snapshot to all of it whenever the directory changes.
type Broadcaster struct {
	provider storage.StorageProvider
	pool     pond.Pool
	metrics  *metrics.Metrics
	logger   logging.Logger

	mu          sync.RWMutex
	subscribers map[string]Subscriber
	closed      bool

	// pushMu orders pushes so no subscriber sees an older snapshot after
	// a newer one.
	pushMu sync.Mutex
}

func NewBroadcaster(provider storage.StorageProvider, opts BroadcasterOptions) *Broadcaster {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Broadcaster{
		provider:    provider,
		pool:        pond.NewPool(workers, pond.WithQueueSize(workers*4)),
		metrics:     opts.Metrics,
		logger:      logger,
		subscribers: make(map[string]Subscriber),
	}
}

// Subscribe registers sub and sends it the current listing. If that first
// delivery fails the subscriber is removed again and the error returned.
func (b *Broadcaster) Subscribe(ctx context.Context, sub Subscriber) error {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.subscribers[sub.ID()] = sub
	count := len(b.subscribers)
	b.mu.Unlock()
	b.metrics.SetSubscribers(count)
	b.logger.Info(ctx, "subscriber connected", "id", sub.ID(), "subscribers", count)

	payload, err := b.payload(ctx)
	if err != nil {
		b.Unsubscribe(sub.ID())
		return err
	}
	if err := sub.Send(ctx, payload); err != nil {
		b.Unsubscribe(sub.ID())
		return fmt.Errorf("initial snapshot: %w", err)
	}
	return nil
}

// Unsubscribe removes the subscriber with the given id. Unknown ids are
// ignored.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	_, ok := b.subscribers[id]
	delete(b.subscribers, id)
	count := len(b.subscribers)
	b.mu.Unlock()

	if ok {
		b.metrics.SetSubscribers(count)
		b.logger.Info(context.Background(), "subscriber disconnected", "id", id, "subscribers", count)
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// OnDirectoryChanged recomputes the listing once and delivers the same
// payload to every subscriber. Delivery is best effort: a subscriber
// whose Send fails is dropped and the rest still receive the snapshot.
func (b *Broadcaster) OnDirectoryChanged(ctx context.Context) {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	subs := b.snapshotSubscribers()
	if len(subs) == 0 {
		return
	}

	payload, err := b.payload(ctx)
	if err != nil {
		b.logger.Error(ctx, "failed to encode listing", "error", err)
		return
	}

	var failures atomic.Int32
	group := b.pool.NewGroup()
	for _, sub := range subs {
		group.Submit(func() {
			if err := sub.Send(ctx, payload); err != nil {
				failures.Add(1)
				b.logger.Warn(ctx, "dropping subscriber", "id", sub.ID(), "error", err)
				b.Unsubscribe(sub.ID())
			}
		})
	}
	if err := group.Wait(); err != nil {
		b.logger.Error(ctx, "broadcast interrupted", "error", err)
	}

	b.metrics.ObserveBroadcast(int(failures.Load()))
	b.logger.Debug(ctx, "listing pushed", "subscribers", len(subs), "failed", failures.Load(), "bytes", len(payload))
}

// Close drops every subscriber and stops the delivery pool. Later
// Subscribe calls fail with ErrClosed.
func (b *Broadcaster) Close() {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.subscribers = make(map[string]Subscriber)
	b.mu.Unlock()

	b.metrics.SetSubscribers(0)
	b.pool.StopAndWait()
}

func (b *Broadcaster) snapshotSubscribers() []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

func (b *Broadcaster) payload(ctx context.Context) ([]byte, error) {
	files, err := storage.Snapshot(b.provider)
	if err != nil {
		// The listing degrades to empty; the read error itself stays server side.
		b.logger.Warn(ctx, "failed to list storage directory", "error", err)
	}
	return json.Marshal(files)
}
