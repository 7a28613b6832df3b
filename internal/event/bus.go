// Package event provides the in-memory plugin.EventBus that carries QC
// classifications, violation batches and report notices between modules.
package event

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guard.
var _ plugin.EventBus = (*Bus)(nil)

// Bus is an in-memory event bus.
// Publish runs handlers in the caller's goroutine; PublishAsync gives each
// handler its own goroutine. A topic ending in ".*" subscribes to every
// topic with that prefix, so "qc.*" receives "qc.report.generated".
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	allSubs  []handlerEntry
	nextID   uint64
	logger   *zap.Logger
	wg       sync.WaitGroup
}

type handlerEntry struct {
	id      uint64
	handler plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[string][]handlerEntry),
		logger:   logger,
	}
}

// Publish delivers event synchronously. A zero Timestamp is set to now.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	event = stamp(event)
	for _, h := range b.matching(event.Topic) {
		b.safeCall(ctx, h.handler, event)
	}
	return nil
}

// PublishAsync delivers event to each handler on its own goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	event = stamp(event)
	for _, h := range b.matching(event.Topic) {
		b.wg.Add(1)
		go func(fn plugin.EventHandler) {
			defer b.wg.Done()
			b.safeCall(ctx, fn, event)
		}(h.handler)
	}
}

// Wait blocks until every in-flight async handler has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}

// Subscribe registers handler for topic, which may be an exact name or a
// "prefix.*" pattern. Returns an unsubscribe function.
func (b *Bus) Subscribe(topic string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[topic] = append(b.handlers[topic], handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[topic] = remove(b.handlers[topic], id)
		if len(b.handlers[topic]) == 0 {
			delete(b.handlers, topic)
		}
	}
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.allSubs = append(b.allSubs, handlerEntry{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = remove(b.allSubs, id)
	}
}

// matching snapshots the handlers for topic: exact subscribers first, then
// prefix subscribers, then catch-all subscribers.
func (b *Bus) matching(topic string) []handlerEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]handlerEntry, 0, len(b.handlers[topic])+len(b.allSubs))
	out = append(out, b.handlers[topic]...)
	for pattern, entries := range b.handlers {
		prefix, ok := strings.CutSuffix(pattern, "*")
		if !ok || !strings.HasSuffix(prefix, ".") {
			continue
		}
		if strings.HasPrefix(topic, prefix) {
			out = append(out, entries...)
		}
	}
	return append(out, b.allSubs...)
}

func (b *Bus) safeCall(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}

func remove(entries []handlerEntry, id uint64) []handlerEntry {
	for i, e := range entries {
		if e.id == id {
			return append(entries[:i:i], entries[i+1:]...)
		}
	}
	return entries
}

func stamp(event plugin.Event) plugin.Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
