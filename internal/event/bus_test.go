package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"go.uber.org/zap"
)

func TestBus_PublishExactTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []string
	bus.Subscribe("qc.measurement.classified", func(_ context.Context, e plugin.Event) {
		got = append(got, e.Topic)
	})
	bus.Subscribe("qc.report.generated", func(_ context.Context, _ plugin.Event) {
		t.Error("unrelated handler called")
	})

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "qc.measurement.classified", Source: "qc"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("handler called %d times, want 1", len(got))
	}
}

func TestBus_PrefixSubscription(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topics []string
	bus.Subscribe("qc.*", func(_ context.Context, e plugin.Event) {
		topics = append(topics, e.Topic)
	})

	ctx := context.Background()
	_ = bus.Publish(ctx, plugin.Event{Topic: "qc.violations.detected"})
	_ = bus.Publish(ctx, plugin.Event{Topic: "qc.report.generated"})
	_ = bus.Publish(ctx, plugin.Event{Topic: "auth.login"})
	_ = bus.Publish(ctx, plugin.Event{Topic: "qcx.other"})

	if len(topics) != 2 {
		t.Fatalf("prefix handler saw %v, want 2 qc topics", topics)
	}
}

func TestBus_SubscribeAllAndTimestamp(t *testing.T) {
	bus := NewBus(nil)

	var ev plugin.Event
	bus.SubscribeAll(func(_ context.Context, e plugin.Event) { ev = e })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "anything"})
	if ev.Topic != "anything" {
		t.Fatalf("catch-all handler got topic %q", ev.Topic)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Publish did not stamp the event")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var a, b int
	unsubA := bus.Subscribe("t", func(context.Context, plugin.Event) { a++ })
	bus.Subscribe("t", func(context.Context, plugin.Event) { b++ })
	unsubAll := bus.SubscribeAll(func(context.Context, plugin.Event) { a += 10 })

	unsubA()
	unsubAll()
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})

	if a != 0 {
		t.Errorf("unsubscribed handlers ran (a = %d)", a)
	}
	if b != 1 {
		t.Errorf("remaining handler ran %d times, want 1", b)
	}
}

func TestBus_PanicIsRecovered(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var after bool
	bus.Subscribe("t", func(context.Context, plugin.Event) { panic("bad handler") })
	bus.Subscribe("t", func(context.Context, plugin.Event) { after = true })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "t"})
	if !after {
		t.Error("panic in one handler stopped delivery to the next")
	}
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		bus.Subscribe("qc.violations.detected", func(context.Context, plugin.Event) { count.Add(1) })
	}

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "qc.violations.detected"})
	bus.Wait()

	if got := count.Load(); got != 5 {
		t.Errorf("async handlers ran %d times, want 5", got)
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe("qc.*", func(context.Context, plugin.Event) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			_ = bus.Publish(ctx, plugin.Event{Topic: "qc.measurement.classified"})
		}()
	}
	wg.Wait()
}
