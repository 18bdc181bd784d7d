package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/prefd/prefd/internal/prefs"
)

// subscriberBuffer bounds each subscription channel. A subscriber that
// stops draining loses events rather than blocking every writer.
const subscriberBuffer = 16

type subscriber struct {
	ch     chan prefs.Event
	source string
}

// Notifier fans settings-change events out to subscribers. Publishers tag
// events with a source ID; a subscriber registered under the same source
// does not receive them, which is how an accessor avoids hearing the echo
// of its own writes.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]subscriber
}

// NewNotifier creates an empty change hub.
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]subscriber)}
}

// newSource allocates a unique publisher identity.
func (n *Notifier) newSource() string {
	return uuid.New().String()
}

// publish delivers ev to every subscriber except those registered under
// source. An empty source delivers to everyone (used for external changes).
func (n *Notifier) publish(source string, ev prefs.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for id, sub := range n.subs {
		if source != "" && sub.source == source {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("dropping settings event for slow subscriber", "subscriber", id, "key", ev.Key)
		}
	}
}

// subscribe registers a subscription excluded from events published under
// source. The channel closes when ctx is cancelled.
func (n *Notifier) subscribe(ctx context.Context, source string) <-chan prefs.Event {
	id := uuid.New().String()
	sub := subscriber{ch: make(chan prefs.Event, subscriberBuffer), source: source}

	n.mu.Lock()
	n.subs[id] = sub
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}

// Subscribe registers an observer that receives every published event,
// including writes from all accessors. Host surfaces streaming changes
// outward (for example the SSE endpoint) use this.
func (n *Notifier) Subscribe(ctx context.Context) <-chan prefs.Event {
	return n.subscribe(ctx, "")
}

// Forward attaches an external store watcher to the hub: every change the
// watcher reports (writes by other processes) is published to all
// subscribers. Forward returns once the watch is established; delivery runs
// until ctx is cancelled.
func (n *Notifier) Forward(ctx context.Context, w prefs.Watcher) error {
	ch, err := w.Watch(ctx)
	if err != nil {
		return err
	}

	go func() {
		for ev := range ch {
			n.publish("", ev)
		}
	}()
	return nil
}
