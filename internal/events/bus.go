package events

import (
	"sync"
	"sync/atomic"
	"time"

	"botfleet-api/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full loses the event. There is no replay for late
// subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *log.Logger
	onDrop func(subscriber string)
	now    func() time.Time
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		logger: logging.Component(logger, "EventBus"),
		now:    time.Now,
	}
}

// OnDrop registers a callback invoked for every dropped delivery.
// It must be set before the first Publish.
func (b *Bus) OnDrop(fn func(subscriber string)) {
	b.mu.Lock()
	b.onDrop = fn
	b.mu.Unlock()
}

// Subscribe registers a subscriber with a buffer of the given size.
func (b *Bus) Subscribe(name string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	s := &Subscription{name: name, ch: make(chan Event, buffer), bus: b}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "name", name, "buffer", buffer)
	return s
}

// Publish delivers ev to every current subscriber. ID and Timestamp are
// filled in when empty.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped.Add(1)
			if b.onDrop != nil {
				b.onDrop(s.name)
			}
			b.logger.Warn("subscriber buffer full, event dropped", "subscriber", s.name, "type", ev.Type, "account", ev.Account)
		}
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}

// Subscription is one subscriber's view of the bus.
type Subscription struct {
	name    string
	ch      chan Event
	bus     *Bus
	dropped atomic.Uint64
	once    sync.Once
}

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Name returns the subscriber name given to Subscribe.
func (s *Subscription) Name() string {
	return s.name
}

// Dropped returns how many events this subscriber has lost.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}
