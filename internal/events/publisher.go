package events

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobalTopic is the special topic for subscribing to every event.
const GlobalTopic = "*"

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers whose topic matches.
	Publish(event Event)
	// Subscribe returns a channel that receives events for the topic. The
	// topic may be a glob pattern such as "project:*"; GlobalTopic matches
	// every event.
	Subscribe(topic string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(topic string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// IsPattern reports whether a subscription topic is matched as a glob
// ("content:*", "{project,content}:p1") instead of compared verbatim.
func IsPattern(topic string) bool {
	return strings.ContainsAny(topic, "*?[{") && doublestar.ValidatePattern(topic)
}

// MatchTopic reports whether an event on topic reaches a subscription to
// pattern.
func MatchTopic(pattern, topic string) bool {
	if pattern == GlobalTopic || pattern == topic {
		return true
	}
	if !IsPattern(pattern) {
		return false
	}
	ok, _ := doublestar.Match(pattern, topic)
	return ok
}

// MemoryPublisher is an in-memory Publisher. Exact topics are a map lookup
// per event; pattern subscriptions are matched one by one.
type MemoryPublisher struct {
	mu         sync.RWMutex
	exact      map[string][]chan Event
	patterns   map[string][]chan Event
	bufferSize int
	closed     bool
}

// PublisherOption configures a MemoryPublisher.
type PublisherOption func(*MemoryPublisher)

// WithBufferSize sets the channel buffer size for subscribers.
func WithBufferSize(size int) PublisherOption {
	return func(p *MemoryPublisher) {
		p.bufferSize = size
	}
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher(opts ...PublisherOption) *MemoryPublisher {
	p := &MemoryPublisher{
		exact:      make(map[string][]chan Event),
		patterns:   make(map[string][]chan Event),
		bufferSize: 100,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *MemoryPublisher) table(topic string) map[string][]chan Event {
	if IsPattern(topic) {
		return p.patterns
	}
	return p.exact
}

// Publish sends an event to exact subscribers of its topic and to every
// matching pattern subscriber. It never blocks: a subscriber whose buffer is
// full misses the event, which is safe for observers that re-read current
// state on wake-up.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}
	deliver(p.exact[event.Topic], event)
	for pattern, subs := range p.patterns {
		if MatchTopic(pattern, event.Topic) {
			deliver(subs, event)
		}
	}
}

func deliver(subs []chan Event, event Event) {
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe returns a channel that receives events for the topic or pattern.
func (p *MemoryPublisher) Subscribe(topic string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, p.bufferSize)
	subs := p.table(topic)
	subs[topic] = append(subs[topic], ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel. topic must be the
// one passed to Subscribe.
func (p *MemoryPublisher) Unsubscribe(topic string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.table(topic)
	list := subs[topic]
	for i, sub := range list {
		if sub == ch {
			subs[topic] = append(list[:i], list[i+1:]...)
			close(sub)
			break
		}
	}
	if len(subs[topic]) == 0 {
		delete(subs, topic)
	}
}

// Close shuts down the publisher and closes all subscription channels.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for _, subs := range []map[string][]chan Event{p.exact, p.patterns} {
		for topic, list := range subs {
			for _, ch := range list {
				close(ch)
			}
			delete(subs, topic)
		}
	}
}

// SubscriberCount returns the number of subscriptions made with exactly
// this topic or pattern.
func (p *MemoryPublisher) SubscriberCount(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.table(topic)[topic])
}

// TopicCount returns the number of distinct topics and patterns with
// subscribers.
func (p *MemoryPublisher) TopicCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.exact) + len(p.patterns)
}

// NopPublisher is a no-op publisher for testing or when events are disabled.
type NopPublisher struct{}

// Publish does nothing.
func (p *NopPublisher) Publish(event Event) {}

// Subscribe returns a closed channel.
func (p *NopPublisher) Subscribe(topic string) <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe does nothing.
func (p *NopPublisher) Unsubscribe(topic string, ch <-chan Event) {}

// Close does nothing.
func (p *NopPublisher) Close() {}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}
