package events

import (
	"fmt"
	"io"
	"sync"
)

// CLIPublisher writes one line per event to an io.Writer (typically stderr
// during `storyforge sync`). It wraps another publisher so observers keep
// receiving events.
type CLIPublisher struct {
	inner    Publisher
	out      io.Writer
	mu       sync.Mutex
	warnOnly bool
}

// CLIPublisherOption configures a CLIPublisher.
type CLIPublisherOption func(*CLIPublisher)

// WithInnerPublisher sets an inner publisher to fan out events to.
func WithInnerPublisher(p Publisher) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.inner = p
	}
}

// WithWarningsOnly limits output to warning events.
func WithWarningsOnly(enabled bool) CLIPublisherOption {
	return func(c *CLIPublisher) {
		c.warnOnly = enabled
	}
}

// NewCLIPublisher creates a publisher that writes events to the given writer.
func NewCLIPublisher(out io.Writer, opts ...CLIPublisherOption) *CLIPublisher {
	p := &CLIPublisher{out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes the event and fans it out to the inner publisher.
func (p *CLIPublisher) Publish(event Event) {
	if p.inner != nil {
		p.inner.Publish(event)
	}
	if p.warnOnly && event.Type != EventWarning {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch d := event.Data.(type) {
	case Change:
		fmt.Fprintf(p.out, "%-20s %s %s %s\n", event.Type, d.Op, d.Kind, d.ID)
	case WarningData:
		if d.ProjectID != "" {
			fmt.Fprintf(p.out, "warning: %s: %s\n", d.ProjectID, d.Message)
		} else {
			fmt.Fprintf(p.out, "warning: %s\n", d.Message)
		}
	default:
		fmt.Fprintf(p.out, "%-20s %s\n", event.Type, event.Topic)
	}
}

// Subscribe delegates to inner publisher or returns closed channel.
func (p *CLIPublisher) Subscribe(topic string) <-chan Event {
	if p.inner != nil {
		return p.inner.Subscribe(topic)
	}
	ch := make(chan Event)
	close(ch)
	return ch
}

// Unsubscribe delegates to inner publisher.
func (p *CLIPublisher) Unsubscribe(topic string, ch <-chan Event) {
	if p.inner != nil {
		p.inner.Unsubscribe(topic, ch)
	}
}

// Close delegates to inner publisher.
func (p *CLIPublisher) Close() {
	if p.inner != nil {
		p.inner.Close()
	}
}
