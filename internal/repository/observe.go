package repository

import (
	"context"
	"sync"

	"github.com/randalmurphal/storyforge/internal/events"
)

// observe streams read's result: once immediately, then again after every
// event on topics. The channel holds at most one value; a slow reader sees
// the latest value, never a backlog. The stream ends when ctx is done or the
// publisher closes.
func observe[T any](ctx context.Context, pub events.Publisher, topics []string, read func(context.Context) T) <-chan T {
	out := make(chan T, 1)
	wake := make(chan struct{}, 1)
	gone := make(chan struct{})
	var goneOnce sync.Once

	subs := make([]<-chan events.Event, len(topics))
	for i, topic := range topics {
		subs[i] = pub.Subscribe(topic)
	}
	for _, ch := range subs {
		go func(ch <-chan events.Event) {
			for range ch {
				select {
				case wake <- struct{}{}:
				default:
				}
			}
			goneOnce.Do(func() { close(gone) })
		}(ch)
	}

	go func() {
		defer close(out)
		defer func() {
			for i, topic := range topics {
				pub.Unsubscribe(topic, subs[i])
			}
		}()

		emit(out, read(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-gone:
				return
			case <-wake:
				if ctx.Err() != nil {
					return
				}
				emit(out, read(ctx))
			}
		}
	}()
	return out
}

// emit replaces any unread value in out with v.
func emit[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
