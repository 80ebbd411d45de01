package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/metrics"
)

// DefaultCapacity is the per-subscriber buffer of a channel.
const DefaultCapacity = 100

// Channel is a single-producer, many-consumer publish primitive for one
// identity. Late subscribers only see envelopes published after they join.
type Channel struct {
	id       message.Identity
	capacity int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	done   chan struct{}
}

func newChannel(id message.Identity, capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		id:       id,
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
		done:     make(chan struct{}),
	}
}

// Identity returns the identity the channel was registered under.
func (c *Channel) Identity() message.Identity {
	return c.id
}

// Publish delivers env to every subscriber without blocking and returns
// how many received it. A subscriber whose buffer is full is dropped: its
// channel is closed and Lagged reports true.
func (c *Channel) Publish(env message.Envelope) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}
	delivered := 0
	for s := range c.subs {
		select {
		case s.ch <- env:
			delivered++
		default:
			s.lagged.Store(true)
			delete(c.subs, s)
			close(s.ch)
			metrics.SubscribersLagged.Inc()
		}
	}
	return delivered
}

// ReceiverCount returns the number of current subscribers.
func (c *Channel) ReceiverCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Subscribe attaches a new consumer. Subscribing to a closed channel
// returns an already finished subscription.
func (c *Channel) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan message.Envelope, c.capacity), parent: c}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(s.ch)
		return s
	}
	c.subs[s] = struct{}{}
	return s
}

// Close ends the channel: every subscriber gets the disconnect sentinel
// (if it has room) and its stream is closed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	for s := range c.subs {
		select {
		case s.ch <- message.Disconnect():
		default:
		}
		close(s.ch)
		delete(c.subs, s)
	}
}

// Done is closed once the channel is closed, either by its producer or
// because a newer registration replaced it.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) unsubscribe(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[s]; ok {
		delete(c.subs, s)
		close(s.ch)
	}
}

// Subscription is one consumer's view of a Channel.
type Subscription struct {
	ch     chan message.Envelope
	parent *Channel
	lagged atomic.Bool
}

// C returns the stream of envelopes. It is closed when the subscriber
// falls behind, unsubscribes, or the channel is closed.
func (s *Subscription) C() <-chan message.Envelope {
	return s.ch
}

// Lagged reports whether the subscription was dropped for falling behind.
func (s *Subscription) Lagged() bool {
	return s.lagged.Load()
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.parent.unsubscribe(s)
}
