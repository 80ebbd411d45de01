package broadcast

import (
	"errors"
	"slices"
	"sync"

	"github.com/gluk-w/webtail/internal/message"
	"github.com/gluk-w/webtail/internal/metrics"
)

// ErrNotRegistered is returned when subscribing to an identity without a
// live channel.
var ErrNotRegistered = errors.New("application not registered")

// Registry maps identities to their live broadcast channel. Its lock is
// only held across map operations.
type Registry struct {
	capacity int

	mu       sync.Mutex
	channels map[message.Identity]*Channel
}

// NewRegistry creates a registry whose channels buffer capacity envelopes
// per subscriber.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		channels: make(map[message.Identity]*Channel),
	}
}

// Register creates the channel for id, replacing any previous one. A
// default pod name is resolved against the registry under the same lock,
// so concurrent registrations never receive the same pod name. The
// resolved identity is available from the returned channel.
func (r *Registry) Register(id message.Identity) *Channel {
	r.mu.Lock()
	if id.WantsDefaultPod() {
		id = ConfigureDefaultPods(id, r.snapshotLocked())
	}
	ch := newChannel(id, r.capacity)
	old := r.channels[id]
	r.channels[id] = ch
	n := len(r.channels)
	r.mu.Unlock()

	metrics.RegisteredApplications.Set(float64(n))
	if old != nil {
		old.Close()
	}
	return ch
}

// Subscribe attaches to the live channel of id. It never creates one.
func (r *Registry) Subscribe(id message.Identity) (*Subscription, error) {
	r.mu.Lock()
	ch, ok := r.channels[id]
	r.mu.Unlock()

	if !ok {
		return nil, ErrNotRegistered
	}
	return ch.Subscribe(), nil
}

// Lookup returns the live channel of id, if any.
func (r *Registry) Lookup(id message.Identity) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	return ch, ok
}

// Remove deletes the entry for id.
func (r *Registry) Remove(id message.Identity) {
	r.mu.Lock()
	delete(r.channels, id)
	n := len(r.channels)
	r.mu.Unlock()

	metrics.RegisteredApplications.Set(float64(n))
}

// Release deletes the entry for id only if it still points at ch, so a
// session cleaning up never removes its successor's channel.
func (r *Registry) Release(id message.Identity, ch *Channel) bool {
	r.mu.Lock()
	current, ok := r.channels[id]
	if ok && current == ch {
		delete(r.channels, id)
	}
	n := len(r.channels)
	r.mu.Unlock()

	metrics.RegisteredApplications.Set(float64(n))
	return ok && current == ch
}

// Applications returns the registered identities in identity order.
func (r *Registry) Applications() []message.Identity {
	r.mu.Lock()
	ids := r.snapshotLocked()
	r.mu.Unlock()

	slices.SortFunc(ids, message.Identity.Compare)
	return ids
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *Registry) snapshotLocked() []message.Identity {
	ids := make([]message.Identity, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	return ids
}
