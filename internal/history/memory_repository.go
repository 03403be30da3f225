package history

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity bounds the in-memory log.
const DefaultMemoryCapacity = 1000

// InMemoryRepository keeps the most recent deliveries in a ring buffer.
type InMemoryRepository struct {
	mu       sync.RWMutex
	items    []*Delivery
	next     int
	full     bool
	capacity int
}

// NewInMemoryRepository creates a ring buffer holding up to capacity deliveries.
func NewInMemoryRepository(capacity int) *InMemoryRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &InMemoryRepository{
		items:    make([]*Delivery, capacity),
		capacity: capacity,
	}
}

// Record appends a delivery, evicting the oldest when full.
func (r *InMemoryRepository) Record(_ context.Context, d *Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = copyDelivery(d)
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	return nil
}

// List returns deliveries newest first.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	if r.full {
		count = r.capacity
	}

	limit := opts.limit()
	out := make([]*Delivery, 0, min(limit, count))
	for i := 0; i < count && len(out) < limit; i++ {
		idx := (r.next - 1 - i + r.capacity) % r.capacity
		d := r.items[idx]
		if opts.TripID != "" && d.TripID != opts.TripID {
			continue
		}
		out = append(out, copyDelivery(d))
	}
	return out, nil
}

func copyDelivery(d *Delivery) *Delivery {
	c := *d
	if d.Data != nil {
		c.Data = make(map[string]string, len(d.Data))
		for k, v := range d.Data {
			c.Data[k] = v
		}
	}
	return &c
}
