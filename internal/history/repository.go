package history

import "context"

// Repository persists deliveries.
type Repository interface {
	// Record appends a delivery.
	Record(ctx context.Context, d *Delivery) error

	// List returns deliveries newest first.
	List(ctx context.Context, opts ListOptions) ([]*Delivery, error)
}
