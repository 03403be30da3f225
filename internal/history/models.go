// Package history keeps a log of every notification the service dispatched.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Delivery channels.
const (
	ChannelRelay = "relay"
	ChannelFCM   = "fcm"
	ChannelLog   = "log"
)

// Delivery is one dispatched notification and its outcome.
type Delivery struct {
	ID         string
	TripID     string
	Kind       string
	Title      string
	Body       string
	Data       map[string]string
	Channel    string
	Recipients int
	Failed     int
	CreatedAt  time.Time
}

// NewID returns a new delivery identifier.
func NewID() string {
	return "ntf_" + uuid.New().String()[:22]
}

// ListOptions filters a history listing.
type ListOptions struct {
	// TripID restricts results to one trip when set.
	TripID string
	// Limit caps the number of results. Default: 50, maximum 500.
	Limit int
}

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return 50
	case o.Limit > 500:
		return 500
	default:
		return o.Limit
	}
}
