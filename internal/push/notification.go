// Package push delivers notifications to device tokens through the HTTP relay,
// falling back to native FCM delivery.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Notification is a message addressed to a set of device tokens.
type Notification struct {
	// Kind labels the notification (arrived, trip_started, ...).
	Kind string
	// TripID links the notification to a trip in the delivery history.
	TripID string
	Title  string
	Body   string
	Data   map[string]any
}

// Relay delivers one notification to many tokens in a single call.
type Relay interface {
	Send(ctx context.Context, tokens []string, n Notification) error
}

// Sender delivers a notification to a single token.
type Sender interface {
	SendToToken(ctx context.Context, token string, n Notification) error
}

// DedupeTokens trims tokens and drops empty and repeated entries, keeping first-seen order.
func DedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// StringifyData converts data values to strings, which native FCM requires.
// Whole numbers drop their fraction and composite values are JSON encoded.
func StringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
