package models

// SendRequest is the body of POST /notifications/send.
type SendRequest struct {
	Tokens  []string       `json:"tokens"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// BroadcastRequest is the body of POST /notifications/send-all.
type BroadcastRequest struct {
	Title   string         `json:"title,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// TestRouteRequest is the body of POST /notifications/test-route.
type TestRouteRequest struct {
	RouteID ID     `json:"route_id"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// TestRouteResponse lists the tokens a route test targeted.
type TestRouteResponse struct {
	Success     bool     `json:"success"`
	TokensCount int      `json:"tokens_count"`
	Tokens      []string `json:"tokens"`
}

// HistoryItem is one dispatched notification.
type HistoryItem struct {
	ID         string            `json:"id"`
	TripID     string            `json:"trip_id,omitempty"`
	Kind       string            `json:"kind"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Channel    string            `json:"channel"`
	Recipients int               `json:"recipients"`
	Failed     int               `json:"failed"`
	CreatedAt  Timestamp         `json:"created_at"`
}

// HistoryResponse is the body of GET /notifications/history.
type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
	Count int           `json:"count"`
}
