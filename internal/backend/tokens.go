package backend

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/bustracking/bustracking/internal/tracking"
)

// NormalizeTokens turns any of the token payload shapes the backend returns into
// a RouteTokens value. Accepted shapes:
//
//	{"stops": [{"stop_id": 1, "fcm_tokens": [{"fcm_token": "..."}, "..."]}]}
//	[{"fcm_token": "..."}, {"token": "...", "stop_id": 1}, "..."]
//	{"tokens": [...]} or {"fcm_tokens": [...]}
//
// Unknown shapes yield an empty result.
func NormalizeTokens(routeID string, raw json.RawMessage) *tracking.RouteTokens {
	rt := &tracking.RouteTokens{
		RouteID: routeID,
		All:     []string{},
		ByStop:  map[string][]string{},
		Raw:     raw,
	}
	seen := map[string]struct{}{}
	add := func(stopID, token string) {
		token = strings.TrimSpace(token)
		if token == "" {
			return
		}
		if _, ok := seen[token]; !ok {
			seen[token] = struct{}{}
			rt.All = append(rt.All, token)
		}
		if stopID != "" && !slices.Contains(rt.ByStop[stopID], token) {
			rt.ByStop[stopID] = append(rt.ByStop[stopID], token)
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		addItems(items, "", add)
		return rt
	}

	var obj struct {
		Stops []struct {
			StopID    flexString        `json:"stop_id"`
			FCMTokens []json.RawMessage `json:"fcm_tokens"`
		} `json:"stops"`
		Tokens    []json.RawMessage `json:"tokens"`
		FCMTokens []json.RawMessage `json:"fcm_tokens"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return rt
	}
	for _, s := range obj.Stops {
		addItems(s.FCMTokens, string(s.StopID), add)
	}
	addItems(obj.Tokens, "", add)
	addItems(obj.FCMTokens, "", add)

	return rt
}

// addItems accepts token items that are plain strings or objects carrying
// fcm_token or token, optionally tagged with their own stop_id.
func addItems(items []json.RawMessage, stopID string, add func(stopID, token string)) {
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			add(stopID, s)
			continue
		}

		var obj struct {
			FCMToken string     `json:"fcm_token"`
			Token    string     `json:"token"`
			StopID   flexString `json:"stop_id"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		token := obj.FCMToken
		if token == "" {
			token = obj.Token
		}
		sid := stopID
		if sid == "" {
			sid = string(obj.StopID)
		}
		add(sid, token)
	}
}
