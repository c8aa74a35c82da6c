// Package intercept decodes the platform's messaging API payloads into
// typed capture records. Decoding is tolerant by design: optional fields
// fall back to explicit unknown sentinels, malformed records are dropped
// with a warning, and unrecognized payloads are never fatal.
package intercept

import "strings"

// Data-bearing endpoints observed during messaging-surface navigation.
const (
	EndpointInboxInitialState = "api/1.1/dm/inbox_initial_state.json"
	EndpointUserUpdates       = "api/1.1/dm/user_updates.json"
)

var targetEndpoints = []string{
	EndpointInboxInitialState,
	EndpointUserUpdates,
}

// MatchesEndpoint reports whether a response URL belongs to a
// data-bearing endpoint worth decoding.
func MatchesEndpoint(url string) bool {
	for _, ep := range targetEndpoints {
		if strings.Contains(url, ep) {
			return true
		}
	}
	return false
}
