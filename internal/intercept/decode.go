package intercept

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dmscout/internal/logging"
	"dmscout/internal/types"
)

// DecodeError marks a payload body that could not be parsed at all.
// Callers log it and drop the body; it never aborts a run.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one intercepted response body into a capture batch.
// Returns the capture and the count of individual records that were
// skipped as malformed. A non-nil error means the whole body was
// unusable; per-record problems only increment the skip count.
func Decode(account, url string, body []byte) (*types.Capture, int, error) {
	timer := logging.StartTimer(logging.CategoryIntercept, "Decode")
	defer timer.Stop()

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, &DecodeError{URL: url, Err: err}
	}

	state := env.InboxInitialState
	source := "inbox_initial_state"
	if state == nil {
		state = env.UserEvents
		source = "user_events"
	}

	batch := &types.Capture{
		AccountUsername: account,
		Source:          source,
		CapturedAt:      time.Now(),
	}
	skipped := 0

	if state != nil {
		for convID, raw := range state.Conversations {
			if raw.Type != "GROUP_DM" {
				continue
			}
			conv, members, convSkipped := decodeConversation(account, convID, source, raw)
			skipped += convSkipped
			batch.Conversations = append(batch.Conversations, conv)
			batch.Memberships = append(batch.Memberships, members...)
		}
	}

	seen := make(map[string]bool)
	for _, users := range []map[string]rawUser{userMap(state), env.Users} {
		for userID, raw := range users {
			if userID == "" || seen[userID] {
				continue
			}
			seen[userID] = true
			batch.Participants = append(batch.Participants, decodeUser(userID, raw))
		}
	}

	logging.InterceptDebug("Decoded %s: %d conversations, %d participants, %d memberships, %d skipped",
		source, len(batch.Conversations), len(batch.Participants), len(batch.Memberships), skipped)
	return batch, skipped, nil
}

func userMap(state *inboxState) map[string]rawUser {
	if state == nil {
		return nil
	}
	return state.Users
}

// decodeConversation converts one raw GROUP_DM entry plus its
// membership list. Missing optional fields fall back to sentinels.
func decodeConversation(account, convID, source string, raw rawConversation) (types.Conversation, []types.Membership, int) {
	conv := types.Conversation{
		ID:              convID,
		AccountUsername: account,
		Name:            types.UnknownSentinel,
		CreateTime:      raw.CreateTime.Time(),
		CreatorID:       raw.CreatedByUserID,
		Trust:           trustOf(raw.Trusted),
		Source:          source,
		LastSeen:        time.Now(),
	}
	if raw.Name != nil && *raw.Name != "" {
		conv.Name = *raw.Name
	}

	members, skipped := decodeParticipants(convID, raw.Participants)
	conv.ParticipantCount = len(members)
	return conv, members, skipped
}

// trustOf applies the trust-inference rule: trusted only when the
// payload explicitly says so, untrusted when it explicitly says not,
// unknown when the field is absent. Downgrades are rejected later at
// the merge boundary.
func trustOf(trusted *bool) types.TrustStatus {
	switch {
	case trusted == nil:
		return types.TrustUnknown
	case *trusted:
		return types.TrustTrusted
	default:
		return types.TrustUntrusted
	}
}

// decodeParticipants handles both membership shapes the platform emits:
// a flat list, or a map of range keys to index-keyed maps.
func decodeParticipants(convID string, raw json.RawMessage) ([]types.Membership, int) {
	if len(raw) == 0 {
		return nil, 0
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, 0
	}

	var entries []rawParticipant
	skipped := 0

	switch trimmed[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			logging.InterceptWarn("Conversation %s: unreadable participant list: %v", convID, err)
			return nil, 1
		}
		for _, item := range list {
			var p rawParticipant
			if err := json.Unmarshal(item, &p); err != nil || p.UserID == "" {
				skipped++
				continue
			}
			entries = append(entries, p)
		}
	case '{':
		var ranges map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &ranges); err != nil {
			logging.InterceptWarn("Conversation %s: unreadable participant map: %v", convID, err)
			return nil, 1
		}
		for _, byIndex := range ranges {
			for _, item := range byIndex {
				var p rawParticipant
				if err := json.Unmarshal(item, &p); err != nil || p.UserID == "" {
					skipped++
					continue
				}
				entries = append(entries, p)
			}
		}
	default:
		logging.InterceptWarn("Conversation %s: unrecognized participants shape", convID)
		return nil, 1
	}

	members := make([]types.Membership, 0, len(entries))
	for _, p := range entries {
		role := types.RoleMember
		if p.IsAdmin {
			role = types.RoleOwner
		}
		members = append(members, types.Membership{
			ConversationID: convID,
			UserID:         string(p.UserID),
			JoinTime:       p.JoinTime.Time(),
			Role:           role,
		})
	}
	return members, skipped
}

// decodeUser converts one profile entry, substituting sentinels for
// absent optional fields rather than failing the record.
func decodeUser(userID string, raw rawUser) types.Participant {
	p := types.Participant{
		ID:          userID,
		ScreenName:  types.UnknownSentinel,
		Name:        types.UnknownSentinel,
		Description: types.UnknownSentinel,
		AvatarURL:   types.UnknownSentinel,
		Followers:   types.UnknownCount,
		Following:   types.UnknownCount,
		Posts:       types.UnknownCount,
	}
	if raw.ScreenName != nil && *raw.ScreenName != "" {
		p.ScreenName = *raw.ScreenName
	}
	if raw.Name != nil && *raw.Name != "" {
		p.Name = *raw.Name
	}
	if raw.Description != nil && *raw.Description != "" {
		p.Description = *raw.Description
	}
	if raw.ProfileImageURLHTTPS != nil && *raw.ProfileImageURLHTTPS != "" {
		p.AvatarURL = *raw.ProfileImageURLHTTPS
	}
	if raw.FollowersCount != nil {
		p.Followers = *raw.FollowersCount
	}
	if raw.FriendsCount != nil {
		p.Following = *raw.FriendsCount
	}
	if raw.StatusesCount != nil {
		p.Posts = *raw.StatusesCount
	}
	return p
}
