package intercept

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// The platform serializes millisecond timestamps inconsistently: bare
// numbers in some payloads, quoted strings in others. millis accepts
// both; zero means absent.
type millis int64

func (m *millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*m = millis(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*m = millis(v)
	return nil
}

func (m millis) Time() time.Time {
	if m == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

// envelope covers both endpoint shapes. user_updates responses sometimes
// carry a full inbox_initial_state instead of user_events; decoding
// follows whichever section is present.
type envelope struct {
	InboxInitialState *inboxState        `json:"inbox_initial_state"`
	UserEvents        *inboxState        `json:"user_events"`
	Users             map[string]rawUser `json:"users"`
}

// inboxState is the conversation/user section shared by both endpoints.
type inboxState struct {
	Conversations map[string]rawConversation `json:"conversations"`
	Users         map[string]rawUser         `json:"users"`
}

// rawConversation is one conversation entry as the platform ships it.
// Only type == "GROUP_DM" entries become records.
type rawConversation struct {
	Type            string          `json:"type"`
	Name            *string         `json:"name"`
	CreateTime      millis          `json:"create_time"`
	CreatedByUserID string          `json:"created_by_user_id"`
	Trusted         *bool           `json:"trusted"`
	Participants    json.RawMessage `json:"participants"`
}

// rawParticipant is one membership entry inside a conversation.
type rawParticipant struct {
	UserID   flexID `json:"user_id"`
	JoinTime millis `json:"join_time"`
	IsAdmin  bool   `json:"is_admin"`
}

// rawUser is one profile entry from a users map.
type rawUser struct {
	IDStr                string  `json:"id_str"`
	Name                 *string `json:"name"`
	ScreenName           *string `json:"screen_name"`
	Description          *string `json:"description"`
	ProfileImageURLHTTPS *string `json:"profile_image_url_https"`
	FollowersCount       *int    `json:"followers_count"`
	FriendsCount         *int    `json:"friends_count"`
	StatusesCount        *int    `json:"statuses_count"`
}

// flexID accepts user ids serialized as strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var v json.Number
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexID(v.String())
	return nil
}
