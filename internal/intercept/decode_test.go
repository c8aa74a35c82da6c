package intercept

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmscout/internal/types"
)

const inboxFixture = `{
  "inbox_initial_state": {
    "conversations": {
      "123456-789012": {
        "conversation_id": "123456-789012",
        "type": "GROUP_DM",
        "name": "Crypto Signals",
        "create_time": "1700000000000",
        "created_by_user_id": "42",
        "trusted": true,
        "participants": [
          {"user_id": "42", "join_time": 1700000000000, "is_admin": true},
          {"user_id": 77, "join_time": "1700000100000"}
        ]
      },
      "999-solo": {
        "conversation_id": "999-solo",
        "type": "ONE_TO_ONE",
        "participants": [{"user_id": "42"}]
      }
    },
    "users": {
      "42": {
        "id_str": "42",
        "name": "Alice",
        "screen_name": "alice",
        "description": "trader",
        "profile_image_url_https": "https://img.example/alice.jpg",
        "followers_count": 100,
        "friends_count": 50,
        "statuses_count": 2000
      },
      "77": {
        "id_str": "77",
        "screen_name": "bob"
      }
    }
  }
}`

func TestDecodeInboxInitialState(t *testing.T) {
	batch, skipped, err := Decode("acct", "https://x.com/i/api/1.1/dm/inbox_initial_state.json", []byte(inboxFixture))
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, "inbox_initial_state", batch.Source)
	assert.Equal(t, "acct", batch.AccountUsername)

	require.Len(t, batch.Conversations, 1, "one-to-one conversations must be excluded")
	conv := batch.Conversations[0]
	assert.Equal(t, "123456-789012", conv.ID)
	assert.Equal(t, "Crypto Signals", conv.Name)
	assert.Equal(t, "42", conv.CreatorID)
	assert.Equal(t, types.TrustTrusted, conv.Trust)
	assert.Equal(t, 2, conv.ParticipantCount)
	assert.Equal(t, time.UnixMilli(1700000000000), conv.CreateTime)

	require.Len(t, batch.Memberships, 2)
	byUser := map[string]types.Membership{}
	for _, m := range batch.Memberships {
		byUser[m.UserID] = m
	}
	assert.Equal(t, types.RoleOwner, byUser["42"].Role)
	assert.Equal(t, types.RoleMember, byUser["77"].Role)
	assert.Equal(t, time.UnixMilli(1700000100000), byUser["77"].JoinTime)

	require.Len(t, batch.Participants, 2)
}

func TestDecodeMissingProfileFieldsUseSentinels(t *testing.T) {
	batch, _, err := Decode("acct", EndpointInboxInitialState, []byte(inboxFixture))
	require.NoError(t, err)

	var bob types.Participant
	for _, p := range batch.Participants {
		if p.ID == "77" {
			bob = p
		}
	}
	require.Equal(t, "77", bob.ID)
	assert.Equal(t, "bob", bob.ScreenName)
	assert.Equal(t, types.UnknownSentinel, bob.Name)
	assert.Equal(t, types.UnknownSentinel, bob.Description)
	assert.Equal(t, types.UnknownSentinel, bob.AvatarURL)
	assert.Equal(t, types.UnknownCount, bob.Followers)
	assert.Equal(t, types.UnknownCount, bob.Following)
	assert.Equal(t, types.UnknownCount, bob.Posts)
}

func TestDecodeUserUpdatesNestedParticipants(t *testing.T) {
	body := `{
	  "user_events": {
	    "conversations": {
	      "555-666": {
	        "type": "GROUP_DM",
	        "participants": {
	          "0-1": {
	            "0": {"user_id": "10", "is_admin": true},
	            "1": {"user_id": "11"}
	          },
	          "2-2": {
	            "2": {"user_id": "12"}
	          }
	        }
	      }
	    }
	  },
	  "users": {
	    "10": {"screen_name": "carol"}
	  }
	}`

	batch, skipped, err := Decode("acct", EndpointUserUpdates, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, "user_events", batch.Source)

	require.Len(t, batch.Conversations, 1)
	conv := batch.Conversations[0]
	assert.Equal(t, types.UnknownSentinel, conv.Name)
	assert.Equal(t, types.TrustUnknown, conv.Trust, "absent trusted flag must stay unknown")
	assert.Equal(t, 3, conv.ParticipantCount)

	ids := map[string]bool{}
	for _, m := range batch.Memberships {
		ids[m.UserID] = true
	}
	assert.Equal(t, map[string]bool{"10": true, "11": true, "12": true}, ids)

	require.Len(t, batch.Participants, 1)
	assert.Equal(t, "carol", batch.Participants[0].ScreenName)
}

func TestDecodeExplicitUntrusted(t *testing.T) {
	body := `{
	  "inbox_initial_state": {
	    "conversations": {
	      "c1": {"type": "GROUP_DM", "trusted": false, "participants": []}
	    }
	  }
	}`
	batch, _, err := Decode("acct", EndpointInboxInitialState, []byte(body))
	require.NoError(t, err)
	require.Len(t, batch.Conversations, 1)
	assert.Equal(t, types.TrustUntrusted, batch.Conversations[0].Trust)
}

func TestDecodeMalformedParticipantSkippedNotFatal(t *testing.T) {
	body := `{
	  "inbox_initial_state": {
	    "conversations": {
	      "c1": {
	        "type": "GROUP_DM",
	        "participants": [
	          {"user_id": "1"},
	          {"join_time": 123},
	          "not-an-object"
	        ]
	      }
	    }
	  }
	}`
	batch, skipped, err := Decode("acct", EndpointInboxInitialState, []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, batch.Memberships, 1)
	assert.Equal(t, "1", batch.Memberships[0].UserID)
	assert.Equal(t, 1, batch.Conversations[0].ParticipantCount)
}

func TestDecodeUnparseableBody(t *testing.T) {
	_, _, err := Decode("acct", EndpointUserUpdates, []byte("<html>rate limited</html>"))
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestDecodeRootUsersMergedWithoutDuplicates(t *testing.T) {
	body := `{
	  "inbox_initial_state": {
	    "conversations": {},
	    "users": {"1": {"screen_name": "inner"}}
	  },
	  "users": {
	    "1": {"screen_name": "outer"},
	    "2": {"screen_name": "rootonly"}
	  }
	}`
	batch, _, err := Decode("acct", EndpointInboxInitialState, []byte(body))
	require.NoError(t, err)
	require.Len(t, batch.Participants, 2)

	byID := map[string]types.Participant{}
	for _, p := range batch.Participants {
		byID[p.ID] = p
	}
	assert.Equal(t, "inner", byID["1"].ScreenName, "state-level user wins over root duplicate")
	assert.Equal(t, "rootonly", byID["2"].ScreenName)
}

func TestMatchesEndpoint(t *testing.T) {
	assert.True(t, MatchesEndpoint("https://x.com/i/api/1.1/dm/inbox_initial_state.json?include=1"))
	assert.True(t, MatchesEndpoint("https://x.com/i/api/1.1/dm/user_updates.json"))
	assert.False(t, MatchesEndpoint("https://x.com/i/api/graphql/HomeTimeline"))
}
