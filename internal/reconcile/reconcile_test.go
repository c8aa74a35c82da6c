package reconcile

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmscout/internal/store"
	"dmscout/internal/types"
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "dmscout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func groupBatch(convID string, trust types.TrustStatus, userIDs ...string) *types.Capture {
	batch := &types.Capture{
		AccountUsername: "acct",
		Source:          "inbox_initial_state",
		CapturedAt:      time.Now(),
		Conversations: []types.Conversation{{
			ID:              convID,
			AccountUsername: "acct",
			Name:            "Group",
			CreateTime:      time.UnixMilli(1700000000000),
			CreatorID:       "creator",
			Trust:           trust,
			ParticipantCount: len(userIDs),
			Source:          "inbox_initial_state",
			LastSeen:        time.Now(),
		}},
	}
	for _, id := range userIDs {
		batch.Participants = append(batch.Participants, types.Participant{
			ID:          id,
			ScreenName:  "user_" + id,
			Name:        types.UnknownSentinel,
			Description: types.UnknownSentinel,
			AvatarURL:   types.UnknownSentinel,
			Followers:   types.UnknownCount,
			Following:   types.UnknownCount,
			Posts:       types.UnknownCount,
		})
		batch.Memberships = append(batch.Memberships, types.Membership{
			ConversationID: convID,
			UserID:         id,
			Role:           types.RoleMember,
		})
	}
	return batch
}

func TestApplyEmptyBatch(t *testing.T) {
	r, _ := newTestReconciler(t)
	rep, err := r.Apply(&types.Capture{AccountUsername: "acct"})
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)

	rep, err = r.Apply(nil)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

func TestApplyInsertThenIdempotentReplay(t *testing.T) {
	r, s := newTestReconciler(t)

	batch := groupBatch("c1", types.TrustUnknown, "u1", "u2")
	rep, err := r.Apply(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.ConversationsInserted)
	assert.Equal(t, 0, rep.ConversationsUpdated)
	assert.Equal(t, 2, rep.Participants)
	assert.Equal(t, 2, rep.Memberships)

	before, err := s.GetConversation("c1")
	require.NoError(t, err)

	rep, err = r.Apply(batch)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.ConversationsInserted)
	assert.Equal(t, 1, rep.ConversationsUpdated)

	after, err := s.GetConversation("c1")
	require.NoError(t, err)

	ignoreSeen := cmpopts.IgnoreFields(types.Conversation{}, "FirstSeen", "LastSeen")
	if diff := cmp.Diff(before, after, ignoreSeen); diff != "" {
		t.Errorf("replay changed conversation (-before +after):\n%s", diff)
	}
}

func TestApplyMergesOverlappingBatches(t *testing.T) {
	r, s := newTestReconciler(t)

	_, err := r.Apply(groupBatch("c1", types.TrustUnknown, "u1"))
	require.NoError(t, err)

	_, err = r.Apply(groupBatch("c1", types.TrustTrusted, "u1", "u2"))
	require.NoError(t, err)

	conv, err := s.GetConversation("c1")
	require.NoError(t, err)
	assert.Equal(t, types.TrustTrusted, conv.Trust)

	members, err := s.ListMembers("c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)
}

func TestApplyNeverDowngradesTrust(t *testing.T) {
	r, s := newTestReconciler(t)

	_, err := r.Apply(groupBatch("c1", types.TrustTrusted, "u1"))
	require.NoError(t, err)

	_, err = r.Apply(groupBatch("c1", types.TrustUnknown, "u1"))
	require.NoError(t, err)

	conv, err := s.GetConversation("c1")
	require.NoError(t, err)
	assert.Equal(t, types.TrustTrusted, conv.Trust)
}

func TestApplyConcurrentDisjointBatches(t *testing.T) {
	r, s := newTestReconciler(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		convID := "conv-" + string(rune('a'+i))
		userID := "user-" + string(rune('a'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Apply(groupBatch(convID, types.TrustUnknown, userID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	convs, err := s.ListConversations("acct")
	require.NoError(t, err)
	assert.Len(t, convs, 8)
}

func TestReportAdd(t *testing.T) {
	total := Report{ConversationsInserted: 1, Participants: 2}
	total.Add(Report{ConversationsUpdated: 3, Memberships: 4, Skipped: 1})
	assert.Equal(t, Report{
		ConversationsInserted: 1,
		ConversationsUpdated:  3,
		Participants:          2,
		Memberships:           4,
		Skipped:               1,
	}, total)
}
