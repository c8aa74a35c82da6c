package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dmscout/internal/store"
	"dmscout/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSender struct {
	sent    []string
	byConv  map[string]string
	failIDs map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{byConv: map[string]string{}, failIDs: map[string]bool{}}
}

func (f *fakeSender) Send(ctx context.Context, conversationID, message string) error {
	if f.failIDs[conversationID] {
		return errors.New("composer unavailable")
	}
	f.sent = append(f.sent, conversationID)
	f.byConv[conversationID] = message
	return nil
}

func newDispatchStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "dmscout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConversation(t *testing.T, s *store.Store, id string, trust types.TrustStatus, custom ...string) {
	t.Helper()
	_, err := s.UpsertConversation(&types.Conversation{
		ID:              id,
		AccountUsername: "acct",
		Name:            "Group " + id,
		Trust:           trust,
		Source:          "inbox_initial_state",
		CustomMessages:  custom,
		LastSeen:        time.Now(),
	})
	require.NoError(t, err)
}

func newTestDispatcher(s *store.Store, sender Sender) *Dispatcher {
	strategy, _ := NewStrategy("fixed", 1)
	d := New(s, sender, strategy, Options{Seed: 1})
	d.sleep = func(ctx context.Context, delay time.Duration) {}
	return d
}

func TestRunSendsOnlyToTrusted(t *testing.T) {
	s := newDispatchStore(t)
	seedConversation(t, s, "c1", types.TrustTrusted)
	seedConversation(t, s, "c2", types.TrustUntrusted)
	seedConversation(t, s, "c3", types.TrustUnknown)

	sender := newFakeSender()
	d := newTestDispatcher(s, sender)

	sum, err := d.Run(context.Background(), "acct", nil, []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1, Skipped: 2}, sum)
	assert.Equal(t, []string{"c1"}, sender.sent)

	recs, err := s.ListSendRecords("c2")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.OutcomeSkipped, recs[0].Outcome)
	assert.Equal(t, "untrusted", recs[0].Reason)

	recs, err = s.ListSendRecords("c3")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.OutcomeSkipped, recs[0].Outcome)
	assert.Equal(t, "unknown", recs[0].Reason)
}

func TestRunRecordsSkippedRequestedIDs(t *testing.T) {
	s := newDispatchStore(t)
	seedConversation(t, s, "c1", types.TrustTrusted)
	seedConversation(t, s, "c2", types.TrustUntrusted)

	sender := newFakeSender()
	d := newTestDispatcher(s, sender)

	sum, err := d.Run(context.Background(), "acct", []string{"c1", "c2", "c9"}, []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, Summary{Sent: 1, Skipped: 2}, sum)

	recs, err := s.ListSendRecords("c2")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.OutcomeSkipped, recs[0].Outcome)
	assert.Equal(t, "untrusted", recs[0].Reason)

	recs, err = s.ListSendRecords("c9")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "not found", recs[0].Reason)
}

func TestRunCustomMessagesOverridePool(t *testing.T) {
	s := newDispatchStore(t)
	seedConversation(t, s, "c1", types.TrustTrusted, "custom greeting")
	seedConversation(t, s, "c2", types.TrustTrusted)

	sender := newFakeSender()
	d := newTestDispatcher(s, sender)

	_, err := d.Run(context.Background(), "acct", nil, []string{"pool message"})
	require.NoError(t, err)
	assert.Equal(t, "custom greeting", sender.byConv["c1"])
	assert.Equal(t, "pool message", sender.byConv["c2"])
}

func TestRunContinuesPastFailures(t *testing.T) {
	s := newDispatchStore(t)
	seedConversation(t, s, "c1", types.TrustTrusted)
	seedConversation(t, s, "c2", types.TrustTrusted)
	seedConversation(t, s, "c3", types.TrustTrusted)

	sender := newFakeSender()
	sender.failIDs["c2"] = true
	d := newTestDispatcher(s, sender)

	sum, err := d.Run(context.Background(), "acct", nil, []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 1, sum.Failed)

	recs, err := s.ListSendRecords("c2")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, types.OutcomeFailed, recs[0].Outcome)
	assert.Contains(t, recs[0].Reason, "composer unavailable")
}

func TestRunEmptyPoolFails(t *testing.T) {
	s := newDispatchStore(t)
	d := newTestDispatcher(s, newFakeSender())

	_, err := d.Run(context.Background(), "acct", nil, nil)
	require.ErrorIs(t, err, ErrTemplateLoad)
}

func TestDelayStaysWithinBounds(t *testing.T) {
	d := New(nil, nil, fixedStrategy{}, Options{
		MinDelay: 5 * time.Second,
		MaxDelay: 15 * time.Second,
		Seed:     42,
	})
	for i := 0; i < 100; i++ {
		delay := d.delay()
		assert.GreaterOrEqual(t, delay, 5*time.Second)
		assert.LessOrEqual(t, delay, 15*time.Second)
	}
}

func TestLoadTemplatesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- first message\n- second message\n"), 0o644))

	templates, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"first message", "second message"}, templates)
}

func TestLoadTemplatesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`["one", "two"]`), 0o644))

	templates, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, templates)
}

func TestLoadTemplatesTxt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\n\n  two  \n"), 0o644))

	templates, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, templates)
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, ErrTemplateLoad)
}

func TestLoadTemplatesEmptyPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	_, err := LoadTemplates(path)
	require.ErrorIs(t, err, ErrTemplateLoad)
}

func TestLoadTemplatesDefaultPool(t *testing.T) {
	templates, err := LoadTemplates("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplates, templates)
}

func TestStrategies(t *testing.T) {
	pool := []string{"a", "b", "c"}

	seq, err := NewStrategy("sequential", 0)
	require.NoError(t, err)
	assert.Equal(t, "a", seq.Pick(pool))
	assert.Equal(t, "b", seq.Pick(pool))
	assert.Equal(t, "c", seq.Pick(pool))
	assert.Equal(t, "a", seq.Pick(pool))

	fixed, err := NewStrategy("fixed", 0)
	require.NoError(t, err)
	assert.Equal(t, "a", fixed.Pick(pool))
	assert.Equal(t, "a", fixed.Pick(pool))

	random, err := NewStrategy("random", 7)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		assert.Contains(t, pool, random.Pick(pool))
	}

	_, err = NewStrategy("bogus", 0)
	require.Error(t, err)
}
