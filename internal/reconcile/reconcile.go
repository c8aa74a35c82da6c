// Package reconcile merges capture batches from intercepted responses
// into the persisted dataset. Merging is idempotent: replaying the same
// batch changes nothing, and records only ever gain information.
package reconcile

import (
	"fmt"

	"dmscout/internal/logging"
	"dmscout/internal/store"
	"dmscout/internal/types"
)

// Report summarizes one Apply call.
type Report struct {
	ConversationsInserted int
	ConversationsUpdated  int
	Participants          int
	Memberships           int
	Skipped               int
}

// Add folds another report in, for run-level totals.
func (r *Report) Add(other Report) {
	r.ConversationsInserted += other.ConversationsInserted
	r.ConversationsUpdated += other.ConversationsUpdated
	r.Participants += other.Participants
	r.Memberships += other.Memberships
	r.Skipped += other.Skipped
}

func (r Report) String() string {
	return fmt.Sprintf("%d new conversations, %d updated, %d participants, %d memberships, %d skipped",
		r.ConversationsInserted, r.ConversationsUpdated, r.Participants, r.Memberships, r.Skipped)
}

// Reconciler applies capture batches to a store.
type Reconciler struct {
	store *store.Store
}

func New(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// Apply merges one batch. Conversations go in first so memberships
// always reference a known conversation. A failed record aborts the
// batch; the store's single-statement upserts keep whatever already
// landed consistent.
func (r *Reconciler) Apply(batch *types.Capture) (Report, error) {
	var rep Report
	if batch == nil || batch.Empty() {
		return rep, nil
	}

	timer := logging.StartTimer(logging.CategoryReconcile, "Apply")
	defer timer.Stop()

	for i := range batch.Conversations {
		inserted, err := r.store.UpsertConversation(&batch.Conversations[i])
		if err != nil {
			return rep, fmt.Errorf("reconcile conversation %s: %w", batch.Conversations[i].ID, err)
		}
		if inserted {
			rep.ConversationsInserted++
		} else {
			rep.ConversationsUpdated++
		}
	}

	for i := range batch.Participants {
		if _, err := r.store.UpsertParticipant(&batch.Participants[i]); err != nil {
			return rep, fmt.Errorf("reconcile participant %s: %w", batch.Participants[i].ID, err)
		}
		rep.Participants++
	}

	for i := range batch.Memberships {
		if _, err := r.store.UpsertMembership(&batch.Memberships[i]); err != nil {
			return rep, fmt.Errorf("reconcile membership %s/%s: %w",
				batch.Memberships[i].ConversationID, batch.Memberships[i].UserID, err)
		}
		rep.Memberships++
	}

	logging.Reconcile("Applied %s batch for %s: %s", batch.Source, batch.AccountUsername, rep.String())
	return rep, nil
}
