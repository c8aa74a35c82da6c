// Package dispatch sends templated messages into trusted group
// conversations, recording the outcome of every attempt.
package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"dmscout/internal/logging"
	"dmscout/internal/types"
)

// RecordStore is the slice of the store the dispatcher needs.
type RecordStore interface {
	ListEligibleConversations(username string, ids []string) ([]*types.Conversation, error)
	ListConversations(username string) ([]*types.Conversation, error)
	AppendSendRecord(rec *types.SendRecord) error
}

// Options tunes a dispatch run.
type Options struct {
	// MinDelay and MaxDelay bound the randomized pause between sends.
	MinDelay time.Duration
	MaxDelay time.Duration

	// Seed feeds the delay and random-strategy RNG. Zero means
	// time-based.
	Seed int64
}

func (o Options) seed() int64 {
	if o.Seed != 0 {
		return o.Seed
	}
	return time.Now().UnixNano()
}

// Summary totals one dispatch run.
type Summary struct {
	Sent    int
	Failed  int
	Skipped int
}

// Dispatcher fans a template pool out across eligible conversations.
type Dispatcher struct {
	store    RecordStore
	sender   Sender
	strategy Strategy
	opts     Options
	rng      *rand.Rand

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

func New(st RecordStore, sender Sender, strategy Strategy, opts Options) *Dispatcher {
	return &Dispatcher{
		store:    st,
		sender:   sender,
		strategy: strategy,
		opts:     opts,
		rng:      rand.New(rand.NewSource(opts.seed())),
		sleep: func(ctx context.Context, d time.Duration) {
			select {
			case <-ctx.Done():
			case <-time.After(d):
			}
		},
	}
}

// Run sends one message to every eligible conversation. Only trusted
// conversations are eligible; every conversation considered and passed
// over gets a skipped record carrying its trust status. Individual
// send failures are recorded and do not stop the run.
func (d *Dispatcher) Run(ctx context.Context, username string, groupIDs []string, pool []string) (Summary, error) {
	timer := logging.StartTimer(logging.CategoryDispatch, "Run")
	defer timer.Stop()

	var sum Summary
	if len(pool) == 0 {
		return sum, fmt.Errorf("%w: empty message pool", ErrTemplateLoad)
	}

	eligible, err := d.store.ListEligibleConversations(username, groupIDs)
	if err != nil {
		return sum, fmt.Errorf("list eligible conversations: %w", err)
	}

	skipped, err := d.recordSkips(username, groupIDs, eligible)
	if err != nil {
		return sum, err
	}
	sum.Skipped = skipped

	if len(eligible) == 0 {
		logging.Dispatch("No eligible conversations for %s", username)
		return sum, nil
	}
	logging.Dispatch("Dispatching to %d conversations for %s", len(eligible), username)

	for i, conv := range eligible {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		convPool := pool
		if len(conv.CustomMessages) > 0 {
			convPool = conv.CustomMessages
		}
		message := d.strategy.Pick(convPool)

		rec := &types.SendRecord{
			ConversationID: conv.ID,
			Template:       message,
			CreatedAt:      time.Now(),
		}
		if err := d.sender.Send(ctx, conv.ID, message); err != nil {
			logging.DispatchWarn("Send to %s failed: %v", conv.ID, err)
			rec.Outcome = types.OutcomeFailed
			rec.Reason = err.Error()
			sum.Failed++
		} else {
			logging.Dispatch("Sent to %s (%s)", conv.ID, conv.Name)
			rec.Outcome = types.OutcomeSent
			sum.Sent++
		}
		if err := d.store.AppendSendRecord(rec); err != nil {
			return sum, fmt.Errorf("record send to %s: %w", conv.ID, err)
		}

		if i < len(eligible)-1 {
			d.sleep(ctx, d.delay())
		}
	}
	return sum, nil
}

// recordSkips writes a skipped record for every conversation that was
// considered but not eligible: the explicitly requested ids when a
// list was given, otherwise every known conversation for the account.
// The reason is the conversation's trust status, or "not found" for a
// requested id the dataset has never seen.
func (d *Dispatcher) recordSkips(username string, requested []string, eligible []*types.Conversation) (int, error) {
	all, err := d.store.ListConversations(username)
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	eligibleSet := make(map[string]bool, len(eligible))
	for _, conv := range eligible {
		eligibleSet[conv.ID] = true
	}
	trustOf := make(map[string]types.TrustStatus, len(all))
	for _, conv := range all {
		trustOf[conv.ID] = conv.Trust
	}

	candidates := requested
	if len(candidates) == 0 {
		for _, conv := range all {
			candidates = append(candidates, conv.ID)
		}
	}

	skipped := 0
	for _, id := range candidates {
		if eligibleSet[id] {
			continue
		}
		reason := "not found"
		if trust, ok := trustOf[id]; ok {
			reason = string(trust)
		}
		rec := &types.SendRecord{
			ConversationID: id,
			Outcome:        types.OutcomeSkipped,
			Reason:         reason,
			CreatedAt:      time.Now(),
		}
		if err := d.store.AppendSendRecord(rec); err != nil {
			logging.DispatchWarn("Record skip for %s failed: %v", id, err)
			continue
		}
		logging.Dispatch("Skipped %s: %s", id, reason)
		skipped++
	}
	return skipped, nil
}

// delay draws a pause from [MinDelay, MaxDelay].
func (d *Dispatcher) delay() time.Duration {
	min, max := d.opts.MinDelay, d.opts.MaxDelay
	if max < min {
		max = min
	}
	if max <= 0 {
		return 0
	}
	if max == min {
		return min
	}
	return min + time.Duration(d.rng.Int63n(int64(max-min)+1))
}
