package store

import (
	"fmt"
	"time"

	"dmscout/internal/logging"
	"dmscout/internal/types"

	"github.com/google/uuid"
)

// AppendSendRecord writes one audit entry for a send attempt. Records
// are append-only; nothing ever updates or deletes them.
func (s *Store) AppendSendRecord(rec *types.SendRecord) error {
	if rec.ConversationID == "" {
		return fmt.Errorf("send record requires a conversation id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO send_records (id, conversation_id, template, outcome, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ConversationID, rec.Template, rec.Outcome, rec.Reason, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		logging.StoreError("Failed to append send record for %s: %v", rec.ConversationID, err)
		return err
	}

	logging.StoreDebug("Send record %s: conversation=%s outcome=%s", rec.ID, rec.ConversationID, rec.Outcome)
	return nil
}

// ListSendRecords returns the audit entries for one conversation, oldest
// first.
func (s *Store) ListSendRecords(conversationID string) ([]*types.SendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, conversation_id, template, outcome, reason, created_at
		 FROM send_records WHERE conversation_id = ? ORDER BY created_at, rowid`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.SendRecord
	for rows.Next() {
		var rec types.SendRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.Template, &rec.Outcome, &rec.Reason, &createdAt); err != nil {
			continue
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// SaveRawCapture archives one intercepted response body so captures can
// be re-processed after decoder changes.
func (s *Store) SaveRawCapture(runID, username, url, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO raw_captures (run_id, account_username, url, body, captured_at)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, username, url, body, time.Now().UnixMilli(),
	)
	if err != nil {
		logging.StoreError("Failed to archive raw capture from %s: %v", url, err)
	}
	return err
}

// CountRawCaptures returns how many bodies a run archived.
func (s *Store) CountRawCaptures(runID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM raw_captures WHERE run_id = ?", runID).Scan(&n)
	return n, err
}
