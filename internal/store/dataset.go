package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dmscout/internal/logging"
	"dmscout/internal/types"
)

// The upserts below are each a single INSERT ... ON CONFLICT DO UPDATE
// statement. SQLite executes that atomically, which is the cross-process
// consistency contract: two concurrent reconciliations of the same
// identifier resolve last-writer-wins over the whole merged record,
// never a torn mix of fields.

// UpsertConversation merges one conversation record. Trust never moves
// backwards along unknown -> untrusted -> trusted, and create_time /
// creator_id are set once and never overwritten by a later capture.
// A sentinel name never replaces a known one. Returns true when the
// row was newly inserted.
func (s *Store) UpsertConversation(c *types.Conversation) (bool, error) {
	if c.ID == "" {
		return false, fmt.Errorf("conversation requires an id")
	}

	custom, err := json.Marshal(c.CustomMessages)
	if err != nil {
		return false, fmt.Errorf("marshal custom messages: %w", err)
	}

	now := time.Now().UnixMilli()
	lastSeen := c.LastSeen.UnixMilli()
	if c.LastSeen.IsZero() {
		lastSeen = now
	}
	trust := c.Trust
	if trust == "" {
		trust = types.TrustUnknown
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Existence check feeds the operator-visible insert/update counts
	// only; correctness rests on the upsert below.
	var exists bool
	if err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", c.ID,
	).Scan(&exists); err != nil {
		return false, err
	}

	_, err = s.db.Exec(
		`INSERT INTO conversations
			(id, account_username, name, create_time, creator_id, trust,
			 participant_count, source, custom_messages, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			account_username  = excluded.account_username,
			name              = CASE WHEN excluded.name != 'unknown'
			                         THEN excluded.name
			                         ELSE conversations.name END,
			create_time       = CASE WHEN conversations.create_time > 0
			                         THEN conversations.create_time
			                         ELSE excluded.create_time END,
			creator_id        = CASE WHEN conversations.creator_id != ''
			                         THEN conversations.creator_id
			                         ELSE excluded.creator_id END,
			trust             = CASE
			                      WHEN conversations.trust = 'trusted' OR excluded.trust = 'trusted' THEN 'trusted'
			                      WHEN conversations.trust = 'untrusted' OR excluded.trust = 'untrusted' THEN 'untrusted'
			                      ELSE 'unknown' END,
			participant_count = excluded.participant_count,
			source            = excluded.source,
			last_seen         = excluded.last_seen`,
		c.ID, c.AccountUsername, c.Name, c.CreateTime.UnixMilli(), c.CreatorID, string(trust),
		c.ParticipantCount, c.Source, string(custom), now, lastSeen,
	)
	if err != nil {
		logging.StoreError("Failed to upsert conversation %s: %v", c.ID, err)
		return false, err
	}

	logging.StoreDebug("Upserted conversation %s (trust=%s, inserted=%v)", c.ID, trust, !exists)
	return !exists, nil
}

// UpsertParticipant merges one participant profile. Sentinel values
// never overwrite previously known fields, and first_seen is set once.
func (s *Store) UpsertParticipant(p *types.Participant) (bool, error) {
	if p.ID == "" {
		return false, fmt.Errorf("participant requires an id")
	}

	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	if err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM participants WHERE id = ?)", p.ID,
	).Scan(&exists); err != nil {
		return false, err
	}

	_, err := s.db.Exec(
		`INSERT INTO participants
			(id, screen_name, name, description, avatar_url,
			 followers, following, posts, first_seen, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			screen_name  = CASE WHEN excluded.screen_name != 'unknown' THEN excluded.screen_name ELSE participants.screen_name END,
			name         = CASE WHEN excluded.name != 'unknown' THEN excluded.name ELSE participants.name END,
			description  = CASE WHEN excluded.description != 'unknown' THEN excluded.description ELSE participants.description END,
			avatar_url   = CASE WHEN excluded.avatar_url != 'unknown' THEN excluded.avatar_url ELSE participants.avatar_url END,
			followers    = CASE WHEN excluded.followers >= 0 THEN excluded.followers ELSE participants.followers END,
			following    = CASE WHEN excluded.following >= 0 THEN excluded.following ELSE participants.following END,
			posts        = CASE WHEN excluded.posts >= 0 THEN excluded.posts ELSE participants.posts END,
			last_updated = excluded.last_updated`,
		p.ID, p.ScreenName, p.Name, p.Description, p.AvatarURL,
		p.Followers, p.Following, p.Posts, now, now,
	)
	if err != nil {
		logging.StoreError("Failed to upsert participant %s: %v", p.ID, err)
		return false, err
	}
	return !exists, nil
}

// UpsertMembership records or refreshes one conversation/participant
// pairing. Memberships are never deleted here; absence in a capture does
// not imply departure.
func (s *Store) UpsertMembership(m *types.Membership) (bool, error) {
	if m.ConversationID == "" || m.UserID == "" {
		return false, fmt.Errorf("membership requires conversation and user ids")
	}

	now := time.Now().UnixMilli()
	role := m.Role
	if role == "" {
		role = types.RoleMember
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	if err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM memberships WHERE conversation_id = ? AND user_id = ?)",
		m.ConversationID, m.UserID,
	).Scan(&exists); err != nil {
		return false, err
	}

	_, err := s.db.Exec(
		`INSERT INTO memberships (conversation_id, user_id, join_time, role, last_confirmed)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(conversation_id, user_id) DO UPDATE SET
			join_time      = CASE WHEN memberships.join_time > 0 THEN memberships.join_time ELSE excluded.join_time END,
			role           = excluded.role,
			last_confirmed = excluded.last_confirmed`,
		m.ConversationID, m.UserID, m.JoinTime.UnixMilli(), role, now,
	)
	if err != nil {
		logging.StoreError("Failed to upsert membership %s/%s: %v", m.ConversationID, m.UserID, err)
		return false, err
	}
	return !exists, nil
}

// GetConversation fetches one conversation by id.
func (s *Store) GetConversation(id string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, account_username, name, create_time, creator_id, trust,
		        participant_count, source, custom_messages, first_seen, last_seen
		 FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("conversation %s not found", id)
		}
		return nil, err
	}
	return c, nil
}

// ListEligibleConversations returns the trusted conversations for an
// account, optionally restricted to an explicit id list.
func (s *Store) ListEligibleConversations(username string, ids []string) ([]*types.Conversation, error) {
	timer := logging.StartTimer(logging.CategoryStore, "ListEligibleConversations")
	defer timer.Stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, account_username, name, create_time, creator_id, trust,
	                 participant_count, source, custom_messages, first_seen, last_seen
	          FROM conversations
	          WHERE account_username = ? AND trust = 'trusted'`
	args := []interface{}{username}
	if len(ids) > 0 {
		query += " AND id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY last_seen DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListConversations returns every conversation for an account, any trust.
func (s *Store) ListConversations(username string) ([]*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, account_username, name, create_time, creator_id, trust,
		        participant_count, source, custom_messages, first_seen, last_seen
		 FROM conversations WHERE account_username = ? ORDER BY last_seen DESC`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*types.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListMembers returns the participant ids linked to a conversation.
func (s *Store) ListMembers(conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT user_id FROM memberships WHERE conversation_id = ? ORDER BY user_id", conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetParticipant fetches one participant by user id.
func (s *Store) GetParticipant(id string) (*types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p types.Participant
	var firstSeen, lastUpdated int64
	err := s.db.QueryRow(
		`SELECT id, screen_name, name, description, avatar_url,
		        followers, following, posts, first_seen, last_updated
		 FROM participants WHERE id = ?`, id,
	).Scan(&p.ID, &p.ScreenName, &p.Name, &p.Description, &p.AvatarURL,
		&p.Followers, &p.Following, &p.Posts, &firstSeen, &lastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("participant %s not found", id)
		}
		return nil, err
	}
	p.FirstSeen = time.UnixMilli(firstSeen)
	p.LastUpdated = time.UnixMilli(lastUpdated)
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConversation(row rowScanner) (*types.Conversation, error) {
	var c types.Conversation
	var trust, custom string
	var createTime, firstSeen, lastSeen int64
	err := row.Scan(&c.ID, &c.AccountUsername, &c.Name, &createTime, &c.CreatorID, &trust,
		&c.ParticipantCount, &c.Source, &custom, &firstSeen, &lastSeen)
	if err != nil {
		return nil, err
	}
	c.Trust = types.TrustStatus(trust)
	if createTime > 0 {
		c.CreateTime = time.UnixMilli(createTime)
	}
	c.FirstSeen = time.UnixMilli(firstSeen)
	c.LastSeen = time.UnixMilli(lastSeen)
	if err := json.Unmarshal([]byte(custom), &c.CustomMessages); err != nil {
		c.CustomMessages = nil
	}
	return &c, nil
}
