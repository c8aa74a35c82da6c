// Package types provides shared record definitions used across dmscout
// packages. This package exists to break import cycles between the
// interceptor, the reconciler, and the store. Types here are plain data
// structures with no behavior beyond small helpers.
package types

import "time"

// UnknownSentinel marks an optional string field absent from a capture.
// Decoders fill it in rather than failing the whole record.
const UnknownSentinel = "unknown"

// UnknownCount marks a numeric field absent from a capture.
const UnknownCount = -1

// TrustStatus tracks whether the platform permits outbound messaging
// into a conversation.
type TrustStatus string

const (
	TrustUnknown   TrustStatus = "unknown"
	TrustUntrusted TrustStatus = "untrusted"
	TrustTrusted   TrustStatus = "trusted"
)

// Rank orders trust statuses along the only permitted transition path:
// unknown -> untrusted -> trusted. Merges keep the higher rank.
func (t TrustStatus) Rank() int {
	switch t {
	case TrustTrusted:
		return 2
	case TrustUntrusted:
		return 1
	default:
		return 0
	}
}

// Cookie is one browser cookie from an authenticated session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// AccountSession holds the artifacts of one authenticated login,
// sufficient to replay the session on later runs.
type AccountSession struct {
	Username  string            `json:"username"`
	Cookies   []Cookie          `json:"cookies"`
	Tokens    map[string]string `json:"tokens"`
	Proxy     string            `json:"proxy,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Conversation is one group conversation observed in intercepted traffic.
type Conversation struct {
	ID              string
	AccountUsername string // the account whose session observed it
	Name            string
	CreateTime      time.Time // zero when the capture omitted it
	CreatorID       string
	Trust           TrustStatus
	ParticipantCount int
	Source          string // which endpoint produced the record
	CustomMessages  []string
	FirstSeen       time.Time
	LastSeen        time.Time
}

// Participant is one user profile observed in intercepted traffic.
// Optional profile fields carry UnknownSentinel / UnknownCount when the
// payload omitted them.
type Participant struct {
	ID          string
	ScreenName  string
	Name        string
	Description string
	AvatarURL   string
	Followers   int
	Following   int
	Posts       int
	FirstSeen   time.Time
	LastUpdated time.Time
}

// Membership links a participant to a conversation. Absence in a later
// capture never implies departure; captures are partial.
type Membership struct {
	ConversationID string
	UserID         string
	JoinTime       time.Time // zero when unknown
	Role           string    // "owner" or "member"
	LastConfirmed  time.Time
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// SendRecord is an append-only audit entry for one send attempt.
type SendRecord struct {
	ID             string
	ConversationID string
	Template       string
	Outcome        string // sent | failed | skipped
	Reason         string
	CreatedAt      time.Time
}

const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Capture is one batch of records decoded from intercepted responses
// during a single run.
type Capture struct {
	AccountUsername string
	Source          string
	CapturedAt      time.Time
	Conversations   []Conversation
	Participants    []Participant
	Memberships     []Membership
}

// Empty reports whether the capture decoded nothing useful.
func (c *Capture) Empty() bool {
	return len(c.Conversations) == 0 && len(c.Participants) == 0 && len(c.Memberships) == 0
}
