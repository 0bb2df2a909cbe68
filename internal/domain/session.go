package domain

import "time"

// Session is the ephemeral per-user dialogue state. It lives in memory only,
// keyed by session id, and is discarded after inactivity. The durable twin is
// the Conversation record; a lost session is never silently re-attached to it
// (resume policy: explicit restart, see DESIGN.md).
type Session struct {
	SessionID      string
	ConversationID string
	Stage          string
	Locale         string
	Name           string
	Skill          SkillLevel
	Device         string
	Problem        string
	Intent         Intent
	Feedback       Feedback
	ContactEmail   string
	ContactPhone   string
	CreatedAt      time.Time
	LastSeen       time.Time

	// LastResponse is replayed when a duplicate submission is absorbed.
	LastResponse *TurnResponse
}

// Touch refreshes the inactivity clock.
func (s *Session) Touch(now time.Time) {
	s.LastSeen = now
}
