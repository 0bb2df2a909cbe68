// Package domain defines the core domain models for the support dialogue orchestrator.
package domain

// Role identifies who produced a transcript event.
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// EventType classifies a transcript event payload.
type EventType string

const (
	EventTypeText   EventType = "text"
	EventTypeButton EventType = "button"
	EventTypeEvent  EventType = "event"
)

// SystemEventKind names an internal decision recorded on the transcript.
type SystemEventKind string

const (
	SystemEventStageChanged      SystemEventKind = "stage_changed"
	SystemEventValidationFailed  SystemEventKind = "validation_failed"
	SystemEventChoicesDropped    SystemEventKind = "choices_dropped"
	SystemEventFallbackUsed      SystemEventKind = "fallback_used"
	SystemEventContentBlocked    SystemEventKind = "content_blocked"
	SystemEventModelCallStarted  SystemEventKind = "model_call_started"
	SystemEventModelCallDone     SystemEventKind = "model_call_done"
	SystemEventRateLimited       SystemEventKind = "rate_limited"
	SystemEventCooldownSkip      SystemEventKind = "cooldown_skip"
	SystemEventDuplicateAbsorbed SystemEventKind = "duplicate_absorbed"
	SystemEventTicketCreated     SystemEventKind = "ticket_created"
	SystemEventReopened          SystemEventKind = "conversation_reopened"
)

// ConversationStatus represents the lifecycle state of a conversation record.
type ConversationStatus string

const (
	ConversationStatusOpen      ConversationStatus = "open"
	ConversationStatusEscalated ConversationStatus = "escalated"
	ConversationStatusClosed    ConversationStatus = "closed"
)

// SkillLevel is the self-reported technical level of the user.
type SkillLevel string

const (
	SkillLevelBasic    SkillLevel = "basic"
	SkillLevelMedium   SkillLevel = "medium"
	SkillLevelAdvanced SkillLevel = "advanced"
)

// Feedback is the outcome reported at the mandatory feedback stage.
type Feedback string

const (
	FeedbackNone     Feedback = ""
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// Intent distinguishes the two model-governed entry paths.
type Intent string

const (
	IntentProblem Intent = "problem"
	IntentTask    Intent = "task"
)
