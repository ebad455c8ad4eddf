// Package audit records chain transitions for compliance and security review.
package audit

import "time"

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers events that change who a subject is proven to be.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers failed or abused attempts.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine flow progress.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the chain orchestrator. It is transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	StateID   string
	UserID    string
	ModuleID  string
	Action    string
	Levels    []string
	Reason    string
	ClientIP  string
	RequestID string
}

type AuditEvent string

const (
	EventChainStarted       AuditEvent = "chain_started"
	EventStepPrompted       AuditEvent = "step_prompted"
	EventStepSuspended      AuditEvent = "step_suspended"
	EventStepAccepted       AuditEvent = "step_accepted"
	EventStepRejected       AuditEvent = "step_rejected"
	EventCallbackConsumed   AuditEvent = "callback_consumed"
	EventCallbackRejected   AuditEvent = "callback_rejected"
	EventChainCompleted     AuditEvent = "chain_completed"
	EventChainCancelled     AuditEvent = "chain_cancelled"
	EventChainUnsatisfiable AuditEvent = "chain_unsatisfiable"
	EventSubjectConflict    AuditEvent = "subject_conflict"
	EventAttemptsExceeded   AuditEvent = "attempts_exceeded"
	EventPasswordReset      AuditEvent = "password_reset"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventStepAccepted:   CategoryCompliance,
	EventChainCompleted: CategoryCompliance,
	EventPasswordReset:  CategoryCompliance,

	EventStepRejected:       CategorySecurity,
	EventCallbackRejected:   CategorySecurity,
	EventSubjectConflict:    CategorySecurity,
	EventAttemptsExceeded:   CategorySecurity,
	EventChainUnsatisfiable: CategorySecurity,

	EventChainStarted:     CategoryOperations,
	EventStepPrompted:     CategoryOperations,
	EventStepSuspended:    CategoryOperations,
	EventCallbackConsumed: CategoryOperations,
	EventChainCancelled:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
