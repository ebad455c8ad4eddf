package service

import (
	"context"
	"time"

	"authchain/internal/audit"
	"authchain/internal/chain/models"
	"authchain/internal/platform/middleware"
	"authchain/pkg/attrs"
	"authchain/pkg/requestcontext"
)

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, st *models.State, attributes ...any) {
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if st != nil {
		attributes = append(attributes, "state_id", st.ID.String())
		if st.Subject != nil && st.Subject.UserID != "" {
			attributes = append(attributes, "user_id", st.Subject.UserID)
		}
	}
	args := append(attributes, "event", string(event), "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	e := audit.Event{
		Category:  event.Category(),
		Timestamp: s.now(),
		StateID:   attrs.ExtractString(attributes, "state_id"),
		UserID:    attrs.ExtractString(attributes, "user_id"),
		ModuleID:  attrs.ExtractString(attributes, "module_id"),
		Action:    string(event),
		Reason:    attrs.ExtractString(attributes, "reason"),
		ClientIP:  requestcontext.ClientIP(ctx),
		RequestID: attrs.ExtractString(attributes, "request_id"),
	}
	if levels, ok := attrs.Extract[[]string](attributes, "levels"); ok {
		e.Levels = levels
	}
	if err := s.auditPublisher.Emit(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "error", err)
	}
}

func (s *Service) countFailure(err error) {
	if s.metrics == nil {
		return
	}
	if kind, ok := models.KindOf(err); ok {
		s.metrics.IncrementFailure(string(kind))
	}
}

func (s *Service) observeStep(moduleID, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveStep(moduleID, outcome, start)
	}
}
