package service

import (
	"context"
	"errors"

	"authchain/internal/audit"
	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

// Cancel drops the state and redirects to its cancel URL. Cancelling a
// state that is already gone redirects to the default cancel URL.
func (s *Service) Cancel(ctx context.Context, stateID id.StateID) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "chain.cancel")
	defer span.End()

	st, err := s.states.Load(ctx, stateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &Outcome{StateID: stateID, Response: models.RedirectTo(s.defaultCancelURL)}, nil
		}
		recordSpanError(span, err)
		return nil, s.translateStoreErr(err, nil)
	}
	if err := s.states.Delete(ctx, stateID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		recordSpanError(span, err)
		return nil, s.translateStoreErr(err, st)
	}
	s.logAudit(ctx, audit.EventChainCancelled, st, "levels", st.ApprovedLevels())

	target := st.OnCancelURL
	if target == "" {
		target = s.defaultCancelURL
	}
	return &Outcome{StateID: stateID, Response: models.RedirectTo(target)}, nil
}
