package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"authchain/internal/audit"
	"authchain/internal/chain/authtype"
	"authchain/internal/chain/models"
	"authchain/internal/chain/store/state"
	"authchain/internal/chain/token"
	dErrors "authchain/pkg/domain-errors"
)

// Callback outcomes for metrics.
const (
	callbackAccepted = "accepted"
	callbackRejected = "rejected"
)

// ProcessCallback consumes a continuation link. The token must match the
// pending step at commit time, so a link resumes its step at most once.
func (s *Service) ProcessCallback(ctx context.Context, raw string, req *authtype.Request) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "chain.process_callback")
	defer span.End()

	if req == nil {
		req = authtype.NewRequest(nil)
	}
	st, claims, err := s.links.Resolve(ctx, s.states, raw)
	if err != nil {
		recordSpanError(span, err)
		return nil, s.rejectCallback(ctx, st, err)
	}
	span.SetAttributes(
		attribute.String("authchain.state.id", st.ID.String()),
		attribute.String("authchain.module.id", claims.ModuleID),
	)

	module, ok := s.chain.Module(claims.ModuleID)
	if !ok {
		return nil, s.rejectCallback(ctx, st, models.NewChainError(models.KindTokenInvalid, "the link is invalid", nil))
	}
	processor, ok := module.AuthType.(authtype.CallbackProcessor)
	if !ok {
		return nil, s.rejectCallback(ctx, st, models.NewChainError(models.KindTokenInvalid, "the link is invalid", nil))
	}

	result, err := s.dispatchCallback(ctx, st, module, processor, req, claims)
	if err != nil {
		recordSpanError(span, err)
		if models.IsCallbackError(err) || models.IsIntegrityError(err) {
			return nil, s.rejectCallback(ctx, st, err)
		}
		return nil, err
	}

	switch {
	case result.IsAccepted():
		saved, err := s.consume(ctx, st, claims, result, func(cur *models.State) error {
			return cur.Accept(result)
		})
		if err != nil {
			return nil, err
		}
		if saved.IsComplete() {
			return s.complete(ctx, saved)
		}
		return &Outcome{StateID: saved.ID, Response: models.RedirectTo(s.loginURLFor(saved.ID))}, nil
	case result.IsSuspended():
		saved, err := s.consume(ctx, st, claims, result, func(cur *models.State) error {
			cur.Suspend(result)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Outcome{StateID: saved.ID, Response: models.RedirectTo(s.loginURLFor(saved.ID))}, nil
	}
	s.logRejected(ctx, st, module, result)
	return &Outcome{StateID: st.ID, Response: responseOrPrompt(result.Response, module)}, nil
}

func (s *Service) dispatchCallback(ctx context.Context, st *models.State, module *authtype.Module,
	processor authtype.CallbackProcessor, req *authtype.Request, claims *token.Claims,
) (*models.ModuleResult, error) {
	ctx, span := s.tracer.Start(ctx, "chain.dispatch_callback", trace.WithAttributes(
		attribute.String("authchain.module.id", module.ID),
		attribute.String("authchain.module.type", module.Type),
	))
	defer span.End()

	result, err := processor.ProcessCallback(ctx, req, st.Clone(), module, claims)
	if err != nil {
		recordSpanError(span, err)
		var ce *models.ChainError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "callback processing failed")
	}
	if result == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "callback processing returned no result")
	}
	return result, nil
}

// consume commits a callback result after re-checking, under the store
// lock, that the pending step still waits for this token.
func (s *Service) consume(ctx context.Context, st *models.State, claims *token.Claims,
	result *models.ModuleResult, mutate func(*models.State) error,
) (*models.State, error) {
	saved, err := s.commitVersion(ctx, st, state.AnyVersion, func(cur *models.State) error {
		if !token.WaitsFor(cur, claims) {
			return models.NewChainError(models.KindStateAlreadyConsumed, "the link has already been used", nil).
				WithRetryURL(cur.RetryURL)
		}
		return mutate(cur)
	})
	if err != nil {
		if errors.Is(err, models.ErrSubjectConflict) {
			return nil, s.subjectConflict(ctx, st, result, err)
		}
		return nil, s.rejectCallback(ctx, st, err)
	}
	s.logAudit(ctx, audit.EventCallbackConsumed, saved, "module_id", claims.ModuleID)
	if s.metrics != nil {
		s.metrics.IncrementCallback(callbackAccepted)
	}
	return saved, nil
}

func (s *Service) rejectCallback(ctx context.Context, st *models.State, err error) error {
	reason := err.Error()
	if kind, ok := models.KindOf(err); ok {
		reason = string(kind)
	}
	s.logAudit(ctx, audit.EventCallbackRejected, st, "reason", reason)
	if s.metrics != nil {
		s.metrics.IncrementCallback(callbackRejected)
	}
	s.countFailure(err)
	return err
}
