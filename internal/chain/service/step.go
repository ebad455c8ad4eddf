package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authchain/internal/audit"
	"authchain/internal/chain/authtype"
	chainmetrics "authchain/internal/chain/metrics"
	"authchain/internal/chain/models"
	"authchain/internal/chain/store/state"
	id "authchain/pkg/domain"
	dErrors "authchain/pkg/domain-errors"
	"authchain/pkg/platform/sentinel"
)

// ProcessStep dispatches the next module of stateID with the caller input
// and advances the chain as far as accepted results allow.
func (s *Service) ProcessStep(ctx context.Context, stateID id.StateID, req *authtype.Request) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "chain.process_step",
		trace.WithAttributes(attribute.String("authchain.state.id", stateID.String())))
	defer span.End()

	st, err := s.load(ctx, stateID)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if req == nil {
		req = authtype.NewRequest(nil)
	}
	if req.Origin != "" && !st.UIServer.AllowsOrigin(req.Origin) {
		return nil, dErrors.New(dErrors.CodeForbidden, "origin is not allowed for this login attempt")
	}
	out, err := s.advance(ctx, st, req)
	if err != nil {
		recordSpanError(span, err)
		s.countFailure(err)
	}
	return out, err
}

// advance runs the dispatch loop: accepted results continue with an
// input-free request, suspended and rejected results stop it.
func (s *Service) advance(ctx context.Context, st *models.State, req *authtype.Request) (*Outcome, error) {
	// Each accepted step approves a new level, so the loop is bounded by
	// the module count; the extra pass is the completion check.
	for range len(s.chain.Modules()) + 1 {
		if st.IsComplete() {
			return s.complete(ctx, st)
		}
		module, err := s.selectModule(st)
		if err != nil {
			return s.fail(ctx, st, err)
		}

		result, err := s.dispatch(ctx, st, module, req)
		if err != nil {
			return nil, err
		}

		switch {
		case result.IsAccepted():
			st, err = s.accept(ctx, st, result)
			if err != nil {
				return nil, err
			}
			if module.Type == authtype.TypePasswordForgotten {
				s.logAudit(ctx, audit.EventPasswordReset, st, "module_id", module.ID)
			}
			if st.IsComplete() {
				return s.complete(ctx, st)
			}
			if result.Response != nil {
				return &Outcome{StateID: st.ID, Response: result.Response}, nil
			}
			req = req.WithoutInput()
		case result.IsSuspended():
			st, err = s.suspend(ctx, st, result)
			if err != nil {
				return nil, err
			}
			return &Outcome{StateID: st.ID, Response: responseOrPrompt(result.Response, module)}, nil
		default:
			s.logRejected(ctx, st, module, result)
			return &Outcome{StateID: st.ID, Response: responseOrPrompt(result.Response, module)}, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeInternal, "chain did not settle")
}

// selectModule returns the module to dispatch. A pending module is always
// resumed; otherwise the first active, enabled module that provides a
// requested and not yet approved level.
func (s *Service) selectModule(st *models.State) (*authtype.Module, error) {
	if st.Incomplete != nil {
		if m, ok := s.chain.Module(st.Incomplete.ModuleID); ok && m.Active {
			return m, nil
		}
	}
	passiveExcluded := false
	for _, m := range s.chain.Modules() {
		if !m.Active || !st.IsLevelRequested(m.Level) || st.IsLevelApproved(m.Level) {
			continue
		}
		if !m.AuthType.IsEnabled(st.Subject) {
			continue
		}
		if st.Passive && !m.AuthType.IsPassive() {
			passiveExcluded = true
			continue
		}
		return m, nil
	}
	if passiveExcluded {
		return nil, models.NewChainError(models.KindPassiveAuthRequired, "interaction is required", nil)
	}
	return nil, models.NewChainError(models.KindChainUnsatisfiable,
		fmt.Sprintf("no module can provide levels %v", st.MissingLevels()), nil)
}

func (s *Service) dispatch(ctx context.Context, st *models.State, module *authtype.Module, req *authtype.Request) (*models.ModuleResult, error) {
	ctx, span := s.tracer.Start(ctx, "chain.dispatch", trace.WithAttributes(
		attribute.String("authchain.module.id", module.ID),
		attribute.String("authchain.module.type", module.Type),
	))
	defer span.End()

	start := time.Now()
	result, err := module.AuthType.Process(ctx, req, st.Clone(), module)
	if err != nil {
		recordSpanError(span, err)
		s.observeStep(module.ID, chainmetrics.OutcomeError, start)
		s.logger.ErrorContext(ctx, "module failed", "module_id", module.ID, "state_id", st.ID.String(), "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "authentication step failed")
	}
	if result == nil {
		s.observeStep(module.ID, chainmetrics.OutcomeError, start)
		return nil, dErrors.New(dErrors.CodeInternal, "authentication step returned no result")
	}
	s.observeStep(module.ID, outcomeOf(result), start)
	return result, nil
}

func (s *Service) accept(ctx context.Context, st *models.State, result *models.ModuleResult) (*models.State, error) {
	saved, err := s.commit(ctx, st, func(cur *models.State) error {
		return cur.Accept(result)
	})
	if err != nil {
		if errors.Is(err, models.ErrSubjectConflict) {
			return nil, s.subjectConflict(ctx, st, result, err)
		}
		return nil, err
	}
	s.logAudit(ctx, audit.EventStepAccepted, saved,
		"module_id", result.ModuleID,
		"levels", saved.ApprovedLevels(),
	)
	return saved, nil
}

func (s *Service) suspend(ctx context.Context, st *models.State, result *models.ModuleResult) (*models.State, error) {
	saved, err := s.commit(ctx, st, func(cur *models.State) error {
		cur.Suspend(result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventStepSuspended, saved,
		"module_id", result.ModuleID,
		"reason", result.StateValue(models.ModuleStateKey),
	)
	return saved, nil
}

// subjectConflict ends the attempt: the state is dropped and the caller
// must restart through the retry URL.
func (s *Service) subjectConflict(ctx context.Context, st *models.State, result *models.ModuleResult, cause error) error {
	if err := s.states.Delete(ctx, st.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to drop conflicting state", "state_id", st.ID.String(), "error", err)
	}
	s.logAudit(ctx, audit.EventSubjectConflict, st, "module_id", result.ModuleID, "reason", cause.Error())
	var ce *models.ChainError
	if errors.As(cause, &ce) {
		return ce.WithRetryURL(st.RetryURL)
	}
	return models.NewChainError(models.KindSubjectConflict, "", cause).WithRetryURL(st.RetryURL)
}

func (s *Service) logRejected(ctx context.Context, st *models.State, module *authtype.Module, result *models.ModuleResult) {
	status := http.StatusOK
	if result.Response != nil {
		status = result.Response.Status
	}
	switch {
	case status == http.StatusTooManyRequests:
		s.logAudit(ctx, audit.EventAttemptsExceeded, st, "module_id", module.ID)
	case status >= http.StatusBadRequest:
		s.logAudit(ctx, audit.EventStepRejected, st, "module_id", module.ID, "status", status)
	default:
		s.logAudit(ctx, audit.EventStepPrompted, st, "module_id", module.ID)
	}
}

// commit applies mutate under the store lock, refreshing the idle expiry.
// A moved version becomes StateConflict.
func (s *Service) commit(ctx context.Context, st *models.State, mutate state.Mutator) (*models.State, error) {
	return s.commitVersion(ctx, st, st.Version, mutate)
}

func (s *Service) commitVersion(ctx context.Context, st *models.State, version int64, mutate state.Mutator) (*models.State, error) {
	saved, err := s.states.Execute(ctx, st.ID, version, func(cur *models.State) error {
		if err := mutate(cur); err != nil {
			return err
		}
		now := s.now()
		cur.UpdatedAt = now
		cur.ExpiresAt = now.Add(s.stateTTL)
		return nil
	})
	if err != nil {
		return nil, s.translateStoreErr(err, st)
	}
	return saved, nil
}

// complete deletes the state exactly once and hands it to its protocol.
func (s *Service) complete(ctx context.Context, st *models.State) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "chain.complete", trace.WithAttributes(
		attribute.String("authchain.protocol", string(st.Request.Kind)),
	))
	defer span.End()

	if err := s.states.DeleteVersion(ctx, st.ID, st.Version); err != nil {
		err = s.translateStoreErr(err, st)
		recordSpanError(span, err)
		return nil, err
	}
	resp, err := s.completer.Complete(ctx, st)
	if err != nil {
		recordSpanError(span, err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to complete authentication")
	}
	s.logAudit(ctx, audit.EventChainCompleted, st,
		"levels", st.ApprovedLevels(),
		"protocol", string(st.Request.Kind),
	)
	if s.metrics != nil {
		s.metrics.IncrementCompleted(string(st.Request.Kind))
	}
	return &Outcome{StateID: st.ID, Response: resp, Completed: true}, nil
}

// fail routes an unsatisfiable chain through the protocol's error path. The
// state is kept.
func (s *Service) fail(ctx context.Context, st *models.State, cause error) (*Outcome, error) {
	s.logAudit(ctx, audit.EventChainUnsatisfiable, st, "reason", cause.Error())
	resp, err := s.completer.ReturnError(ctx, st, cause)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to report authentication error")
	}
	var ce *models.ChainError
	if errors.As(cause, &ce) {
		return nil, ce.WithResponse(resp)
	}
	return nil, cause
}

func (s *Service) load(ctx context.Context, stateID id.StateID) (*models.State, error) {
	st, err := s.states.Load(ctx, stateID)
	if err != nil {
		return nil, s.translateStoreErr(err, nil)
	}
	return st, nil
}

func (s *Service) translateStoreErr(err error, st *models.State) error {
	var ce *models.ChainError
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return models.NewChainError(models.KindUnknownState, "the login attempt no longer exists", err)
	case errors.Is(err, sentinel.ErrConflict):
		ce := models.NewChainError(models.KindStateConflict, "the login attempt changed concurrently", err)
		if st != nil {
			ce = ce.WithRetryURL(st.RetryURL)
		}
		return ce
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "state store failure")
}

func responseOrPrompt(resp *models.Response, module *authtype.Module) *models.Response {
	if resp != nil {
		return resp
	}
	return models.JSON(http.StatusOK, map[string]any{"module": module.ID, "type": module.Type})
}

func outcomeOf(result *models.ModuleResult) string {
	switch {
	case result.IsAccepted():
		return chainmetrics.OutcomeAccepted
	case result.IsSuspended():
		return chainmetrics.OutcomeSuspended
	}
	return chainmetrics.OutcomeRejected
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
