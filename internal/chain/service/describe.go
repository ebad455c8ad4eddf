package service

import (
	"context"

	"authchain/internal/chain/authtype"
	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/email"
)

// ModuleView names a module without exposing its configuration.
type ModuleView struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Level string `json:"level"`
}

// StateView is what a login UI may learn about an in-flight attempt.
type StateView struct {
	StateID         id.StateID  `json:"state_id"`
	AppID           string      `json:"app_id,omitempty"`
	NextModule      *ModuleView `json:"next_module,omitempty"`
	Pending         bool        `json:"pending"`
	PendingState    string      `json:"pending_state,omitempty"`
	ApprovedLevels  []string    `json:"approved_levels"`
	RequestedLevels []string    `json:"requested_levels"`
	MissingLevels   []string    `json:"missing_levels"`
	Email           string      `json:"email,omitempty"`
	Prompt          bool        `json:"prompt"`
	Passive         bool        `json:"passive"`
	Unsatisfiable   bool        `json:"unsatisfiable"`
}

// Describe reports the progress of a state without dispatching anything.
func (s *Service) Describe(ctx context.Context, stateID id.StateID) (*StateView, error) {
	st, err := s.load(ctx, stateID)
	if err != nil {
		return nil, err
	}
	view := &StateView{
		StateID:         st.ID,
		AppID:           st.AppID,
		Pending:         st.Incomplete != nil,
		PendingState:    st.Incomplete.StateValue(models.ModuleStateKey),
		ApprovedLevels:  st.ApprovedLevels(),
		RequestedLevels: st.RequestedLevels,
		MissingLevels:   st.MissingLevels(),
		Prompt:          st.Prompt,
		Passive:         st.Passive,
	}
	subj := st.Subject
	if subj == nil && st.Incomplete != nil {
		subj = st.Incomplete.Subject
	}
	if subj != nil && subj.Email != "" {
		view.Email = email.MaskAddress(subj.Email)
	}
	if st.IsComplete() {
		return view, nil
	}
	module, err := s.selectModule(st)
	if err != nil {
		view.Unsatisfiable = true
		return view, nil
	}
	view.NextModule = viewOf(module)
	return view, nil
}

func viewOf(m *authtype.Module) *ModuleView {
	return &ModuleView{ID: m.ID, Type: m.Type, Level: m.Level}
}
