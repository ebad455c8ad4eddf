package models

import (
	"slices"
	"time"

	id "authchain/pkg/domain"
	pstrings "authchain/pkg/platform/strings"
)

// UIServer lists where an external login UI may call from and send users back to.
type UIServer struct {
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	RedirectURIs   []string `json:"redirect_uris,omitempty"`
}

// AllowsOrigin reports whether origin may submit steps. An empty allow list permits any origin.
func (u UIServer) AllowsOrigin(origin string) bool {
	if len(u.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(u.AllowedOrigins, origin)
}

// AllowsRedirect reports whether uri is a registered completion target. The
// match is exact and an empty list permits nothing.
func (u UIServer) AllowsRedirect(uri string) bool {
	return uri != "" && slices.Contains(u.RedirectURIs, uri)
}

// Client describes the user agent that started the chain.
type Client struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Mobile    bool   `json:"mobile,omitempty"`
}

// State is one in-flight authentication attempt.
type State struct {
	ID      id.StateID `json:"id"`
	Version int64      `json:"version"`

	Request    ProtocolRequest `json:"request"`
	Subject    *Subject        `json:"subject,omitempty"`
	Results    []ModuleResult  `json:"results,omitempty"`
	Incomplete *ModuleResult   `json:"incomplete,omitempty"`

	RequestedLevels []string `json:"requested_levels"`

	Prompt      bool     `json:"prompt,omitempty"`
	Passive     bool     `json:"passive,omitempty"`
	AppID       string   `json:"app_id,omitempty"`
	UIServer    UIServer `json:"ui_server"`
	OnFinishURL string   `json:"on_finish_url,omitempty"`
	OnCancelURL string   `json:"on_cancel_url,omitempty"`
	RetryURL    string   `json:"retry_url,omitempty"`
	Client      Client   `json:"client"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ApprovedLevels returns the levels of accepted results in first-reached order.
func (s *State) ApprovedLevels() []string {
	levels := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		if r.Completed && r.Level != "" && !slices.Contains(levels, r.Level) {
			levels = append(levels, r.Level)
		}
	}
	return levels
}

// IsLevelApproved reports whether level has been reached.
func (s *State) IsLevelApproved(level string) bool {
	return slices.Contains(s.ApprovedLevels(), level)
}

// IsLevelRequested reports whether the initiating protocol asked for level.
func (s *State) IsLevelRequested(level string) bool {
	return slices.Contains(s.RequestedLevels, level)
}

// IsComplete reports whether approved levels equal requested levels.
func (s *State) IsComplete() bool {
	return pstrings.SameSet(s.ApprovedLevels(), s.RequestedLevels)
}

// MissingLevels returns requested levels not yet approved.
func (s *State) MissingLevels() []string {
	var missing []string
	for _, l := range s.RequestedLevels {
		if !s.IsLevelApproved(l) {
			missing = append(missing, l)
		}
	}
	return missing
}

// IsExpired reports whether the idle TTL has passed.
func (s *State) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy. Modules receive clones so they cannot mutate
// the persisted state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Subject = s.Subject.Clone()
	c.Incomplete = s.Incomplete.Clone()
	c.RequestedLevels = slices.Clone(s.RequestedLevels)
	c.UIServer.AllowedOrigins = slices.Clone(s.UIServer.AllowedOrigins)
	c.UIServer.RedirectURIs = slices.Clone(s.UIServer.RedirectURIs)
	if s.Results != nil {
		c.Results = make([]ModuleResult, len(s.Results))
		for i := range s.Results {
			c.Results[i] = *s.Results[i].Clone()
		}
	}
	if s.Request.OAuth != nil {
		o := *s.Request.OAuth
		o.Scopes = slices.Clone(o.Scopes)
		o.ACRValues = slices.Clone(o.ACRValues)
		c.Request.OAuth = &o
	}
	if s.Request.SAML != nil {
		sr := *s.Request.SAML
		sr.RequestedAuthnContext = slices.Clone(sr.RequestedAuthnContext)
		c.Request.SAML = &sr
	}
	return &c
}

// Accept records an accepted result: appends it, merges the subject and
// clears a matching incomplete result. On SubjectConflict the state is left
// untouched.
func (s *State) Accept(result *ModuleResult) error {
	merged, err := s.Subject.Merge(result.Subject)
	if err != nil {
		return err
	}
	accepted := *result.Clone()
	accepted.CallbackID = ""
	accepted.Response = nil
	s.Subject = merged
	s.Results = append(s.Results, accepted)
	if s.Incomplete != nil && s.Incomplete.ModuleID == result.ModuleID {
		s.Incomplete = nil
	}
	return nil
}

// Suspend stores result as the single pending step, replacing any prior one.
func (s *State) Suspend(result *ModuleResult) {
	s.Incomplete = result.Clone()
}
