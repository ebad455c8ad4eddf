package models

// Subject is the identity accumulated across chain steps. It is identified by
// at least one of UserID, Email or Username.
type Subject struct {
	UserID            string `json:"user_id,omitempty"`
	Email             string `json:"email,omitempty"`
	Username          string `json:"username,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
	// TypeIdentifier is the AuthType that last asserted this subject.
	TypeIdentifier string `json:"type_identifier,omitempty"`
	// VouchingModule is the module id that last asserted this subject.
	VouchingModule string `json:"vouching_module,omitempty"`
}

// IsEmpty reports whether no identifying attribute is known.
func (s *Subject) IsEmpty() bool {
	return s == nil || (s.UserID == "" && s.Email == "" && s.Username == "")
}

// HasEmail reports whether an email address is known.
func (s *Subject) HasEmail() bool {
	return s != nil && s.Email != ""
}

// Identifier returns the most stable identifier available.
func (s *Subject) Identifier() string {
	switch {
	case s == nil:
		return ""
	case s.UserID != "":
		return s.UserID
	case s.Email != "":
		return s.Email
	default:
		return s.Username
	}
}

// Clone returns a copy, nil-safe.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Merge combines the receiver with an incoming assertion and returns a new
// Subject; neither input is modified.
//
// UserID and Email are merge-only: a differing non-empty value is a
// SubjectConflict. Other descriptive attributes keep the first known value.
// TypeIdentifier and VouchingModule follow the latest assertion that sets them.
// Merge is associative, and a nil side acts as the identity.
func (s *Subject) Merge(incoming *Subject) (*Subject, error) {
	if incoming == nil {
		return s.Clone(), nil
	}
	if s == nil {
		return incoming.Clone(), nil
	}

	if conflicts(s.UserID, incoming.UserID) {
		return nil, NewChainError(KindSubjectConflict, "user id differs from the identity asserted earlier in this chain", nil)
	}
	if conflicts(s.Email, incoming.Email) {
		return nil, NewChainError(KindSubjectConflict, "email differs from the identity asserted earlier in this chain", nil)
	}

	merged := *s
	merged.UserID = firstNonEmpty(s.UserID, incoming.UserID)
	merged.Email = firstNonEmpty(s.Email, incoming.Email)
	merged.Username = firstNonEmpty(s.Username, incoming.Username)
	merged.PreferredLanguage = firstNonEmpty(s.PreferredLanguage, incoming.PreferredLanguage)
	merged.TypeIdentifier = firstNonEmpty(incoming.TypeIdentifier, s.TypeIdentifier)
	merged.VouchingModule = firstNonEmpty(incoming.VouchingModule, s.VouchingModule)
	return &merged, nil
}

func conflicts(existing, incoming string) bool {
	return existing != "" && incoming != "" && existing != incoming
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
