// Package domain holds typed identifiers shared across packages.
//
// Typed IDs keep state ids and user ids from being swapped at call sites; the
// parse functions are the trust boundary for ids arriving over HTTP.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "authchain/pkg/domain-errors"
)

type (
	StateID uuid.UUID
	UserID  uuid.UUID
)

func NewStateID() StateID { return StateID(uuid.New()) }
func NewUserID() UserID   { return UserID(uuid.New()) }

func (id StateID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string  { return uuid.UUID(id).String() }

func (id StateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

// ParseStateID parses an externally supplied state identifier.
func ParseStateID(s string) (StateID, error) {
	u, err := parseUUID(s, "state id")
	return StateID(u), err
}

// ParseUserID parses an externally supplied user identifier.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return u, nil
}

func (id StateID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *StateID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = StateID(u)
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	var u uuid.UUID
	if err := u.UnmarshalText(b); err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}
