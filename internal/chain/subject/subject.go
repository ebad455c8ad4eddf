// Package subject resolves the stored user behind a partial chain identity
// and builds the Subject a module asserts for it.
package subject

import (
	"context"
	"errors"
	"fmt"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
)

// UserRepository is the user lookup used by modules.
type UserRepository interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID id.UserID, hash string) error
}

// ErrUnknownUser is returned when no stored user matches.
var ErrUnknownUser = errors.New("unknown user")

// Store resolves users and builds subjects for them.
type Store struct {
	users UserRepository
}

func NewStore(users UserRepository) *Store {
	return &Store{users: users}
}

// Users exposes the repository for modules that update credentials.
func (s *Store) Users() UserRepository {
	return s.users
}

// Resolve finds the user for subj, falling back to identifier (email or
// username typed by the user) when subj carries nothing identifying.
// Returns ErrUnknownUser when nothing matches.
func (s *Store) Resolve(ctx context.Context, subj *models.Subject, identifier string) (*models.User, error) {
	var (
		u   *models.User
		err error
	)
	switch {
	case subj != nil && subj.UserID != "":
		userID, perr := id.ParseUserID(subj.UserID)
		if perr != nil {
			return nil, ErrUnknownUser
		}
		u, err = s.users.FindByID(ctx, userID)
	case subj != nil && subj.Email != "":
		u, err = s.users.FindByIdentifier(ctx, subj.Email)
	case subj != nil && subj.Username != "":
		u, err = s.users.FindByIdentifier(ctx, subj.Username)
	default:
		u, err = s.users.FindByIdentifier(ctx, identifier)
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	return u, nil
}

// With builds the subject a module asserts for u.
func (s *Store) With(u *models.User, authType, moduleID string) *models.Subject {
	subj := u.Subject()
	subj.TypeIdentifier = authType
	subj.VouchingModule = moduleID
	return subj
}
