package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"authchain/internal/chain/models"
	id "authchain/pkg/domain"
	"authchain/pkg/platform/sentinel"
	txcontext "authchain/pkg/platform/tx"
)

// PostgresStore keeps states as JSONB rows. Execute locks the row with
// SELECT ... FOR UPDATE for the duration of the mutation.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

type PostgresOption func(*PostgresStore)

func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) Create(ctx context.Context, st *models.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO chain_states (id, version, requested_levels, payload, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.ID.String(), st.Version, pq.Array(st.RequestedLevels), payload,
		st.CreatedAt, st.UpdatedAt, expiresAt(st),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("state %s exists: %w", st.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, stateID id.StateID) (*models.State, error) {
	return s.read(ctx, txcontext.ExecutorFrom(ctx, s.db), stateID, false)
}

func (s *PostgresStore) Execute(ctx context.Context, stateID id.StateID, expectedVersion int64, mutate Mutator) (*models.State, error) {
	var saved *models.State
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := s.read(ctx, tx, stateID, true)
		if err != nil {
			return err
		}
		if err := checkVersion(current, expectedVersion); err != nil {
			return err
		}
		next, err := apply(current, mutate)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE chain_states
			SET version = $2, requested_levels = $3, payload = $4, updated_at = $5, expires_at = $6
			WHERE id = $1`,
			stateID.String(), next.Version, pq.Array(next.RequestedLevels), payload,
			next.UpdatedAt, expiresAt(next),
		)
		if err != nil {
			return fmt.Errorf("update state: %w", err)
		}
		saved = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *PostgresStore) DeleteVersion(ctx context.Context, stateID id.StateID, version int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := s.read(ctx, tx, stateID, true)
		if err != nil {
			return err
		}
		if err := checkVersion(current, version); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chain_states WHERE id = $1`, stateID.String()); err != nil {
			return fmt.Errorf("delete state: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Delete(ctx context.Context, stateID id.StateID) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM chain_states WHERE id = $1`, stateID.String())
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

// PurgeExpired removes states past their expiry.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chain_states WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge states: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) read(ctx context.Context, q txcontext.Executor, stateID id.StateID, lock bool) (*models.State, error) {
	query := `SELECT version, payload FROM chain_states WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var (
		version int64
		payload []byte
	)
	err := q.QueryRowContext(ctx, query, stateID.String()).Scan(&version, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound(stateID)
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var st models.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.Version = version
	if expired(&st, s.now()) {
		return nil, errNotFound(stateID)
	}
	return &st, nil
}

// inTx reuses a transaction already bound to ctx, otherwise opens one.
func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(ctx, tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}
	return nil
}

// expiresAt stores a far-future expiry for states without one so the
// NOT NULL column and the purge query stay simple.
func expiresAt(st *models.State) time.Time {
	if st.ExpiresAt.IsZero() {
		return time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return st.ExpiresAt
}
