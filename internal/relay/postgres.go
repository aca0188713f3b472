package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS slidesync_polls (
	poll_id     TEXT PRIMARY KEY,
	options     TEXT[] NOT NULL DEFAULT '{}',
	max_choices INTEGER NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS slidesync_votes (
	poll_id    TEXT NOT NULL REFERENCES slidesync_polls (poll_id) ON DELETE CASCADE,
	visitor_id TEXT NOT NULL,
	choice     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (poll_id, visitor_id, choice)
);

CREATE TABLE IF NOT EXISTS slidesync_sessions (
	token      TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	expires_at TIMESTAMPTZ
);
`

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore keeps polls and presenter sessions in PostgreSQL so they
// survive relay restarts and can be shared by several relay instances.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and creates the
// tables if they are missing.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Get(ctx context.Context, pollID string) (Poll, error) {
	p := Poll{ID: pollID, Votes: make(map[string]int)}
	err := s.db.QueryRowContext(ctx,
		`SELECT options, max_choices FROM slidesync_polls WHERE poll_id = $1`,
		pollID,
	).Scan(pq.Array(&p.Options), &p.MaxChoices)
	if errors.Is(err, sql.ErrNoRows) {
		return Poll{}, ErrPollNotInitialized
	}
	if err != nil {
		return Poll{}, fmt.Errorf("get poll %s: %w", pollID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT choice, count(*) FROM slidesync_votes WHERE poll_id = $1 GROUP BY choice`,
		pollID,
	)
	if err != nil {
		return Poll{}, fmt.Errorf("tally poll %s: %w", pollID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var choice string
		var n int
		if err := rows.Scan(&choice, &n); err != nil {
			return Poll{}, fmt.Errorf("scan tally: %w", err)
		}
		p.Votes[choice] = n
	}
	return p, rows.Err()
}

func (s *PostgresStore) Create(ctx context.Context, poll Poll) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slidesync_polls (poll_id, options, max_choices) VALUES ($1, $2, $3)
		 ON CONFLICT (poll_id) DO NOTHING`,
		poll.ID, pq.Array(poll.Options), max(poll.MaxChoices, 1),
	)
	if err != nil {
		return fmt.Errorf("create poll %s: %w", poll.ID, err)
	}
	return nil
}

func (s *PostgresStore) Choices(ctx context.Context, pollID, visitorID string) ([]string, error) {
	return choices(ctx, s.db, pollID, visitorID)
}

func (s *PostgresStore) Vote(ctx context.Context, pollID, visitorID, choice string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := lockPoll(ctx, tx, pollID, choice)
		if err != nil {
			return err
		}
		held, err := choices(ctx, tx, pollID, visitorID)
		if err != nil {
			return err
		}
		if len(held) >= p.MaxChoices {
			return ErrMaxChoices
		}
		return insertVote(ctx, tx, pollID, visitorID, choice)
	})
}

func (s *PostgresStore) Unvote(ctx context.Context, pollID, visitorID, choice string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockPoll(ctx, tx, pollID, choice); err != nil {
			return err
		}
		return deleteVote(ctx, tx, pollID, visitorID, choice)
	})
}

func (s *PostgresStore) Switch(ctx context.Context, pollID, visitorID, from, to string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockPoll(ctx, tx, pollID, from, to); err != nil {
			return err
		}
		if err := deleteVote(ctx, tx, pollID, visitorID, from); err != nil {
			return err
		}
		// A failed insert rolls back the delete, restoring the old vote.
		return insertVote(ctx, tx, pollID, visitorID, to)
	})
}

// Valid reports whether token names a valid presenter session. It makes
// PostgresStore usable as a SessionStore.
func (s *PostgresStore) Valid(ctx context.Context, token string) bool {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM slidesync_sessions
		 WHERE token = $1 AND (expires_at IS NULL OR expires_at > now())`,
		token,
	).Scan(&status)
	return err == nil && status == "valid"
}

// AddSession stores a valid presenter session token.
func (s *PostgresStore) AddSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slidesync_sessions (token, status) VALUES ($1, 'valid')
		 ON CONFLICT (token) DO UPDATE SET status = 'valid'`,
		token,
	)
	if err != nil {
		return fmt.Errorf("add session: %w", err)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func choices(ctx context.Context, q querier, pollID, visitorID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT choice FROM slidesync_votes WHERE poll_id = $1 AND visitor_id = $2 ORDER BY created_at`,
		pollID, visitorID,
	)
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// lockPoll reads the poll row FOR UPDATE, serializing votes on the same
// poll, and validates every choice against its options.
func lockPoll(ctx context.Context, tx *sql.Tx, pollID string, picked ...string) (Poll, error) {
	p := Poll{ID: pollID}
	err := tx.QueryRowContext(ctx,
		`SELECT options, max_choices FROM slidesync_polls WHERE poll_id = $1 FOR UPDATE`,
		pollID,
	).Scan(pq.Array(&p.Options), &p.MaxChoices)
	if errors.Is(err, sql.ErrNoRows) {
		return Poll{}, ErrPollNotInitialized
	}
	if err != nil {
		return Poll{}, fmt.Errorf("lock poll %s: %w", pollID, err)
	}
	for _, c := range picked {
		if !p.allows(c) {
			return Poll{}, ErrInvalidChoice
		}
	}
	return p, nil
}

func insertVote(ctx context.Context, tx *sql.Tx, pollID, visitorID, choice string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO slidesync_votes (poll_id, visitor_id, choice) VALUES ($1, $2, $3)`,
		pollID, visitorID, choice,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func deleteVote(ctx context.Context, tx *sql.Tx, pollID, visitorID, choice string) error {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM slidesync_votes WHERE poll_id = $1 AND visitor_id = $2 AND choice = $3`,
		pollID, visitorID, choice,
	)
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if n == 0 {
		return ErrVoteNotFound
	}
	return nil
}
