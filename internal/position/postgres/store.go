// Package postgres implements position.Store using PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/DigoevR/4z-ape/internal/position"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	pair                   TEXT PRIMARY KEY,
	token0                 TEXT NOT NULL,
	token1                 TEXT NOT NULL,
	reserve_enter          NUMERIC(78, 0) NOT NULL DEFAULT 0,
	spent                  NUMERIC(78, 0) NOT NULL DEFAULT 0,
	got_token              NUMERIC(78, 0) NOT NULL DEFAULT 0,
	token_remaining        NUMERIC(78, 0) NOT NULL DEFAULT 0,
	sold_for               NUMERIC(78, 0),
	profit_loss            NUMERIC(78, 0) NOT NULL DEFAULT 0,
	profit_loss_checked_at TIMESTAMPTZ NOT NULL,
	approved               BOOLEAN NOT NULL DEFAULT FALSE,
	opened_at              TIMESTAMPTZ,
	closed_at              TIMESTAMPTZ,
	close_reason           TEXT,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS positions_open_idx
	ON positions (profit_loss_checked_at) WHERE closed_at IS NULL;
`

// Store implements position.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL and ensures the positions table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool without applying the schema.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const selectCols = `pair, token0, token1, reserve_enter, spent, got_token,
	token_remaining, sold_for, profit_loss, profit_loss_checked_at,
	approved, opened_at, closed_at, close_reason`

// Create inserts a new position. Returns ErrDuplicatePair on conflict.
func (s *Store) Create(ctx context.Context, p *position.Position) error {
	const query = `
		INSERT INTO positions (
			pair, token0, token1, reserve_enter, spent, got_token,
			token_remaining, sold_for, profit_loss, profit_loss_checked_at,
			approved, opened_at, closed_at, close_reason, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		hex(p.Pair), hex(p.Token0), hex(p.Token1),
		p.ReserveEnter, p.Spent, p.GotToken,
		p.TokenRemaining, nullDec(p.SoldFor), p.ProfitLoss, p.ProfitLossCheckedAt,
		p.Approved, p.OpenedAt, p.ClosedAt, nullReason(p.CloseReason),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return position.ErrDuplicatePair
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// FindByPair returns the position for a pair, or ErrNotFound.
func (s *Store) FindByPair(ctx context.Context, pair common.Address) (*position.Position, error) {
	query := `SELECT ` + selectCols + ` FROM positions WHERE pair = $1`

	p, err := scanPosition(s.pool.QueryRow(ctx, query, hex(pair)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, position.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select position: %w", err)
	}
	return p, nil
}

// FindAll returns every position matching the filter.
func (s *Store) FindAll(ctx context.Context, f position.Filter) ([]*position.Position, error) {
	var (
		conds []string
		args  []any
	)
	if f.Opened {
		conds = append(conds, "opened_at IS NOT NULL")
	}
	if f.NotClosed {
		conds = append(conds, "closed_at IS NULL")
	}
	if f.TokensRemaining {
		conds = append(conds, "token_remaining > 0")
	}
	if f.CheckedBefore != nil {
		args = append(args, *f.CheckedBefore)
		conds = append(conds, fmt.Sprintf("profit_loss_checked_at < $%d", len(args)))
	}

	query := `SELECT ` + selectCols + ` FROM positions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select positions: %w", err)
	}
	defer rows.Close()

	var result []*position.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Update overwrites the stored record for p.Pair.
func (s *Store) Update(ctx context.Context, p *position.Position) error {
	const query = `
		UPDATE positions SET
			reserve_enter = $2, spent = $3, got_token = $4,
			token_remaining = $5, sold_for = $6, profit_loss = $7,
			profit_loss_checked_at = $8, approved = $9,
			opened_at = $10, closed_at = $11, close_reason = $12,
			updated_at = NOW()
		WHERE pair = $1`

	tag, err := s.pool.Exec(ctx, query,
		hex(p.Pair),
		p.ReserveEnter, p.Spent, p.GotToken,
		p.TokenRemaining, nullDec(p.SoldFor), p.ProfitLoss,
		p.ProfitLossCheckedAt, p.Approved,
		p.OpenedAt, p.ClosedAt, nullReason(p.CloseReason),
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return position.ErrNotFound
	}
	return nil
}

func scanPosition(row pgx.Row) (*position.Position, error) {
	var (
		p                    position.Position
		pair, token0, token1 string
		soldFor              *decimal.Decimal
		closeReason          *string
	)
	err := row.Scan(
		&pair, &token0, &token1,
		&p.ReserveEnter, &p.Spent, &p.GotToken,
		&p.TokenRemaining, &soldFor, &p.ProfitLoss, &p.ProfitLossCheckedAt,
		&p.Approved, &p.OpenedAt, &p.ClosedAt, &closeReason,
	)
	if err != nil {
		return nil, err
	}
	p.Pair = common.HexToAddress(pair)
	p.Token0 = common.HexToAddress(token0)
	p.Token1 = common.HexToAddress(token1)
	if soldFor != nil {
		p.SoldFor = decimal.NullDecimal{Decimal: *soldFor, Valid: true}
	}
	if closeReason != nil {
		p.CloseReason = position.CloseReason(*closeReason)
	}
	return &p, nil
}

func hex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func nullDec(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	return &d.Decimal
}

func nullReason(r position.CloseReason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}
