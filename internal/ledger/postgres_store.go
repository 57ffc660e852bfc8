package ledger

import (
	"context"
	"database/sql"
	"errors"
	"math/big"

	_ "github.com/lib/pq"
)

// PostgresStore is the optional persistent Store. spec.md §6 names
// persistence as outside the core contract; this exists purely as a
// collaborator for operators who want account state to survive a restart.
// It enforces the same invariants as MemoryStore via a row-level
// SELECT ... FOR UPDATE inside a transaction rather than an in-process
// sharded mutex.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-open *sql.DB. Migrate must be called
// once before use.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger's single table if it does not already exist.
// internal/server calls it at startup. `xdr migrate` runs goose against a
// ./migrations directory; the repository ships no migration files for it.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS xdr_accounts (
			agent_id     TEXT PRIMARY KEY,
			balance      NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			total_spend  NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (total_spend >= 0),
			payment_count BIGINT NOT NULL DEFAULT 0 CHECK (payment_count >= 0)
		)
	`)
	return err
}

func (s *PostgresStore) Ensure(ctx context.Context, agentID string) (*Account, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO xdr_accounts (agent_id) VALUES ($1)
		ON CONFLICT (agent_id) DO NOTHING
	`, agentID)
	if err != nil {
		return nil, err
	}
	return s.Status(ctx, agentID)
}

func (s *PostgresStore) Fund(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := ensureRowLocked(ctx, tx, agentID); err != nil {
		return nil, err
	}

	amount := toDecimalString(amountCents)
	if _, err := tx.ExecContext(ctx, `
		UPDATE xdr_accounts SET balance = balance + $1 WHERE agent_id = $2
	`, amount, agentID); err != nil {
		return nil, err
	}

	acct, err := readRow(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}
	return acct, tx.Commit()
}

func (s *PostgresStore) TryDebit(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := ensureRowLocked(ctx, tx, agentID); err != nil {
		return nil, err
	}

	current, err := readRow(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}

	if current.BalanceCents.Cmp(amountCents) < 0 {
		return nil, &InsufficientFundsError{
			Balance:  current.BalanceCents,
			Required: amountCents,
		}
	}

	amount := toDecimalString(amountCents)
	if _, err := tx.ExecContext(ctx, `
		UPDATE xdr_accounts
		SET balance = balance - $1, total_spend = total_spend + $1, payment_count = payment_count + 1
		WHERE agent_id = $2
	`, amount, agentID); err != nil {
		return nil, err
	}

	acct, err := readRow(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}
	return acct, tx.Commit()
}

func (s *PostgresStore) Status(ctx context.Context, agentID string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance, total_spend, payment_count FROM xdr_accounts WHERE agent_id = $1
	`, agentID)
	acct, err := scanAccount(agentID, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return acct, err
}

func (s *PostgresStore) SetBudget(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := ensureRowLocked(ctx, tx, agentID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE xdr_accounts SET balance = $1, total_spend = 0, payment_count = 0 WHERE agent_id = $2
	`, toDecimalString(amountCents), agentID); err != nil {
		return nil, err
	}

	acct, err := readRow(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}
	return acct, tx.Commit()
}

// ensureRowLocked inserts the row if missing and takes a row-level lock,
// giving TryDebit/Fund/SetBudget the same linearizability per agent that
// MemoryStore gets from its sharded mutex.
func ensureRowLocked(ctx context.Context, tx *sql.Tx, agentID string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO xdr_accounts (agent_id) VALUES ($1) ON CONFLICT (agent_id) DO NOTHING
	`, agentID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `SELECT 1 FROM xdr_accounts WHERE agent_id = $1 FOR UPDATE`, agentID)
	return err
}

func readRow(ctx context.Context, tx *sql.Tx, agentID string) (*Account, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT balance, total_spend, payment_count FROM xdr_accounts WHERE agent_id = $1
	`, agentID)
	return scanAccount(agentID, row)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(agentID string, row scanner) (*Account, error) {
	var balance, totalSpend string
	var paymentCount uint64
	if err := row.Scan(&balance, &totalSpend, &paymentCount); err != nil {
		return nil, err
	}
	balanceCents, _ := parseDecimalString(balance)
	spendCents, _ := parseDecimalString(totalSpend)
	return &Account{
		AgentID:         agentID,
		BalanceCents:    balanceCents,
		TotalSpendCents: spendCents,
		PaymentCount:    paymentCount,
	}, nil
}

func toDecimalString(cents *big.Int) string {
	whole := new(big.Int).Quo(cents, big.NewInt(100))
	frac := new(big.Int).Mod(cents, big.NewInt(100))
	return whole.String() + "." + padTwo(frac.String())
}

func padTwo(s string) string {
	for len(s) < 2 {
		s = "0" + s
	}
	return s
}

func parseDecimalString(s string) (*big.Int, bool) {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	whole := s
	frac := "00"
	for i, c := range s {
		if c == '.' {
			whole = s[:i]
			frac = (s[i+1:] + "00")[:2]
			break
		}
	}
	combined := whole + frac
	n, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, false
	}
	if neg {
		n.Neg(n)
	}
	return n, true
}
