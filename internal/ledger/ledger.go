// Package ledger implements XDR's per-agent accounting: balances,
// cumulative spend, payment counts, and the atomic check-then-deduct
// operation budget enforcement depends on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/xdr-run/xdr/internal/minter"
	"github.com/xdr-run/xdr/internal/money"
)

// ErrNotFound is returned by Status when an agent has never been referenced.
var ErrNotFound = errors.New("ledger: agent not found")

// InsufficientFundsError is returned by TryDebit when an agent's balance is
// below the requested amount. It carries the observed balance and the
// amount that was required so callers can render a 402 body without a
// second read.
type InsufficientFundsError struct {
	Balance  *big.Int
	Required *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance=%s required=%s",
		money.Format(e.Balance), money.Format(e.Required))
}

// Account is a per-agent ledger record. BalanceCents and TotalSpendCents
// are integer counts of USDC cents; see internal/money for the fixed-point
// rationale.
type Account struct {
	AgentID         string
	BalanceCents    *big.Int
	TotalSpendCents *big.Int
	PaymentCount    uint64
}

func newAccount(agentID string) *Account {
	return &Account{
		AgentID:         agentID,
		BalanceCents:    big.NewInt(0),
		TotalSpendCents: big.NewInt(0),
		PaymentCount:    0,
	}
}

func (a *Account) clone() *Account {
	return &Account{
		AgentID:         a.AgentID,
		BalanceCents:    new(big.Int).Set(a.BalanceCents),
		TotalSpendCents: new(big.Int).Set(a.TotalSpendCents),
		PaymentCount:    a.PaymentCount,
	}
}

// Store is the persistence interface behind a Ledger. MemoryStore is the
// default; PostgresStore is an optional collaborator (spec.md §6: "if
// implementers add optional persistence, it is outside the core
// contract").
type Store interface {
	Ensure(ctx context.Context, agentID string) (*Account, error)
	Fund(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error)
	TryDebit(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error)
	Status(ctx context.Context, agentID string) (*Account, error)
	SetBudget(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error)
}

// DebitReceipt is returned by a successful TryDebit: the post-debit account
// snapshot plus the minted transaction hash for that payment.
type DebitReceipt struct {
	Account *Account
	TxHash  string
}

// Ledger binds a Store to the Minter so that every successful debit carries
// a synthetic transaction hash, the way a real settlement would.
type Ledger struct {
	store   Store
	minter  *minter.Minter
	chainID uint32
}

// New wraps store with tx-hash minting for the given chain id.
func New(store Store, m *minter.Minter, chainID uint32) *Ledger {
	return &Ledger{store: store, minter: m, chainID: chainID}
}

// Ensure returns the account, creating it with a zero balance on first
// reference. Idempotent.
func (l *Ledger) Ensure(ctx context.Context, agentID string) (*Account, error) {
	return l.store.Ensure(ctx, agentID)
}

// Fund adds amountCents to the agent's balance. Never touches TotalSpendCents.
func (l *Ledger) Fund(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	return l.store.Fund(ctx, agentID, amountCents)
}

// TryDebit atomically checks and deducts amountCents from the agent's
// balance. On success it mints a transaction hash keyed by the account's
// new payment count, so successive debits for the same agent get distinct
// nonces; SetBudget resets the count, so nonces (and hashes) repeat after
// a budget reset. On InsufficientFundsError the balance is left untouched.
func (l *Ledger) TryDebit(ctx context.Context, agentID string, amountCents *big.Int) (*DebitReceipt, error) {
	acct, err := l.store.TryDebit(ctx, agentID, amountCents)
	if err != nil {
		return nil, err
	}
	txHash := minter.MintTxHash(l.chainID, agentID, acct.PaymentCount)
	return &DebitReceipt{Account: acct, TxHash: txHash}, nil
}

// Status returns a consistent snapshot of the account, or ErrNotFound.
func (l *Ledger) Status(ctx context.Context, agentID string) (*Account, error) {
	return l.store.Status(ctx, agentID)
}

// SetBudget overwrites the agent's balance and resets TotalSpendCents and
// PaymentCount to zero, per the observed admin API semantics (spec.md §4.2).
func (l *Ledger) SetBudget(ctx context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	return l.store.SetBudget(ctx, agentID, amountCents)
}
