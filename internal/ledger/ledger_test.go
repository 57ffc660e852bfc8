package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdr-run/xdr/internal/minter"
)

func newTestLedger() *Ledger {
	return New(NewMemoryStore(), minter.New(), 338)
}

func TestEnsure_IdempotentZeroBalance(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	a, err := l.Ensure(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.BalanceCents.Int64())

	b, err := l.Ensure(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a.BalanceCents, b.BalanceCents)
}

func TestStatus_NotFoundForGhostAgent(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Status(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	// Status must not create an account as a side effect (S6).
	_, err = l.Status(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetBudget_ResetsSpendAndCount(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.Fund(ctx, "a1", big.NewInt(1000))
	l.TryDebit(ctx, "a1", big.NewInt(100))

	acct, err := l.SetBudget(ctx, "a1", big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(500), acct.BalanceCents.Int64())
	assert.Equal(t, int64(0), acct.TotalSpendCents.Int64())
	assert.Equal(t, uint64(0), acct.PaymentCount)
}

func TestTryDebit_InsufficientFundsLeavesBalanceUnchanged(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.Fund(ctx, "a1", big.NewInt(5))
	_, err := l.TryDebit(ctx, "a1", big.NewInt(10))

	var insufficient *InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(5), insufficient.Balance.Int64())
	assert.Equal(t, int64(10), insufficient.Required.Int64())

	acct, _ := l.Status(ctx, "a1")
	assert.Equal(t, int64(5), acct.BalanceCents.Int64())
	assert.Equal(t, uint64(0), acct.PaymentCount)
}

func TestTryDebit_SuccessIncrementsSpendAndCount(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.Fund(ctx, "a1", big.NewInt(100))
	receipt, err := l.TryDebit(ctx, "a1", big.NewInt(1))
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TxHash)
	assert.Equal(t, int64(99), receipt.Account.BalanceCents.Int64())
	assert.Equal(t, int64(1), receipt.Account.TotalSpendCents.Int64())
	assert.Equal(t, uint64(1), receipt.Account.PaymentCount)
}

// Invariant 1 from spec.md §8: balance + total_spend == sum of all fund amounts.
func TestInvariant_BalancePlusSpendEqualsFunded(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.Fund(ctx, "a1", big.NewInt(300))
	l.TryDebit(ctx, "a1", big.NewInt(100))
	l.TryDebit(ctx, "a1", big.NewInt(50))
	_, err := l.TryDebit(ctx, "a1", big.NewInt(1000))
	require.Error(t, err)

	acct, _ := l.Status(ctx, "a1")
	total := new(big.Int).Add(acct.BalanceCents, acct.TotalSpendCents)
	assert.Equal(t, int64(300), total.Int64())
}

// Boundary: exact-balance debit succeeds once, then BudgetExceeded.
func TestBoundary_ExactBalanceDebitsOnce(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	l.Fund(ctx, "a1", big.NewInt(1))
	_, err := l.TryDebit(ctx, "a1", big.NewInt(1))
	require.NoError(t, err)

	_, err = l.TryDebit(ctx, "a1", big.NewInt(1))
	var insufficient *InsufficientFundsError
	assert.True(t, errors.As(err, &insufficient))
}

func TestConcurrentDebits_NeverOverdraw(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	l.Fund(ctx, "agent-x", big.NewInt(100))

	var wg sync.WaitGroup
	successes := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.TryDebit(ctx, "agent-x", big.NewInt(1))
			successes <- err == nil
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for ok := range successes {
		if ok {
			count++
		}
	}
	assert.Equal(t, 100, count)

	acct, _ := l.Status(ctx, "agent-x")
	assert.Equal(t, int64(0), acct.BalanceCents.Int64())
	assert.Equal(t, uint64(100), acct.PaymentCount)
}
