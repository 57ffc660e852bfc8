package ledger

import (
	"context"
	"math/big"
	"sync"

	"github.com/xdr-run/xdr/internal/metrics"
	"github.com/xdr-run/xdr/internal/syncutil"
)

// MemoryStore is the default, process-lifetime ledger backing. Account
// existence is tracked in a sync.Map; mutation of a single account is
// serialized through a 256-way sharded mutex keyed by agent_id, so that
// two distinct agents never contend for the same lock while operations on
// the same agent remain strictly linearizable.
type MemoryStore struct {
	accounts sync.Map // agent_id -> *Account
	locks    syncutil.ShardedMutex
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Ensure(_ context.Context, agentID string) (*Account, error) {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	acct := s.getOrCreateLocked(agentID)
	return acct.clone(), nil
}

func (s *MemoryStore) Fund(_ context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	acct := s.getOrCreateLocked(agentID)
	acct.BalanceCents.Add(acct.BalanceCents, amountCents)
	return acct.clone(), nil
}

func (s *MemoryStore) TryDebit(_ context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	acct := s.getOrCreateLocked(agentID)
	if acct.BalanceCents.Cmp(amountCents) < 0 {
		return nil, &InsufficientFundsError{
			Balance:  new(big.Int).Set(acct.BalanceCents),
			Required: new(big.Int).Set(amountCents),
		}
	}

	acct.BalanceCents.Sub(acct.BalanceCents, amountCents)
	acct.TotalSpendCents.Add(acct.TotalSpendCents, amountCents)
	acct.PaymentCount++
	return acct.clone(), nil
}

func (s *MemoryStore) Status(_ context.Context, agentID string) (*Account, error) {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	v, ok := s.accounts.Load(agentID)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Account).clone(), nil
}

func (s *MemoryStore) SetBudget(_ context.Context, agentID string, amountCents *big.Int) (*Account, error) {
	unlock := s.locks.Lock(agentID)
	defer unlock()

	acct := s.getOrCreateLocked(agentID)
	acct.BalanceCents = new(big.Int).Set(amountCents)
	acct.TotalSpendCents = big.NewInt(0)
	acct.PaymentCount = 0
	return acct.clone(), nil
}

// getOrCreateLocked must be called with the agent's shard already locked.
func (s *MemoryStore) getOrCreateLocked(agentID string) *Account {
	v, ok := s.accounts.Load(agentID)
	if ok {
		return v.(*Account)
	}
	acct := newAccount(agentID)
	actual, loaded := s.accounts.LoadOrStore(agentID, acct)
	if !loaded {
		metrics.ActiveAgents.Inc()
	}
	return actual.(*Account)
}
