// Package minter produces XDR's challenge invoices and synthetic
// transaction hashes. Neither function performs real cryptographic
// signing; both only need to look and behave like chain primitives well
// enough for an agent client to parse and log them.
package minter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// Invoice is the opaque challenge token returned in a 402 body.
type Invoice struct {
	Token string
}

// Minter mints invoices and transaction hashes. The only mutable state is
// a monotonic counter chaining successive invoices together; everything
// else is a pure function of its inputs.
type Minter struct {
	counter atomic.Uint64
}

// New creates a Minter with its invoice counter at zero.
func New() *Minter {
	return &Minter{}
}

// MintInvoice returns a printable, single-use-in-principle token: a
// counter-derived nonce concatenated with a hash chaining agent_id, the
// invoice counter, and price. The simulator does not enforce uniqueness
// across retries of the same invoice (see the pipeline's paymentCheck)
// — this function only guarantees the token's internal
// structure is deterministic given (agent_id, counter, price).
func (m *Minter) MintInvoice(agentID, amountUSDC string) Invoice {
	n := m.counter.Add(1)
	nonce := fmt.Sprintf("%016x", n)

	h := sha256.New()
	h.Write([]byte(agentID))
	h.Write([]byte(nonce))
	h.Write([]byte(amountUSDC))
	chain := hex.EncodeToString(h.Sum(nil))[:48]

	return Invoice{Token: nonce + "." + chain}
}

// MintTxHash returns a 0x-prefixed, 64-hex-digit string derived by hashing
// chain_id, agent_id, and nonce — the surface shape of a transaction hash,
// with no on-chain meaning. Deterministic: identical inputs always produce
// the identical hash.
func MintTxHash(chainID uint32, agentID string, nonce uint64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%d", chainID, agentID, nonce)
	sum := h.Sum(nil)
	return common.BytesToHash(sum).Hex()
}
