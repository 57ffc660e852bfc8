package minter

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var txHashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

func TestMintTxHash_MatchesShape(t *testing.T) {
	hash := MintTxHash(338, "agent-1", 1)
	assert.True(t, txHashPattern.MatchString(hash), "got %q", hash)
}

func TestMintTxHash_PureFunctionOfInputs(t *testing.T) {
	a := MintTxHash(338, "agent-1", 5)
	b := MintTxHash(338, "agent-1", 5)
	assert.Equal(t, a, b)
}

func TestMintTxHash_DiffersOnAnyInputChange(t *testing.T) {
	base := MintTxHash(338, "agent-1", 5)
	assert.NotEqual(t, base, MintTxHash(25, "agent-1", 5))
	assert.NotEqual(t, base, MintTxHash(338, "agent-2", 5))
	assert.NotEqual(t, base, MintTxHash(338, "agent-1", 6))
}

func TestMintInvoice_Unique(t *testing.T) {
	m := New()
	first := m.MintInvoice("agent-1", "0.01")
	second := m.MintInvoice("agent-1", "0.01")
	assert.NotEqual(t, first.Token, second.Token)
	assert.NotEmpty(t, first.Token)
}
