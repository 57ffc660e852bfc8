package tracelog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppend_EvictsOldestPastCapacity(t *testing.T) {
	b := New(3)
	for i := 0; i < 5; i++ {
		b.Append(&Entry{AgentID: fmt.Sprintf("a%d", i), Timestamp: time.Now()})
	}

	assert.Equal(t, 3, b.Len())

	entries := b.Query("")
	assert.Equal(t, "a4", entries[0].AgentID)
	assert.Equal(t, "a3", entries[1].AgentID)
	assert.Equal(t, "a2", entries[2].AgentID)
}

func TestQuery_FiltersByAgent(t *testing.T) {
	b := New(10)
	b.Append(&Entry{AgentID: "a1", Path: "/one"})
	b.Append(&Entry{AgentID: "a2", Path: "/two"})
	b.Append(&Entry{AgentID: "a1", Path: "/three"})

	got := b.Query("a1")
	assert.Len(t, got, 2)
	assert.Equal(t, "/three", got[0].Path)
	assert.Equal(t, "/one", got[1].Path)
}

func TestQuery_EmptyAgentReturnsAll(t *testing.T) {
	b := New(10)
	b.Append(&Entry{AgentID: "a1"})
	b.Append(&Entry{AgentID: "a2"})

	assert.Len(t, b.Query(""), 2)
}

func TestNew_ZeroCapacityDefaults(t *testing.T) {
	b := New(0)
	assert.Equal(t, 10000, b.capacity)
}
