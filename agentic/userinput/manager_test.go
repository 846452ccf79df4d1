package userinput_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/userinput"
)

func TestRegisterThenAnswerDeliversPayload(t *testing.T) {
	m := userinput.NewManager()
	ch, err := m.Register("tool-1")
	require.NoError(t, err)

	require.NoError(t, m.Answer("tool-1", map[string]any{"ok": true}))

	got := <-ch
	assert.Equal(t, true, got.Payload["ok"])
	assert.False(t, m.HasPending("tool-1"))
}

func TestRegisterTwiceErrors(t *testing.T) {
	m := userinput.NewManager()
	_, err := m.Register("tool-1")
	require.NoError(t, err)
	_, err = m.Register("tool-1")
	assert.ErrorIs(t, err, userinput.ErrAlreadyPending)
}

func TestAnswerUnknownErrors(t *testing.T) {
	m := userinput.NewManager()
	err := m.Answer("missing", nil)
	assert.ErrorIs(t, err, userinput.ErrNoSuchPending)
}

func TestCancelDropsSlotSilently(t *testing.T) {
	m := userinput.NewManager()
	_, err := m.Register("tool-1")
	require.NoError(t, err)

	m.Cancel("tool-1")
	m.Cancel("tool-1") // idempotent, no panic

	assert.False(t, m.HasPending("tool-1"))
	err = m.Answer("tool-1", nil)
	assert.ErrorIs(t, err, userinput.ErrNoSuchPending)
}

func TestPendingToolIDsListsOutstandingSlots(t *testing.T) {
	m := userinput.NewManager()
	_, _ = m.Register("a")
	_, _ = m.Register("b")
	ids := m.PendingToolIDs()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
