package history_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/history"
)

type fakePersistence struct {
	saved map[string][]core.Message
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{saved: make(map[string][]core.Message)}
}

func (f *fakePersistence) SaveMessages(_ context.Context, sessionID string, messages []core.Message) error {
	f.saved[sessionID] = append([]core.Message(nil), messages...)
	return nil
}

func (f *fakePersistence) LoadMessages(_ context.Context, sessionID string) ([]core.Message, error) {
	return f.saved[sessionID], nil
}

func TestAppendAndSnapshot(t *testing.T) {
	m := history.NewManager(nil)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleUser, Content: "hi"}))
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleAssistant, Content: "hello"}))

	snap := m.Snapshot("s1")
	require.Len(t, snap, 2)
	assert.Equal(t, "hi", snap[0].Content)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := history.NewManager(nil)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleUser, Content: "hi"}))

	snap := m.Snapshot("s1")
	snap[0].Content = "mutated"

	snap2 := m.Snapshot("s1")
	assert.Equal(t, "hi", snap2[0].Content)
}

func TestReadUnknownSessionErrors(t *testing.T) {
	m := history.NewManager(nil)
	_, err := m.Read("missing", 0, 0)
	assert.ErrorIs(t, err, history.ErrSessionNotFound)
}

func TestReadRespectsFromIndexAndLimit(t *testing.T) {
	m := history.NewManager(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleUser, Content: "m"}))
	}
	page, err := m.Read("s1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestReplaceSwapsHistoryAtomically(t *testing.T) {
	m := history.NewManager(nil)
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleUser, Content: "a"}))
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleAssistant, Content: "b"}))

	compressed := []core.Message{
		{Role: core.RoleSystem, Content: "sys"},
		{Role: core.RoleAssistant, Content: "summary"},
	}
	require.NoError(t, m.Replace(ctx, "s1", compressed))

	snap := m.Snapshot("s1")
	require.Len(t, snap, 2)
	assert.Equal(t, "summary", snap[1].Content)
}

func TestEnablePersistencePersistsOnAppend(t *testing.T) {
	backing := newFakePersistence()
	m := history.NewManager(backing)
	m.EnablePersistence("s1")
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleUser, Content: "hi"}))

	loaded, err := backing.LoadMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "hi", loaded[0].Content)
}

func TestWithoutPersistenceNoBackingWrite(t *testing.T) {
	backing := newFakePersistence()
	m := history.NewManager(backing)
	// EnablePersistence not called
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, "s1", core.Message{Role: core.RoleUser, Content: "hi"}))
	assert.Empty(t, backing.saved)
}
