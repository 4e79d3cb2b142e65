package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/tutorgate/cache"
)

func testStore() (*Store, *cache.Memory) {
	c := cache.NewMemory()
	return NewStore(c, 6, 400, 50), c
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	store, _ := testStore()

	state := store.Load(context.Background(), "nothing-here")
	assert.Empty(t, state.Turns)
	assert.Empty(t, state.Summary)
}

func TestStore_LoadCorruptIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, c := testStore()

	require.NoError(t, c.Set(ctx, convPrefix+"bad", []byte("{not json"), 0))

	state := store.Load(ctx, "bad")
	assert.Empty(t, state.Turns)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	turns := []Turn{
		{Role: RoleStudent, Content: "how do loops work?", Intent: "concept"},
		{Role: RoleAssistant, Content: "loops repeat blocks"},
	}

	_, err := store.Save(ctx, "key-a", turns, "", time.Minute, "actor-1", 0)
	require.NoError(t, err)

	state := store.Load(ctx, "key-a")
	require.Len(t, state.Turns, 2)
	assert.Equal(t, "how do loops work?", state.Turns[0].Content)
	assert.Equal(t, "concept", state.Turns[0].Intent)
}

func TestStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	keys := []string{
		Key("actor-1", "scope-a", "conv-1"),
		Key("actor-2", "scope-a", "conv-1"),
		Key("actor-1", "scope-b", "conv-1"),
		Key("actor-1", "scope-a", "conv-2"),
	}

	_, err := store.Save(ctx, keys[0], []Turn{{Role: RoleStudent, Content: "secret"}}, "", time.Minute, "actor-1", 0)
	require.NoError(t, err)

	for _, other := range keys[1:] {
		state := store.Load(ctx, other)
		assert.Empty(t, state.Turns, "key %s must not see another conversation", other)
	}
}

func TestStore_SaveEnforcesBounds(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	turns := make([]Turn, 20)
	for i := range turns {
		turns[i] = Turn{Role: RoleStudent, Content: fmt.Sprintf("message number %d with padding", i)}
	}

	compacted, err := store.Save(ctx, "bounded", turns, "", time.Minute, "actor-1", 0)
	require.NoError(t, err)
	assert.True(t, compacted)

	state := store.Load(ctx, "bounded")
	assert.LessOrEqual(t, len(state.Turns), 6)
	assert.LessOrEqual(t, len(state.Summary), 400)
	assert.NotEmpty(t, state.Summary)
}

func TestStore_SaveNormalizesTurns(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	_, err := store.Save(ctx, "norm", []Turn{
		{Role: RoleStudent, Content: "  padded  "},
		{Role: RoleAssistant, Content: "   "},
		{Role: "weird", Content: "kept"},
	}, "", time.Minute, "actor-1", 0)
	require.NoError(t, err)

	state := store.Load(ctx, "norm")
	require.Len(t, state.Turns, 2, "blank turn dropped")
	assert.Equal(t, "padded", state.Turns[0].Content)
	assert.Equal(t, RoleStudent, state.Turns[1].Role, "unknown role normalized")
}

func TestStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	now := time.Now()
	c.SetClock(func() time.Time { return now })
	store := NewStore(c, 6, 400, 50)

	_, err := store.Save(ctx, "ttl", []Turn{{Role: RoleStudent, Content: "hello"}}, "", time.Minute, "actor-1", 0)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)

	state := store.Load(ctx, "ttl")
	assert.Empty(t, state.Turns, "state expires after TTL of inactivity")
}

func TestStore_ClearClass(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	for i := 0; i < 3; i++ {
		key := Key(fmt.Sprintf("student-%d", i), "scope", "conv")
		_, err := store.Save(ctx, key, []Turn{{Role: RoleStudent, Content: "hello"}}, "", time.Minute, fmt.Sprintf("student-%d", i), 55)
		require.NoError(t, err)
	}

	deleted := store.ClearClass(ctx, 55, 100)
	assert.Equal(t, 3, deleted)

	// Every key registered under the class loads empty afterwards.
	for i := 0; i < 3; i++ {
		state := store.Load(ctx, Key(fmt.Sprintf("student-%d", i), "scope", "conv"))
		assert.Empty(t, state.Turns)
	}

	assert.Equal(t, 0, store.ClearClass(ctx, 55, 100), "index cleared with the conversations")
}

func TestStore_ClearClassUnknown(t *testing.T) {
	store, _ := testStore()
	assert.Equal(t, 0, store.ClearClass(context.Background(), 999, 100))
}

func TestStore_SnapshotClass(t *testing.T) {
	ctx := context.Background()
	store, _ := testStore()

	key := Key("student-1", "scope", "conv")
	_, err := store.Save(ctx, key, []Turn{
		{Role: RoleStudent, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleStudent, Content: "q2"},
	}, "", time.Minute, "student-1", 55)
	require.NoError(t, err)

	snap := store.SnapshotClass(ctx, 55, 100, 2)
	require.Len(t, snap, 1)
	state := snap[key]
	require.Len(t, state.Turns, 2, "per-conversation message bound applied")
	assert.Equal(t, "a1", state.Turns[0].Content)

	// Snapshot is read-only: the conversation is still loadable.
	assert.Len(t, store.Load(ctx, key).Turns, 3)
}

func TestStore_IndexEviction(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemory()
	store := NewStore(c, 6, 400, 2)

	for i := 0; i < 4; i++ {
		_, err := store.Save(ctx, fmt.Sprintf("key-%d", i), []Turn{{Role: RoleStudent, Content: "x"}}, "", time.Minute, "actor", 7)
		require.NoError(t, err)
	}

	// Only the two most recent keys remain indexed.
	deleted := store.ClearClass(ctx, 7, 100)
	assert.Equal(t, 2, deleted)
}

func TestNormalizeConversationID(t *testing.T) {
	hex := "0123456789abcdef0123456789abcdef"
	assert.Equal(t, hex, NormalizeConversationID(hex))
	assert.Equal(t, hex, NormalizeConversationID("0123456789ABCDEF0123456789ABCDEF"))

	uuidForm := "01234567-89ab-cdef-0123-456789abcdef"
	assert.Equal(t, "0123456789abcdef0123456789abcdef", NormalizeConversationID(uuidForm))

	hashed := NormalizeConversationID("my session")
	assert.Len(t, hashed, 32)
	assert.Equal(t, hashed, NormalizeConversationID("my session"), "hashing is stable")

	fresh := NormalizeConversationID("")
	assert.Len(t, fresh, 32)
	assert.NotEqual(t, fresh, NormalizeConversationID(""))
}

func TestKey_Deterministic(t *testing.T) {
	assert.Equal(t, Key("a", "b", "c"), Key("a", "b", "c"))
	assert.NotEqual(t, Key("a", "b", "c"), Key("a", "b", "d"))
	assert.Len(t, Key("a", "b", "c"), 32)
}
