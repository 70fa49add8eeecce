package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorrelationInstallAndResolve(t *testing.T) {
	table := NewCorrelationTable()
	ctx := context.Background()

	table.Install(ctx, "req1", RequestEntry{Room: "standup", Nicknames: []string{"alice", "bob"}, Bridge: "b1"})
	require.Equal(t, 1, table.Len())

	entry, ok := table.Resolve("req1")
	require.True(t, ok)
	require.Equal(t, "standup", entry.Room)
	require.Equal(t, []string{"alice", "bob"}, entry.Nicknames)
	require.Equal(t, 0, table.Len())
}

func TestCorrelationResolveUnknownIsStale(t *testing.T) {
	table := NewCorrelationTable()
	_, ok := table.Resolve("nonexistent")
	require.False(t, ok)
}

func TestCorrelationDropRoomRemovesOnlyThatRoom(t *testing.T) {
	table := NewCorrelationTable()
	ctx := context.Background()

	table.Install(ctx, "req1", RequestEntry{Room: "room-a", Nicknames: []string{"alice"}})
	table.Install(ctx, "req2", RequestEntry{Room: "room-b", Nicknames: []string{"bob"}})

	table.DropRoom("room-a")
	require.Equal(t, 1, table.Len())

	_, ok := table.Resolve("req2")
	require.True(t, ok)
}

func TestCorrelationDropRemovesSingleEntry(t *testing.T) {
	table := NewCorrelationTable()
	ctx := context.Background()

	table.Install(ctx, "req1", RequestEntry{Room: "room-a"})
	table.Drop("req1")
	require.Equal(t, 0, table.Len())

	_, ok := table.Resolve("req1")
	require.False(t, ok)
}
