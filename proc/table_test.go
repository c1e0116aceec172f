package proc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/mem"
	"github.com/TorMartin-ops/nucleus/paging"
)

func TestReparentMarksOrphanedAndReassignsPPID(t *testing.T) {
	fa := mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: 256 * mem.PGSIZE, Kind: mem.RegionAvailable},
	})
	kernelAS, err := paging.New(fa, nil)
	require.NoError(t, err)
	table := NewTable(fa, kernelAS)

	parent := New(2, InitPID)
	child := New(3, parent.PID)
	table.Insert(parent)
	table.Insert(child)

	require.False(t, child.Orphaned)

	table.Reparent(parent.PID)

	require.Equal(t, InitPID, child.PPID)
	require.True(t, child.Orphaned)
}

func TestReparentLeavesUnrelatedProcessesAlone(t *testing.T) {
	fa := mem.NewFrameAllocator([]mem.Region{
		{Start: 0, Length: 256 * mem.PGSIZE, Kind: mem.RegionAvailable},
	})
	kernelAS, err := paging.New(fa, nil)
	require.NoError(t, err)
	table := NewTable(fa, kernelAS)

	parent := New(2, InitPID)
	sibling := New(3, InitPID)
	table.Insert(parent)
	table.Insert(sibling)

	table.Reparent(parent.PID)

	require.Equal(t, InitPID, sibling.PPID)
	require.False(t, sibling.Orphaned)
}
