package lifecycle

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opgrid/internal/group"
)

func TestStatusCodesAreStable(t *testing.T) {
	assert.Equal(t, 0, int(StatusCreated))
	assert.Equal(t, 8, int(StatusUnsetEnv))
	assert.Equal(t, 9, int(StatusSetEnvError))
	assert.Equal(t, 15, int(StatusUnsetEnvError))
	assert.Equal(t, 16, int(StatusCompleted))
	assert.Len(t, AllStatuses(), 17)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("distribute_error")
	require.NoError(t, err)
	assert.Equal(t, StatusDistributeError, s)

	s, err = ParseStatus("16")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s)

	_, err = ParseStatus("17")
	assert.Error(t, err)
	_, err = ParseStatus("FINISHED")
	assert.Error(t, err)
}

func TestPhaseStatusMapping(t *testing.T) {
	for _, phase := range Phases() {
		running := phase.Status()
		failed := phase.ErrorStatus()
		assert.False(t, running.IsTerminal(), phase.String())
		assert.True(t, failed.IsError(), phase.String())
		assert.True(t, failed.IsTerminal(), phase.String())

		got, ok := running.Phase()
		require.True(t, ok)
		assert.Equal(t, phase, got)
		got, ok = failed.Phase()
		require.True(t, ok)
		assert.Equal(t, phase, got)
	}
	_, ok := StatusCompleted.Phase()
	assert.False(t, ok)
}

func TestMachineFollowsPhaseOrder(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(StatusRunning))
	for _, phase := range Phases() {
		require.NoError(t, m.Transition(phase.Status()), phase.String())
	}
	require.NoError(t, m.Transition(StatusCompleted))
	assert.Equal(t, StatusCompleted, m.Current())
	assert.Len(t, m.Path(), 10)

	assert.Error(t, m.Transition(StatusRunning), "completed is terminal")
}

func TestMachineRejectsSkippedPhases(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Transition(StatusRunning))
	require.NoError(t, m.Transition(StatusSetEnv))
	assert.Error(t, m.Transition(StatusExecute))
	assert.Error(t, m.Transition(StatusExecuteError))
	require.NoError(t, m.Transition(StatusSetEnvError))
	assert.Error(t, m.Transition(StatusInit), "error statuses are terminal")
	assert.Equal(t, StatusSetEnvError, m.Current())
}

func TestPartitionSpreadsRemainderOverLowRanks(t *testing.T) {
	allocs, err := Partition(4, 3)
	require.NoError(t, err)
	assert.Equal(t, []Allocation{
		{Rank: 0, Offset: 0, Count: 2},
		{Rank: 1, Offset: 2, Count: 1},
		{Rank: 2, Offset: 3, Count: 1},
	}, allocs)

	allocs, err = Partition(2, 4)
	require.NoError(t, err)
	assert.False(t, allocs[1].Empty())
	assert.True(t, allocs[2].Empty())
	assert.True(t, allocs[3].Empty())
	assert.Equal(t, 2, allocs[3].Offset)
}

func TestAllocationForMatchesPartition(t *testing.T) {
	for total := 0; total <= 11; total++ {
		for size := 1; size <= 5; size++ {
			table, err := Partition(total, size)
			require.NoError(t, err)
			covered := 0
			for rank := range size {
				got, err := AllocationFor(total, rank, size)
				require.NoError(t, err)
				assert.Equal(t, table[rank], got, fmt.Sprintf("total=%d size=%d rank=%d", total, size, rank))
				covered += got.Count
			}
			assert.Equal(t, total, covered)
		}
	}
}

func TestPartitionRejectsBadInput(t *testing.T) {
	_, err := Partition(1, 0)
	assert.Error(t, err)
	_, err = Partition(-1, 2)
	assert.Error(t, err)
	_, err = AllocationFor(4, 3, 3)
	assert.Error(t, err)
}

func TestLookupRecordEncoding(t *testing.T) {
	data, err := LookupRecord{ID: 0x0102, Aux: 7}.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, LookupRecordSize)
	assert.Equal(t, byte(0x01), data[6])
	assert.Equal(t, byte(0x02), data[7])

	var rec LookupRecord
	require.NoError(t, rec.UnmarshalBinary(data))
	assert.Equal(t, uint64(0x0102), rec.ID)
	assert.Equal(t, uint64(7), rec.Aux)
	assert.False(t, rec.Rejected())
	assert.True(t, LookupRecord{Aux: 3}.Rejected())

	assert.Error(t, rec.UnmarshalBinary(data[:8]))
}

func TestRemotePhaseParsesAbortCause(t *testing.T) {
	cause := abortCause(PhaseTaskExecute, errors.New("disk full"))
	err := &group.AbortError{Rank: 2, Cause: cause.Error()}

	phase, rank, ok := remotePhase(fmt.Errorf("execute rendezvous: %w", err))
	require.True(t, ok)
	assert.Equal(t, PhaseTaskExecute, phase)
	assert.Equal(t, 2, rank)

	pe := &PhaseError{Phase: PhaseTaskExecute, Rank: 0, Err: err}
	assert.True(t, pe.Remote())
	assert.Equal(t, StatusExecuteError, pe.Status())

	_, _, ok = remotePhase(errors.New("plain"))
	assert.False(t, ok)
}
