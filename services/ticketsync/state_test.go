package ticketsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketinbox/internal/enum"
)

func TestSyncState_TryAcquireIsSingleFlight(t *testing.T) {
	state := NewSyncState()

	first, ok := state.TryAcquire("pass-1", nil)
	require.True(t, ok)
	_, ok = state.TryAcquire("pass-2", nil)
	assert.False(t, ok)

	snapshot := state.Snapshot()
	assert.True(t, snapshot.InProgress)
	assert.Equal(t, "pass-1", snapshot.PassID)
	assert.NotNil(t, snapshot.StartedAt)
	assert.Equal(t, enum.SyncPhaseConnecting, snapshot.Phase)
	assert.True(t, state.Owns(first))
}

func TestSyncState_ResetPassOnlyOnce(t *testing.T) {
	state := NewSyncState()
	cancelled := 0
	pass, _ := state.TryAcquire("pass-1", func() { cancelled++ })

	assert.True(t, state.ResetPass(pass))
	assert.False(t, state.ResetPass(pass))
	assert.Equal(t, 1, cancelled)

	snapshot := state.Snapshot()
	assert.False(t, snapshot.InProgress)
	assert.False(t, snapshot.AbortRequested)
	assert.Nil(t, snapshot.StartedAt)
	assert.Equal(t, enum.SyncPhaseIdle, snapshot.Phase)
}

func TestSyncState_StalePassCannotTouchNewPass(t *testing.T) {
	state := NewSyncState()
	stale, _ := state.TryAcquire("pass-1", nil)
	state.Reset()
	current, ok := state.TryAcquire("pass-2", nil)
	require.True(t, ok)

	assert.False(t, state.ResetPass(stale))
	assert.False(t, state.SetPhase(stale, enum.SyncPhaseCommitting))
	assert.False(t, state.AttachClient(stale, &fakeClient{}))
	assert.True(t, state.ShouldAbort(stale))
	assert.False(t, state.ShouldAbort(current))
	assert.Equal(t, "pass-2", state.Snapshot().PassID)
}

func TestSyncState_AttachRefusedAfterAbort(t *testing.T) {
	state := NewSyncState()
	pass, _ := state.TryAcquire("pass-1", nil)

	req, running := state.requestAbort()
	require.True(t, running)
	assert.True(t, req.first)
	assert.Nil(t, req.client)

	assert.False(t, state.AttachClient(pass, &fakeClient{}))
	assert.True(t, state.ShouldAbort(pass))
	assert.True(t, state.Snapshot().AbortRequested)

	again, _ := state.requestAbort()
	assert.False(t, again.first)
}

func TestSyncState_SnapshotIsACopy(t *testing.T) {
	state := NewSyncState()
	state.TryAcquire("pass-1", nil)

	snapshot := state.Snapshot()
	*snapshot.StartedAt = time.Time{}

	assert.False(t, state.Snapshot().StartedAt.IsZero())
}
