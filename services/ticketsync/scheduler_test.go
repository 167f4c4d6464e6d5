package ticketsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/internal/enum"
)

func TestTicketInboxSync_EndToEnd(t *testing.T) {
	mailbox := newFakeMailbox(
		newMessage("m3@example.com", at(3)),
		newMessage("m1@example.com", at(1)),
		newMessage("m2@example.com", at(2)),
	)
	h := newTestHarness(t, mailbox, Options{})

	h.runPass(t)

	assert.Equal(t, []string{"m1@example.com", "m2@example.com", "m3@example.com"}, h.tickets.writtenIDs())
	require.NotNil(t, h.watermarks.current())
	assert.True(t, h.watermarks.current().Equal(at(3)))
	assert.Nil(t, mailbox.lastOpenedSince())
	assert.Equal(t, []enum.SyncEventType{enum.SyncEventStarted, enum.SyncEventCompleted}, h.notifications.types())

	completed, _ := h.notifications.find(enum.SyncEventCompleted)
	assert.Equal(t, 3, completed.details["created"])
	assert.NotEmpty(t, completed.details["passId"])

	state := h.scheduler.GetTicketInboxSyncState()
	assert.False(t, state.InProgress)
	assert.False(t, state.AbortRequested)
	assert.Nil(t, state.StartedAt)
	assert.Equal(t, enum.SyncPhaseIdle, state.Phase)

	// nothing new in the mailbox
	h.runPass(t)

	assert.Len(t, h.tickets.writtenIDs(), 3)
	assert.True(t, h.watermarks.current().Equal(at(3)))
	assert.Equal(t, 1, h.watermarks.sets)
	require.NotNil(t, mailbox.lastOpenedSince())
	assert.True(t, mailbox.lastOpenedSince().Equal(at(3)))
}

func TestTicketInboxSync_SingleFlight(t *testing.T) {
	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.blockOn = "m1@example.com"
	h := newTestHarness(t, mailbox, Options{})

	first := h.scheduler.StartTicketInboxSync()
	mailbox.waitBlocked(t)
	second := h.scheduler.StartTicketInboxSync()

	assert.True(t, first.InProgress)
	assert.True(t, second.InProgress)
	assert.Equal(t, first.PassID, second.PassID)
	assert.Equal(t, first.StartedAt, second.StartedAt)
	assert.Equal(t, 1, mailbox.dialCount())
	assert.Equal(t, enum.SyncPhaseFetching, second.Phase)

	h.scheduler.StopTicketInboxSync()
	h.wait(t)
	assert.Equal(t, 1, mailbox.dialCount())
}

func TestTicketInboxSync_StopWhenIdle(t *testing.T) {
	h := newTestHarness(t, newFakeMailbox(), Options{})
	before := h.scheduler.GetTicketInboxSyncState()

	result := h.scheduler.StopTicketInboxSync()

	assert.Equal(t, dto.StopResult{WasRunning: false, AbortRequested: false}, result)
	assert.Equal(t, before, h.scheduler.GetTicketInboxSyncState())
	assert.Empty(t, h.notifications.types())
}

func TestTicketInboxSync_ForcedCleanupWhenCloseHangs(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.hang = hang
	h := newTestHarness(t, mailbox, Options{AbortTimeout: 50 * time.Millisecond})

	h.scheduler.StartTicketInboxSync()
	mailbox.waitBlocked(t)

	result := h.scheduler.StopTicketInboxSync()
	assert.Equal(t, dto.StopResult{WasRunning: true, AbortRequested: true}, result)

	assert.Eventually(t, func() bool {
		state := h.scheduler.GetTicketInboxSyncState()
		return !state.InProgress && !state.AbortRequested
	}, 1200*time.Millisecond, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return mailbox.closeCount() >= 1
	}, 1200*time.Millisecond, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return h.notifications.has(enum.SyncEventAbortTimeout)
	}, 1200*time.Millisecond, 10*time.Millisecond)
	assert.False(t, h.notifications.has(enum.SyncEventAborted))

	state := h.scheduler.GetTicketInboxSyncState()
	assert.Nil(t, state.StartedAt)
	assert.Empty(t, state.PassID)
}

func TestTicketInboxSync_StopReturnsBeforeCleanup(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.hang = hang
	h := newTestHarness(t, mailbox, Options{AbortTimeout: time.Minute})

	h.scheduler.StartTicketInboxSync()
	mailbox.waitBlocked(t)

	result := h.scheduler.StopTicketInboxSync()
	assert.Equal(t, dto.StopResult{WasRunning: true, AbortRequested: true}, result)

	state := h.scheduler.GetTicketInboxSyncState()
	assert.True(t, state.InProgress)
	assert.True(t, state.AbortRequested)

	// a second stop reports the pending abort without closing again
	result = h.scheduler.StopTicketInboxSync()
	assert.Equal(t, dto.StopResult{WasRunning: true, AbortRequested: true}, result)
	assert.Eventually(t, func() bool {
		return mailbox.closeCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTicketInboxSync_AbortKeepsProgressAndResumes(t *testing.T) {
	mailbox := newFakeMailbox(
		newMessage("m1@example.com", at(1)),
		newMessage("m2@example.com", at(2)),
		newMessage("m3@example.com", at(3)),
		newMessage("m4@example.com", at(4)),
		newMessage("m5@example.com", at(5)),
	)
	mailbox.blockOn = "m3@example.com"
	h := newTestHarness(t, mailbox, Options{AbortTimeout: 5 * time.Second})

	h.scheduler.StartTicketInboxSync()
	mailbox.waitBlocked(t)
	h.scheduler.StopTicketInboxSync()
	h.wait(t)

	state := h.scheduler.GetTicketInboxSyncState()
	assert.False(t, state.InProgress)
	assert.False(t, state.AbortRequested)
	assert.Equal(t, []string{"m1@example.com", "m2@example.com"}, h.tickets.writtenIDs())
	require.NotNil(t, h.watermarks.current())
	assert.True(t, h.watermarks.current().Equal(at(2)))
	assert.True(t, h.notifications.has(enum.SyncEventAborted))
	assert.False(t, h.notifications.has(enum.SyncEventAbortTimeout))
	assert.GreaterOrEqual(t, mailbox.closeCount(), 1)

	mailbox.set(func(m *fakeMailbox) { m.blockOn = "" })
	h.runPass(t)

	require.NotNil(t, mailbox.lastOpenedSince())
	assert.True(t, mailbox.lastOpenedSince().Equal(at(2)))
	assert.Equal(t, []string{
		"m1@example.com", "m2@example.com", "m3@example.com", "m4@example.com", "m5@example.com",
	}, h.tickets.writtenIDs())
	assert.True(t, h.watermarks.current().Equal(at(5)))
}

func TestTicketInboxSync_ConnectError(t *testing.T) {
	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.dialErr = errors.New("connection refused")
	h := newTestHarness(t, mailbox, Options{})

	h.runPass(t)

	assert.Equal(t, []enum.SyncEventType{enum.SyncEventStarted, enum.SyncEventConnectError}, h.notifications.types())
	connectErr, _ := h.notifications.find(enum.SyncEventConnectError)
	assert.Equal(t, enum.SyncStatusError, connectErr.status)
	assert.Contains(t, connectErr.details["error"], "connection refused")
	assert.Nil(t, h.watermarks.current())
	assert.False(t, h.scheduler.GetTicketInboxSyncState().InProgress)

	// next trigger retries naturally
	mailbox.set(func(m *fakeMailbox) { m.dialErr = nil })
	h.runPass(t)
	assert.Equal(t, []string{"m1@example.com"}, h.tickets.writtenIDs())
}

func TestTicketInboxSync_FetchErrorKeepsCommittedProgress(t *testing.T) {
	mailbox := newFakeMailbox(
		newMessage("m1@example.com", at(1)),
		newMessage("m2@example.com", at(2)),
		newMessage("m3@example.com", at(3)),
	)
	mailbox.fetchErr["m2@example.com"] = errors.New("fetch failed")
	h := newTestHarness(t, mailbox, Options{})

	h.runPass(t)

	assert.Equal(t, []string{"m1@example.com"}, h.tickets.writtenIDs())
	require.NotNil(t, h.watermarks.current())
	assert.True(t, h.watermarks.current().Equal(at(1)))
	syncErr, ok := h.notifications.find(enum.SyncEventError)
	require.True(t, ok)
	assert.Equal(t, "fetch", syncErr.details["kind"])
	assert.False(t, h.scheduler.GetTicketInboxSyncState().InProgress)

	mailbox.set(func(m *fakeMailbox) { delete(m.fetchErr, "m2@example.com") })
	h.runPass(t)

	assert.Equal(t, []string{"m1@example.com", "m2@example.com", "m3@example.com"}, h.tickets.writtenIDs())
	assert.True(t, h.watermarks.current().Equal(at(3)))
}

func TestTicketInboxSync_IngestErrorRetriedNextPass(t *testing.T) {
	mailbox := newFakeMailbox(
		newMessage("m1@example.com", at(1)),
		newMessage("m2@example.com", at(2)),
		newMessage("m3@example.com", at(3)),
	)
	h := newTestHarness(t, mailbox, Options{})
	h.tickets.setFailure("m2@example.com", errors.New("db unavailable"))

	h.runPass(t)

	assert.Equal(t, []string{"m1@example.com"}, h.tickets.writtenIDs())
	assert.True(t, h.watermarks.current().Equal(at(1)))
	syncErr, ok := h.notifications.find(enum.SyncEventError)
	require.True(t, ok)
	assert.Equal(t, "ingest", syncErr.details["kind"])
	assert.Equal(t, "m2@example.com", syncErr.details["externalId"])

	h.tickets.setFailure("m2@example.com", nil)
	h.runPass(t)

	assert.Equal(t, []string{"m1@example.com", "m2@example.com", "m3@example.com"}, h.tickets.writtenIDs())
	assert.True(t, h.watermarks.current().Equal(at(3)))
}

func TestTicketInboxSync_MaxMessagesPerPass(t *testing.T) {
	mailbox := newFakeMailbox(
		newMessage("m1@example.com", at(1)),
		newMessage("m2@example.com", at(2)),
		newMessage("m3@example.com", at(3)),
	)
	h := newTestHarness(t, mailbox, Options{MaxMessages: 2})

	h.runPass(t)
	assert.Equal(t, []string{"m1@example.com", "m2@example.com"}, h.tickets.writtenIDs())
	assert.True(t, h.watermarks.current().Equal(at(2)))

	h.runPass(t)
	assert.Equal(t, []string{"m1@example.com", "m2@example.com", "m3@example.com"}, h.tickets.writtenIDs())
	assert.True(t, h.watermarks.current().Equal(at(3)))
}

func TestTicketInboxSync_CloseErrorStillReleasesState(t *testing.T) {
	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.closeErr = errors.New("logout failed")
	h := newTestHarness(t, mailbox, Options{})

	h.runPass(t)

	assert.False(t, h.scheduler.GetTicketInboxSyncState().InProgress)
	assert.True(t, h.notifications.has(enum.SyncEventCompleted))
	assert.True(t, h.watermarks.current().Equal(at(1)))
}

func TestTicketInboxSync_TriggerSkipsWhileRunning(t *testing.T) {
	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.blockOn = "m1@example.com"
	h := newTestHarness(t, mailbox, Options{})

	h.scheduler.TriggerTicketInboxSync()
	mailbox.waitBlocked(t)
	running := h.scheduler.GetTicketInboxSyncState()

	h.scheduler.TriggerTicketInboxSync()

	skipped, ok := h.notifications.find(enum.SyncEventSkipped)
	require.True(t, ok)
	assert.Equal(t, enum.SyncStatusSkipped, skipped.status)
	assert.Equal(t, running.PassID, skipped.details["runningPassId"])
	assert.Equal(t, 1, mailbox.dialCount())

	h.scheduler.StopTicketInboxSync()
	h.wait(t)
}

func TestTicketInboxSync_ShutdownStopsRunningPass(t *testing.T) {
	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.blockOn = "m1@example.com"
	h := newTestHarness(t, mailbox, Options{})

	h.scheduler.StartTicketInboxSync()
	mailbox.waitBlocked(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.scheduler.Shutdown(ctx))
	assert.False(t, h.scheduler.GetTicketInboxSyncState().InProgress)

	snapshot := h.scheduler.StartTicketInboxSync()
	assert.False(t, snapshot.InProgress)
	assert.Equal(t, 1, mailbox.dialCount())
}

func TestTicketInboxSync_ShutdownDeadlineResetsState(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	mailbox := newFakeMailbox(newMessage("m1@example.com", at(1)))
	mailbox.hang = hang
	h := newTestHarness(t, mailbox, Options{AbortTimeout: time.Minute})

	h.scheduler.StartTicketInboxSync()
	mailbox.waitBlocked(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.scheduler.Shutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	state := h.scheduler.GetTicketInboxSyncState()
	assert.False(t, state.InProgress)
	assert.False(t, state.AbortRequested)
}

func TestTicketInboxSync_ArchivesRawSourceOfNewMessages(t *testing.T) {
	withRaw := func(msg *dto.IngestedMessage) *dto.IngestedMessage {
		msg.Raw = []byte("Message-ID: <" + msg.ExternalID + ">\r\n\r\n" + msg.Body)
		return msg
	}
	mailbox := newFakeMailbox(
		withRaw(newMessage("m1@example.com", at(1))),
		withRaw(newMessage("m2@example.com", at(2))),
		newMessage("no-raw@example.com", at(3)),
	)
	h := newTestHarness(t, mailbox, Options{})
	h.archive.failOn["m2@example.com"] = errors.New("bucket unavailable")

	h.runPass(t)

	assert.Equal(t, []string{"tckt_1/m1@example.com"}, h.archive.stored())
	// archive failures do not fail the pass
	assert.Len(t, h.tickets.writtenIDs(), 3)
	assert.True(t, h.watermarks.current().Equal(at(3)))
	completed, ok := h.notifications.find(enum.SyncEventCompleted)
	require.True(t, ok)
	assert.Equal(t, 1, completed.details["archived"])
}
