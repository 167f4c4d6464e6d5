package ticketsync

import (
	"context"
	"sync"
	"time"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/utils"
)

// Pass identifies one acquisition of the sync state. Gen is bumped on every
// acquisition so a pass that lost ownership can no longer mutate the state.
type Pass struct {
	Gen uint64
	ID  string
}

// SyncState is the process-wide bookkeeping of the running sync pass.
// inProgress == false implies client == nil and abortRequested == false.
// It never performs I/O.
type SyncState struct {
	mu             sync.Mutex
	inProgress     bool
	abortRequested bool
	startedAt      *time.Time
	phase          enum.SyncPhase
	client         interfaces.MailClient
	cancel         context.CancelFunc
	pass           Pass
	gen            uint64
}

func NewSyncState() *SyncState {
	return &SyncState{phase: enum.SyncPhaseIdle}
}

func (s *SyncState) Snapshot() dto.SyncStateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := dto.SyncStateSnapshot{
		InProgress:     s.inProgress,
		AbortRequested: s.abortRequested,
		Phase:          s.phase,
	}
	if s.startedAt != nil {
		startedAt := *s.startedAt
		snapshot.StartedAt = &startedAt
	}
	if s.inProgress {
		snapshot.PassID = s.pass.ID
	}
	return snapshot
}

// TryAcquire marks a new pass as in progress. It returns false, leaving the
// running pass untouched, when one is already in progress.
func (s *SyncState) TryAcquire(passID string, cancel context.CancelFunc) (Pass, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inProgress {
		return Pass{}, false
	}
	s.gen++
	s.pass = Pass{Gen: s.gen, ID: passID}
	s.inProgress = true
	s.abortRequested = false
	s.startedAt = utils.TimePtr(utils.Now())
	s.phase = enum.SyncPhaseConnecting
	s.client = nil
	s.cancel = cancel
	return s.pass, true
}

func (s *SyncState) owns(p Pass) bool {
	return s.inProgress && s.pass.Gen == p.Gen
}

// Owns reports whether p is still the pass holding the state.
func (s *SyncState) Owns(p Pass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owns(p)
}

// AttachClient hands the connected client to the state. It is refused when the
// pass no longer owns the state or a stop arrived while connecting; the caller
// then keeps responsibility for closing the client.
func (s *SyncState) AttachClient(p Pass, client interfaces.MailClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.owns(p) || s.abortRequested {
		return false
	}
	s.client = client
	return true
}

// SetPhase records the orchestrator phase for an owning pass.
func (s *SyncState) SetPhase(p Pass, phase enum.SyncPhase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.owns(p) {
		return false
	}
	s.phase = phase
	return true
}

// ShouldAbort is the cooperative cancellation check done at message boundaries.
// A pass that lost ownership must stop as well.
func (s *SyncState) ShouldAbort(p Pass) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.owns(p) || s.abortRequested
}

type abortRequest struct {
	pass   Pass
	client interfaces.MailClient
	cancel context.CancelFunc
	// first is false when an abort was already pending for the pass
	first bool
}

func (s *SyncState) requestAbort() (abortRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inProgress {
		return abortRequest{}, false
	}
	req := abortRequest{
		pass:   s.pass,
		client: s.client,
		cancel: s.cancel,
		first:  !s.abortRequested,
	}
	s.abortRequested = true
	return req, true
}

// Reset unconditionally restores the idle invariant.
func (s *SyncState) Reset() {
	s.mu.Lock()
	cancel := s.clear()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ResetPass restores the idle invariant only if p still owns the state. It is
// the reset-once guard shared by the orchestrator and the watchdog: for any
// pass exactly one caller gets true.
func (s *SyncState) ResetPass(p Pass) bool {
	s.mu.Lock()
	if !s.owns(p) {
		s.mu.Unlock()
		return false
	}
	cancel := s.clear()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (s *SyncState) clear() context.CancelFunc {
	cancel := s.cancel
	s.inProgress = false
	s.abortRequested = false
	s.startedAt = nil
	s.phase = enum.SyncPhaseIdle
	s.client = nil
	s.cancel = nil
	return cancel
}
