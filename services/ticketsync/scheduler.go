package ticketsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/customeros/ticketinbox/config"
	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/logger"
)

type Dependencies struct {
	Dialer        interfaces.MailClientDialer
	Tickets       interfaces.TicketStore
	Watermarks    interfaces.WatermarkStore
	Notifications interfaces.NotificationLogger
	// Publisher and Archive are optional
	Publisher interfaces.SyncEventPublisher
	Archive   interfaces.MessageArchive
	Logger    logger.Logger
}

type Options struct {
	AbortTimeout time.Duration
	// MaxMessages caps the messages fetched by one pass, 0 means unlimited
	MaxMessages int
}

func OptionsFromConfig(cfg *config.MailTicketSyncConfig) Options {
	return Options{
		AbortTimeout: cfg.AbortTimeout(),
		MaxMessages:  cfg.MaxMessages,
	}
}

// SyncScheduler is the control surface of the ticket inbox sync. Passes run in
// the background; none of its methods wait on the mailbox.
type SyncScheduler struct {
	state        *SyncState
	controller   *CancellationController
	orchestrator *SyncOrchestrator
	notifier     *syncNotifier
	log          logger.Logger

	mu           sync.Mutex
	shuttingDown bool
	passes       sync.WaitGroup
}

func NewSyncScheduler(deps Dependencies, opts Options) *SyncScheduler {
	if opts.AbortTimeout <= 0 {
		opts.AbortTimeout = time.Duration(config.DefaultAbortTimeoutMs) * time.Millisecond
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	state := NewSyncState()
	notifier := &syncNotifier{
		notifications: deps.Notifications,
		publisher:     deps.Publisher,
		log:           log,
	}
	controller := NewCancellationController(state, opts.AbortTimeout, notifier, log)

	return &SyncScheduler{
		state:      state,
		controller: controller,
		orchestrator: &SyncOrchestrator{
			state:       state,
			controller:  controller,
			dialer:      deps.Dialer,
			gate:        NewWatermarkGate(deps.Watermarks),
			ingestor:    NewMessageIngestor(deps.Tickets),
			archive:     deps.Archive,
			notifier:    notifier,
			log:         log,
			maxMessages: opts.MaxMessages,
		},
		notifier: notifier,
		log:      log,
	}
}

// StartTicketInboxSync launches a pass unless one is already running, and
// returns the resulting state either way.
func (s *SyncScheduler) StartTicketInboxSync() dto.SyncStateSnapshot {
	s.start()
	return s.state.Snapshot()
}

// TriggerTicketInboxSync is the periodic entry point. Unlike a manual start it
// records the attempt it skips.
func (s *SyncScheduler) TriggerTicketInboxSync() {
	if s.start() {
		return
	}
	snapshot := s.state.Snapshot()
	if !snapshot.InProgress {
		return
	}
	s.log.Infof("ticket inbox sync already in progress (pass %s), trigger skipped", snapshot.PassID)
	s.notifier.notify(context.Background(), Pass{}, enum.SyncEventSkipped, enum.SyncStatusSkipped, map[string]interface{}{
		"runningPassId": snapshot.PassID,
	})
}

func (s *SyncScheduler) StopTicketInboxSync() dto.StopResult {
	return s.controller.Stop()
}

func (s *SyncScheduler) GetTicketInboxSyncState() dto.SyncStateSnapshot {
	return s.state.Snapshot()
}

// Wait blocks until every pass started so far has returned or ctx is done.
func (s *SyncScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.passes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown refuses new passes, aborts the running one and waits for it. The
// state is reset when ctx expires first.
func (s *SyncScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	s.controller.Stop()
	if err := s.Wait(ctx); err != nil {
		s.log.Warnf("ticket inbox sync did not stop before shutdown deadline: %v", err)
		s.state.Reset()
		return err
	}
	return nil
}

func (s *SyncScheduler) start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	pass, acquired := s.state.TryAcquire(uuid.NewString(), cancel)
	if !acquired {
		cancel()
		return false
	}

	s.passes.Add(1)
	go func() {
		defer s.passes.Done()
		defer cancel()
		s.orchestrator.Run(ctx, pass)
	}()
	return true
}
