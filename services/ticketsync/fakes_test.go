package ticketsync

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/customeros/ticketinbox/dto"
	ticketinbox_errors "github.com/customeros/ticketinbox/errors"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/logger"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return baseTime.Add(time.Duration(minutes) * time.Minute)
}

func newMessage(externalID string, receivedAt time.Time) *dto.IngestedMessage {
	return &dto.IngestedMessage{
		ExternalID:    externalID,
		ReceivedAt:    receivedAt,
		Subject:       "subject of " + externalID,
		Body:          "body of " + externalID,
		SenderAddress: "customer@example.com",
	}
}

// fakeMailbox serves messages to every client it dials.
type fakeMailbox struct {
	mu       sync.Mutex
	messages []*dto.IngestedMessage
	dialErr  error
	fetchErr map[string]error
	closeErr error
	// blockOn makes FetchNext wait for the pass context before returning that message
	blockOn string
	// hang makes FetchNext and Close block until the channel is closed, ignoring the context
	hang chan struct{}

	blocked     chan struct{}
	blockedOnce sync.Once
	dials       int32
	closes      int32
	opened      []*time.Time
}

func newFakeMailbox(messages ...*dto.IngestedMessage) *fakeMailbox {
	return &fakeMailbox{
		messages: messages,
		fetchErr: map[string]error{},
		blocked:  make(chan struct{}),
	}
}

func (m *fakeMailbox) Dial(ctx context.Context) (interfaces.MailClient, error) {
	atomic.AddInt32(&m.dials, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dialErr != nil {
		return nil, m.dialErr
	}
	return &fakeClient{box: m}, nil
}

func (m *fakeMailbox) set(fn func(m *fakeMailbox)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *fakeMailbox) signalBlocked() {
	m.blockedOnce.Do(func() { close(m.blocked) })
}

func (m *fakeMailbox) waitBlocked(t *testing.T) {
	t.Helper()
	select {
	case <-m.blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("mail client never reached the blocking fetch")
	}
}

func (m *fakeMailbox) dialCount() int {
	return int(atomic.LoadInt32(&m.dials))
}

func (m *fakeMailbox) closeCount() int {
	return int(atomic.LoadInt32(&m.closes))
}

func (m *fakeMailbox) lastOpenedSince() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.opened) == 0 {
		return nil
	}
	return m.opened[len(m.opened)-1]
}

type fakeClient struct {
	box     *fakeMailbox
	pending []*dto.IngestedMessage
	pos     int
}

func (c *fakeClient) Open(ctx context.Context, since *time.Time) error {
	c.box.mu.Lock()
	defer c.box.mu.Unlock()

	c.box.opened = append(c.box.opened, since)
	c.pending = nil
	for _, msg := range c.box.messages {
		if since == nil || msg.ReceivedAt.After(*since) {
			c.pending = append(c.pending, msg)
		}
	}
	sort.SliceStable(c.pending, func(i, j int) bool {
		return c.pending[i].ReceivedAt.Before(c.pending[j].ReceivedAt)
	})
	return nil
}

func (c *fakeClient) FetchNext(ctx context.Context) (*dto.IngestedMessage, error) {
	if c.pos >= len(c.pending) {
		return nil, io.EOF
	}
	msg := c.pending[c.pos]

	c.box.mu.Lock()
	hang, blockOn, fetchErr := c.box.hang, c.box.blockOn, c.box.fetchErr[msg.ExternalID]
	c.box.mu.Unlock()

	if hang != nil {
		c.box.signalBlocked()
		<-hang
		return nil, fmt.Errorf("connection reset")
	}
	if blockOn == msg.ExternalID {
		c.box.signalBlocked()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	c.pos++
	return msg, nil
}

func (c *fakeClient) Close() error {
	atomic.AddInt32(&c.box.closes, 1)

	c.box.mu.Lock()
	hang, closeErr := c.box.hang, c.box.closeErr
	c.box.mu.Unlock()

	if hang != nil {
		<-hang
	}
	return closeErr
}

// memTicketStore keeps tickets in memory and records every write in order.
type memTicketStore struct {
	mu         sync.Mutex
	seq        int
	tickets    map[string]string
	refs       map[string]string
	byExternal map[string]string
	replies    map[string][]string
	writes     []string
	failOn     map[string]error
}

func newMemTicketStore() *memTicketStore {
	return &memTicketStore{
		tickets:    map[string]string{},
		refs:       map[string]string{},
		byExternal: map[string]string{},
		replies:    map[string][]string{},
		failOn:     map[string]error{},
	}
}

func (s *memTicketStore) CreateTicket(ctx context.Context, fields interfaces.TicketFields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failOn[fields.ExternalID]; err != nil {
		return "", err
	}
	if ticketID, ok := s.byExternal[fields.ExternalID]; ok {
		return ticketID, nil
	}
	s.seq++
	ticketID := fmt.Sprintf("tckt_%d", s.seq)
	s.tickets[ticketID] = fields.ExternalID
	s.refs[fmt.Sprintf("T-%08d", s.seq)] = ticketID
	s.byExternal[fields.ExternalID] = ticketID
	s.writes = append(s.writes, fields.ExternalID)
	return ticketID, nil
}

func (s *memTicketStore) AppendReply(ctx context.Context, ticketID string, fields interfaces.TicketFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failOn[fields.ExternalID]; err != nil {
		return err
	}
	if _, ok := s.tickets[ticketID]; !ok {
		return ticketinbox_errors.ErrTicketNotFound
	}
	if _, ok := s.byExternal[fields.ExternalID]; ok {
		return nil
	}
	s.byExternal[fields.ExternalID] = ticketID
	s.replies[ticketID] = append(s.replies[ticketID], fields.ExternalID)
	s.writes = append(s.writes, fields.ExternalID)
	return nil
}

func (s *memTicketStore) FindTicketIDByRef(ctx context.Context, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[ref], nil
}

func (s *memTicketStore) FindTicketIDByExternalIDs(ctx context.Context, externalIDs []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range externalIDs {
		if ticketID, ok := s.byExternal[id]; ok {
			return ticketID, nil
		}
	}
	return "", nil
}

func (s *memTicketStore) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byExternal[externalID]
	return ok, nil
}

func (s *memTicketStore) setFailure(externalID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, externalID)
		return
	}
	s.failOn[externalID] = err
}

func (s *memTicketStore) writtenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *memTicketStore) deleteTicket(ticketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, ticketID)
}

type memWatermarkStore struct {
	mu    sync.Mutex
	value *time.Time
	sets  int
}

func (s *memWatermarkStore) GetLastSuccessfulSync(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return nil, nil
	}
	value := *s.value
	return &value, nil
}

func (s *memWatermarkStore) SetLastSuccessfulSync(ctx context.Context, t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value != nil && !t.After(*s.value) {
		return false, nil
	}
	s.value = &t
	s.sets++
	return true, nil
}

func (s *memWatermarkStore) current() *time.Time {
	value, _ := s.GetLastSuccessfulSync(context.Background())
	return value
}

type recordedEvent struct {
	eventType enum.SyncEventType
	status    enum.SyncEventStatus
	details   map[string]interface{}
}

type recordingNotifications struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifications) LogSyncEvent(ctx context.Context, eventType enum.SyncEventType, status enum.SyncEventStatus, details map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{eventType: eventType, status: status, details: details})
	return nil
}

func (n *recordingNotifications) types() []enum.SyncEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]enum.SyncEventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.eventType)
	}
	return types
}

func (n *recordingNotifications) find(eventType enum.SyncEventType) (recordedEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.eventType == eventType {
			return e, true
		}
	}
	return recordedEvent{}, false
}

func (n *recordingNotifications) has(eventType enum.SyncEventType) bool {
	_, ok := n.find(eventType)
	return ok
}

type recordingArchive struct {
	mu     sync.Mutex
	keys   []string
	failOn map[string]error
}

func (a *recordingArchive) Store(ctx context.Context, ticketID, externalID string, raw []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.failOn[externalID]; err != nil {
		return "", err
	}
	key := ticketID + "/" + externalID
	a.keys = append(a.keys, key)
	return key, nil
}

func (a *recordingArchive) stored() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.keys...)
}

type testHarness struct {
	scheduler     *SyncScheduler
	mailbox       *fakeMailbox
	tickets       *memTicketStore
	watermarks    *memWatermarkStore
	notifications *recordingNotifications
	archive       *recordingArchive
}

func newTestHarness(t *testing.T, mailbox *fakeMailbox, opts Options) *testHarness {
	t.Helper()
	if opts.AbortTimeout == 0 {
		opts.AbortTimeout = 5 * time.Second
	}
	h := &testHarness{
		mailbox:       mailbox,
		tickets:       newMemTicketStore(),
		watermarks:    &memWatermarkStore{},
		notifications: &recordingNotifications{},
		archive:       &recordingArchive{failOn: map[string]error{}},
	}
	h.scheduler = NewSyncScheduler(Dependencies{
		Dialer:        mailbox,
		Tickets:       h.tickets,
		Watermarks:    h.watermarks,
		Notifications: h.notifications,
		Archive:       h.archive,
		Logger:        logger.NewNopLogger(),
	}, opts)
	return h
}

// runPass starts a pass and waits for it to return.
func (h *testHarness) runPass(t *testing.T) {
	t.Helper()
	h.scheduler.StartTicketInboxSync()
	h.wait(t)
}

func (h *testHarness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.scheduler.Wait(ctx))
}
