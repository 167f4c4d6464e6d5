package ticketsync

import (
	"context"
	"sync"
	"time"

	"github.com/customeros/ticketinbox/dto"
	ticketinbox_errors "github.com/customeros/ticketinbox/errors"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/logger"
)

// CancellationController turns a stop request into a cooperative abort of the
// running pass, backed by a watchdog that forces the state back to idle when the
// pass does not wind down within the abort timeout.
type CancellationController struct {
	state    *SyncState
	timeout  time.Duration
	notifier *syncNotifier
	log      logger.Logger

	mu        sync.Mutex
	watchdogs map[uint64]*time.Timer
}

func NewCancellationController(state *SyncState, abortTimeout time.Duration, notifier *syncNotifier, log logger.Logger) *CancellationController {
	return &CancellationController{
		state:     state,
		timeout:   abortTimeout,
		notifier:  notifier,
		log:       log,
		watchdogs: make(map[uint64]*time.Timer),
	}
}

// Stop never blocks on the mail client. Cleanup may still be running when it returns.
func (c *CancellationController) Stop() dto.StopResult {
	req, running := c.state.requestAbort()
	if !running {
		return dto.StopResult{}
	}

	if req.first {
		c.log.Infof("abort requested for sync pass %s", req.pass.ID)
		if req.cancel != nil {
			req.cancel()
		}
		if req.client != nil {
			go c.closeQuietly(req.pass, req.client)
		}
		c.arm(req.pass)
	}

	return dto.StopResult{WasRunning: true, AbortRequested: true}
}

// Disarm cancels the watchdog of a pass that finished on its own.
func (c *CancellationController) Disarm(pass Pass) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.watchdogs[pass.Gen]; ok {
		timer.Stop()
		delete(c.watchdogs, pass.Gen)
	}
}

func (c *CancellationController) arm(pass Pass) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.watchdogs[pass.Gen]; ok {
		return
	}
	c.watchdogs[pass.Gen] = time.AfterFunc(c.timeout, func() {
		c.expire(pass)
	})
}

func (c *CancellationController) expire(pass Pass) {
	c.mu.Lock()
	delete(c.watchdogs, pass.Gen)
	c.mu.Unlock()

	if !c.state.ResetPass(pass) {
		return
	}
	c.log.Warnf("sync pass %s did not finish within %s of abort, state forcibly reset", pass.ID, c.timeout)
	c.notifier.notify(context.Background(), pass, enum.SyncEventAbortTimeout, enum.SyncStatusError, map[string]interface{}{
		"abortTimeoutMs": c.timeout.Milliseconds(),
	})
}

func (c *CancellationController) closeQuietly(pass Pass, client interfaces.MailClient) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("panic while closing mail client of pass %s: %v", pass.ID, r)
		}
	}()

	if err := client.Close(); err != nil {
		c.log.Warnf("pass %s: %v", pass.ID, ticketinbox_errors.NewCloseError(err))
	}
}
