package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketinbox/config"
	"github.com/customeros/ticketinbox/dto"
	ticketinbox_errors "github.com/customeros/ticketinbox/errors"
	"github.com/customeros/ticketinbox/interfaces"
	"github.com/customeros/ticketinbox/internal/logger"
	"github.com/customeros/ticketinbox/internal/tracing"
)

const (
	AuthMechanismLogin = "login"
	AuthMechanismPlain = "plain"

	logoutTimeout  = 5 * time.Second
	listBatchSize  = 500
	sinceDayLayout = "2006-01-02"
	// covers +-14h zone offsets plus servers that treat SINCE as exclusive
	sinceSlackDays = 2
)

// Dialer opens IMAP sessions on the configured support mailbox.
type Dialer struct {
	cfg *config.MailTicketSyncConfig
	log logger.Logger
	// tlsConfig overrides the TLS settings, nil uses the server name from cfg
	tlsConfig *tls.Config
}

func NewDialer(cfg *config.MailTicketSyncConfig, log logger.Logger) *Dialer {
	return &Dialer{cfg: cfg, log: log}
}

type dialResult struct {
	client *client.Client
	err    error
}

// Dial connects and authenticates. It returns as soon as ctx is done, closing a
// connection that completes afterwards.
func (d *Dialer) Dial(ctx context.Context) (interfaces.MailClient, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Dialer.Dial")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("server", d.cfg.ImapServer)
	span.SetTag("port", d.cfg.ImapPort)
	span.SetTag("tls", d.cfg.ImapTLS)

	if d.cfg.ImapServer == "" || d.cfg.ImapUsername == "" {
		tracing.TraceErr(span, ticketinbox_errors.ErrSyncNotConfigured)
		return nil, ticketinbox_errors.ErrSyncNotConfigured
	}

	results := make(chan dialResult, 1)
	go func() {
		c, err := d.connect()
		results <- dialResult{client: c, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			tracing.TraceErr(span, res.err)
			return nil, res.err
		}
		return newClient(res.client, d.cfg, d.log), nil
	case <-ctx.Done():
		go func() {
			if res := <-results; res.client != nil {
				_ = res.client.Terminate()
			}
		}()
		tracing.TraceErr(span, ctx.Err())
		return nil, ctx.Err()
	}
}

func (d *Dialer) connect() (*client.Client, error) {
	serverAddr := fmt.Sprintf("%s:%d", d.cfg.ImapServer, d.cfg.ImapPort)

	dialer := &net.Dialer{
		Timeout:   d.cfg.ConnectTimeout(),
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if d.cfg.ImapTLS {
		tlsConfig := d.tlsConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: d.cfg.ImapServer}
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}

	c.Timeout = d.cfg.ConnectTimeout()
	if err := d.authenticate(c); err != nil {
		_ = c.Logout()
		return nil, err
	}
	c.Timeout = d.cfg.CommandTimeout()

	d.log.Debugf("connected to %s as %s", serverAddr, d.cfg.ImapUsername)
	return c, nil
}

func (d *Dialer) authenticate(c *client.Client) error {
	switch strings.ToLower(d.cfg.ImapAuthMechanism) {
	case AuthMechanismPlain:
		ok, err := c.SupportAuth(sasl.Plain)
		if err != nil {
			return errors.Wrap(err, "failed to read server capabilities")
		}
		if !ok {
			return errors.New("server does not support AUTH=PLAIN")
		}
		auth := sasl.NewPlainClient("", d.cfg.ImapUsername, d.cfg.ImapPassword)
		if err := c.Authenticate(auth); err != nil {
			return errors.Wrapf(err, "failed to authenticate as %s", d.cfg.ImapUsername)
		}
	case AuthMechanismLogin, "":
		if err := c.Login(d.cfg.ImapUsername, d.cfg.ImapPassword); err != nil {
			return errors.Wrapf(err, "failed to login as %s", d.cfg.ImapUsername)
		}
	default:
		return errors.Errorf("unsupported auth mechanism %q", d.cfg.ImapAuthMechanism)
	}
	return nil
}

type listedMessage struct {
	uid          uint32
	internalDate time.Time
}

// Client is one IMAP session reading the configured folder read-only.
type Client struct {
	c      *client.Client
	folder string
	log    logger.Logger

	pending []listedMessage
	pos     int

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newClient(c *client.Client, cfg *config.MailTicketSyncConfig, log logger.Logger) *Client {
	folder := cfg.ImapFolder
	if folder == "" {
		folder = "INBOX"
	}
	return &Client{c: c, folder: folder, log: log}
}

// Open lists the folder messages whose internal date is strictly after since,
// ordered by internal date then uid. SINCE has day granularity, is evaluated in
// each message's own zone and is exclusive on some servers, so the server query
// starts sinceSlackDays before the watermark day and the exact cut happens here.
func (cl *Client) Open(ctx context.Context, since *time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.Open")
	defer span.Finish()
	span.SetTag("folder", cl.folder)

	if cl.closed.Load() {
		return ticketinbox_errors.ErrClientClosed
	}
	return cl.withContext(ctx, func() error {
		if _, err := cl.c.Select(cl.folder, true); err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrapf(err, "failed to select folder %s", cl.folder)
		}

		criteria := imap.NewSearchCriteria()
		if since != nil {
			day, _ := time.Parse(sinceDayLayout, since.UTC().Format(sinceDayLayout))
			criteria.Since = day.AddDate(0, 0, -sinceSlackDays)
			span.LogKV("since", since.UTC().Format(time.RFC3339Nano))
		}
		uids, err := cl.c.UidSearch(criteria)
		if err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrap(err, "failed to search folder")
		}

		listed, err := cl.listDates(uids)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		cl.pending = cl.pending[:0]
		for _, m := range listed {
			if since == nil || m.internalDate.After(*since) {
				cl.pending = append(cl.pending, m)
			}
		}
		sort.Slice(cl.pending, func(i, j int) bool {
			if cl.pending[i].internalDate.Equal(cl.pending[j].internalDate) {
				return cl.pending[i].uid < cl.pending[j].uid
			}
			return cl.pending[i].internalDate.Before(cl.pending[j].internalDate)
		})
		cl.pos = 0
		span.SetTag("messages", len(cl.pending))
		return nil
	})
}

func (cl *Client) listDates(uids []uint32) ([]listedMessage, error) {
	listed := make([]listedMessage, 0, len(uids))
	for start := 0; start < len(uids); start += listBatchSize {
		end := start + listBatchSize
		if end > len(uids) {
			end = len(uids)
		}
		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[start:end]...)

		messages := make(chan *imap.Message, 16)
		done := make(chan error, 1)
		go func() {
			done <- cl.c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate}, messages)
		}()
		for msg := range messages {
			listed = append(listed, listedMessage{uid: msg.Uid, internalDate: msg.InternalDate.UTC()})
		}
		if err := <-done; err != nil {
			return nil, errors.Wrap(err, "failed to list message dates")
		}
	}
	return listed, nil
}

// FetchNext downloads and decodes the next listed message.
func (cl *Client) FetchNext(ctx context.Context) (*dto.IngestedMessage, error) {
	if cl.closed.Load() {
		return nil, ticketinbox_errors.ErrClientClosed
	}
	if cl.pos >= len(cl.pending) {
		return nil, io.EOF
	}
	listed := cl.pending[cl.pos]

	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.FetchNext")
	defer span.Finish()
	span.SetTag("uid", listed.uid)

	var raw []byte
	err := cl.withContext(ctx, func() error {
		var err error
		raw, err = cl.fetchRaw(listed.uid)
		return err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	msg, err := ParseMessage(raw, listed.internalDate, listed.uid)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	cl.pos++
	return msg, nil
}

func (cl *Client) fetchRaw(uid uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- cl.c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}
	if err := <-done; err != nil {
		return nil, errors.Wrapf(err, "failed to fetch message %d", uid)
	}
	if readErr != nil {
		return nil, errors.Wrapf(readErr, "failed to read message %d", uid)
	}
	if raw == nil {
		return nil, errors.Errorf("message %d has no body", uid)
	}
	return raw, nil
}

// Close logs out once. Concurrent callers wait for the first logout.
func (cl *Client) Close() error {
	cl.closeOnce.Do(func() {
		cl.closed.Store(true)
		cl.c.Timeout = logoutTimeout
		err := cl.c.Logout()
		if err != nil && err != client.ErrAlreadyLoggedOut {
			cl.log.Debugf("logout failed, terminating connection: %v", err)
			_ = cl.c.Terminate()
			cl.closeErr = err
		}
	})
	return cl.closeErr
}

// withContext runs a blocking IMAP command and gives up when ctx is done. The
// command keeps running until the connection is closed.
func (cl *Client) withContext(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
