package ticketinbox_errors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrSyncNotConfigured = errors.New("ticket inbox sync is not configured")
	ErrClientClosed      = errors.New("mail client closed")
	ErrTicketNotFound    = errors.New("ticket not found")
)

type SyncErrorKind string

const (
	KindConnect SyncErrorKind = "connect"
	KindFetch   SyncErrorKind = "fetch"
	KindIngest  SyncErrorKind = "ingest"
	KindClose   SyncErrorKind = "close"
)

// SyncError classifies a failure inside a sync pass.
type SyncError struct {
	Kind       SyncErrorKind
	ExternalID string
	Err        error
}

func (e *SyncError) Error() string {
	if e.ExternalID != "" {
		return fmt.Sprintf("%s error (message %s): %v", e.Kind, e.ExternalID, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func (e *SyncError) Cause() error {
	return e.Err
}

func NewConnectError(err error) error {
	return &SyncError{Kind: KindConnect, Err: err}
}

func NewFetchError(err error) error {
	return &SyncError{Kind: KindFetch, Err: err}
}

func NewIngestError(externalID string, err error) error {
	return &SyncError{Kind: KindIngest, ExternalID: externalID, Err: err}
}

func NewCloseError(err error) error {
	return &SyncError{Kind: KindClose, Err: err}
}

func KindOf(err error) (SyncErrorKind, bool) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Kind, true
	}
	return "", false
}

func IsConnectError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindConnect
}

func IsFetchError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindFetch
}

func IsIngestError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindIngest
}

func IsCloseError(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindClose
}
