package dto

import (
	"time"

	"github.com/customeros/ticketinbox/internal/enum"
)

// IngestedMessage is one decoded inbound message handed to the ingestor.
type IngestedMessage struct {
	// ExternalID is the normalised Message-ID, the per-message idempotency key
	ExternalID    string
	ReceivedAt    time.Time
	Subject       string
	Body          string
	SenderAddress string
	// InReplyToTicketRef is set when the subject carries a [#T-XXXXXXXX] token
	InReplyToTicketRef *string
	// References holds In-Reply-To followed by References, without angle brackets
	References []string
	UID        uint32
	// Classification flags bounces, auto replies and bulk mail
	Classification       enum.MessageClassification
	ClassificationReason string
	// Raw is the undecoded RFC 822 source
	Raw []byte
}
