package enum

type TicketSource string

const (
	TicketSourceEmail TicketSource = "email"
)

type IngestOutcome string

const (
	IngestOutcomeTicketCreated IngestOutcome = "ticket_created"
	IngestOutcomeReplyAppended IngestOutcome = "reply_appended"
	IngestOutcomeDuplicate     IngestOutcome = "duplicate"
)

func (o IngestOutcome) String() string {
	return string(o)
}

// MessageClassification tags inbound mail that is not written by a person.
type MessageClassification string

const (
	MessageClassificationOK            MessageClassification = "ok"
	MessageClassificationBounce        MessageClassification = "bounce"
	MessageClassificationAutoResponder MessageClassification = "auto_responder"
	MessageClassificationBulk          MessageClassification = "bulk"
)

func (c MessageClassification) String() string {
	return string(c)
}
