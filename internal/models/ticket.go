package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/ticketinbox/internal/enum"
	"github.com/customeros/ticketinbox/internal/utils"
)

// Ticket is a support ticket opened by an inbound email.
type Ticket struct {
	ID            string            `gorm:"column:id;type:varchar(50);primaryKey"`
	Ref           string            `gorm:"column:ref;type:varchar(20);uniqueIndex;not null"`
	Source        enum.TicketSource `gorm:"column:source;type:varchar(20);not null"`
	ExternalID    string            `gorm:"column:external_id;type:varchar(255);uniqueIndex;not null"`
	Subject       string            `gorm:"column:subject;type:varchar(1000)"`
	Body          string            `gorm:"column:body;type:text"`
	SenderAddress string            `gorm:"column:sender_address;type:varchar(255);index"`
	References    []string          `gorm:"column:message_references;type:text;serializer:json"`
	ReceivedAt    time.Time         `gorm:"column:received_at;type:timestamp;index;not null"`

	Classification       enum.MessageClassification `gorm:"column:classification;type:varchar(30);index"`
	ClassificationReason string                     `gorm:"column:classification_reason;type:varchar(255)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Ticket) TableName() string {
	return "tickets"
}

func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("tckt", 16)
	}
	if t.Ref == "" {
		t.Ref = utils.GenerateTicketRef()
	}
	if t.Source == "" {
		t.Source = enum.TicketSourceEmail
	}
	return nil
}

// TicketReply is an inbound email appended to an existing ticket.
type TicketReply struct {
	ID            string    `gorm:"column:id;type:varchar(50);primaryKey"`
	TicketID      string    `gorm:"column:ticket_id;type:varchar(50);index;not null"`
	ExternalID    string    `gorm:"column:external_id;type:varchar(255);uniqueIndex;not null"`
	Subject       string    `gorm:"column:subject;type:varchar(1000)"`
	Body          string    `gorm:"column:body;type:text"`
	SenderAddress string    `gorm:"column:sender_address;type:varchar(255);index"`
	References    []string  `gorm:"column:message_references;type:text;serializer:json"`
	ReceivedAt    time.Time `gorm:"column:received_at;type:timestamp;index;not null"`

	Classification       enum.MessageClassification `gorm:"column:classification;type:varchar(30)"`
	ClassificationReason string                     `gorm:"column:classification_reason;type:varchar(255)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (TicketReply) TableName() string {
	return "ticket_replies"
}

func (r *TicketReply) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = utils.GenerateNanoIDWithPrefix("rply", 16)
	}
	return nil
}
