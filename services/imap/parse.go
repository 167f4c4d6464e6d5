package imap

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/mail"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/customeros/ticketinbox/dto"
	"github.com/customeros/ticketinbox/internal/utils"
	"github.com/customeros/ticketinbox/services/email_filter"
)

const syntheticMessageIDDomain = "ticketinbox.invalid"

// ParseMessage decodes a raw RFC 822 message. receivedAt is the server internal
// date; the Date header is only used when it is missing.
func ParseMessage(raw []byte, receivedAt time.Time, uid uint32) (*dto.IngestedMessage, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse message %d", uid)
	}

	msg := &dto.IngestedMessage{
		ExternalID: utils.NormalizeMessageID(envelope.GetHeader("Message-ID")),
		Subject:    strings.TrimSpace(envelope.GetHeader("Subject")),
		UID:        uid,
		Raw:        raw,
	}
	if msg.ExternalID == "" {
		msg.ExternalID = syntheticMessageID(raw)
	}

	msg.ReceivedAt = receivedAt.UTC()
	if receivedAt.IsZero() {
		if date, err := mail.ParseDate(envelope.GetHeader("Date")); err == nil {
			msg.ReceivedAt = date.UTC()
		}
	}

	msg.Body = strings.TrimSpace(envelope.Text)
	if msg.Body == "" && envelope.HTML != "" {
		if text, err := htmlToPlainText(envelope.HTML); err == nil {
			msg.Body = text
		}
	}

	msg.SenderAddress = senderAddress(envelope)
	msg.Classification, msg.ClassificationReason = email_filter.Classify(classifierHeaders(envelope), msg.Subject)

	if ref, ok := utils.ExtractTicketRef(msg.Subject); ok {
		msg.InReplyToTicketRef = &ref
	}

	for _, header := range []string{"In-Reply-To", "References"} {
		for _, id := range utils.SplitMessageIDs(envelope.GetHeader(header)) {
			if !utils.IsStringInSlice(id, msg.References) {
				msg.References = append(msg.References, id)
			}
		}
	}

	return msg, nil
}

func senderAddress(envelope *enmime.Envelope) string {
	for _, header := range []string{"From", "Sender", "Reply-To"} {
		addresses, err := envelope.AddressList(header)
		if err != nil || len(addresses) == 0 {
			continue
		}
		validation := mailvalidate.ValidateEmailSyntax(addresses[0].Address)
		if validation.IsValid {
			return validation.CleanEmail
		}
	}
	return ""
}

func classifierHeaders(envelope *enmime.Envelope) email_filter.Headers {
	_, returnPathExists := envelope.Root.Header["Return-Path"]
	from := envelope.GetHeader("From")
	if addresses, err := envelope.AddressList("From"); err == nil && len(addresses) > 0 {
		from = addresses[0].Address
	}
	return email_filter.Headers{
		From:               from,
		Sender:             envelope.GetHeader("Sender"),
		ReturnPath:         strings.Trim(envelope.GetHeader("Return-Path"), "<> "),
		ReturnPathExists:   returnPathExists,
		Precedence:         envelope.GetHeader("Precedence"),
		AutoSubmitted:      envelope.GetHeader("Auto-Submitted"),
		XAutoreply:         envelope.GetHeader("X-Autoreply"),
		XAutoresponse:      envelope.GetHeader("X-Autorespond"),
		XFailedRecipients:  envelope.GetHeader("X-Failed-Recipients"),
		ContentDescription: envelope.GetHeader("Content-Description"),
		ListUnsubscribe:    envelope.GetHeader("List-Unsubscribe") != "",
		ListID:             envelope.GetHeader("List-Id"),
	}
}

// syntheticMessageID derives a stable id from the content so redelivery of a
// message without Message-ID still deduplicates.
func syntheticMessageID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:16]) + "@" + syntheticMessageIDDomain
}

func htmlToPlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style").Each(func(i int, el *goquery.Selection) {
		el.Remove()
	})

	text := strings.TrimSpace(doc.Find("body").Text())
	text = strings.ReplaceAll(text, "\n\n", "\n")
	return text, nil
}
