package email_filter

import (
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"

	"github.com/customeros/ticketinbox/internal/enum"
)

// Headers holds the header values the classifier looks at.
type Headers struct {
	From               string
	Sender             string
	ReturnPath         string
	ReturnPathExists   bool
	Precedence         string
	AutoSubmitted      string
	XAutoreply         string
	XAutoresponse      string
	XFailedRecipients  string
	ContentDescription string
	ListUnsubscribe    bool
	ListID             string
}

var bounceSubjects = []string{
	"mail delivery failure",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

// Classify checks bounces first, then auto responders, then bulk mail. The
// reason names the header or rule that matched.
func Classify(headers Headers, subject string) (enum.MessageClassification, string) {
	if ok, reason := isBounceNotification(headers, subject); ok {
		return enum.MessageClassificationBounce, reason
	}
	if ok, reason := isAutoresponder(headers); ok {
		return enum.MessageClassificationAutoResponder, reason
	}
	if ok, reason := isBulkEmail(headers); ok {
		return enum.MessageClassificationBulk, reason
	}
	return enum.MessageClassificationOK, ""
}

func isBounceNotification(headers Headers, subject string) (bool, string) {
	switch {
	case headers.XFailedRecipients != "":
		return true, "X-FAILED-RECIPIENTS header present"
	case headers.ReturnPathExists && headers.ReturnPath == "":
		return true, "RETURN-PATH is the null sender"
	case strings.EqualFold(headers.ContentDescription, "delivery report"):
		return true, "CONTENT-DESCRIPTION: DELIVERY REPORT header present"
	case hasBounceKeywords(headers.ReturnPath):
		return true, "RETURN-PATH contains bounce keywords"
	case hasBounceKeywords(headers.From):
		return true, "FROM contains bounce keywords"
	case isBounceSubject(subject):
		return true, "SUBJECT contains bounce keywords"
	default:
		return false, ""
	}
}

func isAutoresponder(headers Headers) (bool, string) {
	switch {
	case headers.XAutoreply != "":
		return true, "X-AUTOREPLY header present"
	case headers.XAutoresponse != "":
		return true, "X-AUTORESPONSE header present"
	case headers.AutoSubmitted != "" && !strings.EqualFold(headers.AutoSubmitted, "no"):
		return true, "AUTO-SUBMITTED header present"
	case strings.EqualFold(headers.Precedence, "auto_reply"):
		return true, "PRECEDENCE: AUTO_REPLY header present"
	default:
		return false, ""
	}
}

func isBulkEmail(headers Headers) (bool, string) {
	switch {
	case headers.ListUnsubscribe:
		return true, "UNSUBSCRIBE header present"
	case headers.ListID != "":
		return true, "LIST-ID header present"
	case strings.EqualFold(headers.Precedence, "bulk"), strings.EqualFold(headers.Precedence, "list"):
		return true, "PRECEDENCE: BULK header present"
	}

	if headers.From == "" {
		return false, ""
	}
	validation := mailvalidate.ValidateEmailSyntax(headers.From)
	if validation.IsSystemGenerated {
		return true, "FROM is system generated"
	}
	return false, ""
}

func hasBounceKeywords(str string) bool {
	return strings.Contains(strings.ToLower(str), "mailer-daemon")
}

func isBounceSubject(subject string) bool {
	subject = strings.ToLower(subject)
	for _, phrase := range bounceSubjects {
		if strings.Contains(subject, phrase) {
			return true
		}
	}
	return false
}
