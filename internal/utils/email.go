package utils

import (
	"regexp"
	"strings"
)

var (
	subjectPrefixRegex = regexp.MustCompile(`(?i)^(Re|Fwd|Fw|Aw|Sv|Wg)(\[\d+\])?:\s*`)
	ticketRefRegex     = regexp.MustCompile(`\[#(T-[A-Z0-9]{8})\]`)
)

// NormalizeEmailSubject removes prefixes like Re:, Fwd:, etc. from a subject
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for subjectPrefixRegex.MatchString(subject) {
		subject = subjectPrefixRegex.ReplaceAllString(subject, "")
		subject = strings.TrimSpace(subject)
	}
	return subject
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// SplitMessageIDs parses In-Reply-To / References header values into bare message ids.
func SplitMessageIDs(header string) []string {
	header = strings.ReplaceAll(header, "\r\n", " ")
	header = strings.ReplaceAll(header, "\n", " ")

	var ids []string
	for _, ref := range strings.Fields(header) {
		ref = NormalizeMessageID(ref)
		if ref != "" && !IsStringInSlice(ref, ids) {
			ids = append(ids, ref)
		}
	}
	return ids
}

// ExtractTicketRef returns the ticket reference from a "[#T-XXXXXXXX]" subject token.
func ExtractTicketRef(subject string) (string, bool) {
	match := ticketRefRegex.FindStringSubmatch(subject)
	if len(match) < 2 {
		return "", false
	}
	return match[1], true
}


