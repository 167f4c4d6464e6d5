package email_filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/ticketinbox/internal/enum"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		headers  Headers
		subject  string
		expected enum.MessageClassification
	}{
		{
			name:     "customer email",
			headers:  Headers{From: "jane@example.com"},
			subject:  "Cannot log in",
			expected: enum.MessageClassificationOK,
		},
		{
			name:     "mailer daemon",
			headers:  Headers{From: "MAILER-DAEMON@mx.example.com"},
			subject:  "Re: your ticket",
			expected: enum.MessageClassificationBounce,
		},
		{
			name:     "bounce subject",
			headers:  Headers{From: "postmaster@example.com"},
			subject:  "Undelivered Mail Returned to Sender",
			expected: enum.MessageClassificationBounce,
		},
		{
			name:     "out of office",
			headers:  Headers{From: "jane@example.com", AutoSubmitted: "auto-replied"},
			subject:  "Out of office",
			expected: enum.MessageClassificationAutoResponder,
		},
		{
			name:     "auto submitted no",
			headers:  Headers{From: "jane@example.com", AutoSubmitted: "no"},
			subject:  "Question",
			expected: enum.MessageClassificationOK,
		},
		{
			name:     "newsletter",
			headers:  Headers{From: "news@example.com", ListUnsubscribe: true},
			subject:  "March product update",
			expected: enum.MessageClassificationBulk,
		},
		{
			name:     "precedence bulk",
			headers:  Headers{From: "jane@example.com", Precedence: "Bulk"},
			subject:  "Hello",
			expected: enum.MessageClassificationBulk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classification, reason := Classify(tt.headers, tt.subject)

			assert.Equal(t, tt.expected, classification)
			if tt.expected == enum.MessageClassificationOK {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}
