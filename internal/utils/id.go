package utils

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func GenerateNanoIDWithPrefix(prefix string, size int) string {
	id, err := gonanoid.Generate(idAlphabet, size)
	if err != nil {
		panic(err)
	}
	if prefix == "" {
		return id
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}

// GenerateTicketRef returns the short human facing reference placed in subjects, e.g. T-4K9X2QPM.
func GenerateTicketRef() string {
	id, err := gonanoid.Generate(strings.ToUpper(idAlphabet), 8)
	if err != nil {
		panic(err)
	}
	return "T-" + id
}
