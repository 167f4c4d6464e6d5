package repository

import (
	"errors"

	ticketinbox_errors "github.com/customeros/ticketinbox/errors"
)

var (
	ErrTicketNotFound = ticketinbox_errors.ErrTicketNotFound
	ErrInvalidInput   = errors.New("invalid input parameters")
)
