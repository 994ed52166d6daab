package store

import "errors"

var (
	ErrVisitNotFound    = errors.New("visit not found")
	ErrAgendaNotFound   = errors.New("agenda not found")
	ErrDayNotFound      = errors.New("day not found")
	ErrInvalidState     = errors.New("invalid visit state")
	ErrVisitNotInAgenda = errors.New("visit not in agenda")
	ErrOrderMismatch    = errors.New("order does not match agenda members")
	ErrSessionNotFound  = errors.New("session not found")
)
