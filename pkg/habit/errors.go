package habit

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrExpiredInvite     = errors.New("invite expired")
	ErrInvalidPartner    = errors.New("invalid partner")
	ErrInvalidTransition = errors.New("invalid partnership transition")
	ErrInvalidDate       = errors.New("invalid date")
	ErrValidation        = errors.New("validation failed")
)
