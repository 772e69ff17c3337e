package collectible

import "errors"

var (
	ErrInvalidToken        = errors.New("collectible: invalid token ID")
	ErrUnknownCollection   = errors.New("collectible: unknown collection")
	ErrInvalidCollection   = errors.New("collectible: name and symbol required")
	ErrInvalidAddress      = errors.New("collectible: invalid address")
	ErrNotOwnerOrApproved  = errors.New("collectible: caller is not token owner or approved")
	ErrIncorrectOwner      = errors.New("collectible: transfer from incorrect owner")
	ErrApproveToOwner      = errors.New("collectible: approval to current owner")
	ErrApproveToCaller     = errors.New("collectible: approve to caller")
	ErrCollectionExists    = errors.New("collectible: collection already registered")
	ErrTokenCounterOverrun = errors.New("collectible: token counter exhausted")

	errNilState = errors.New("collectible engine: state not configured")
)
