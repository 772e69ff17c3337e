package marketplace

import (
	"errors"

	"nftmarket/native/common"
)

var (
	ErrNotOwner            = errors.New("marketplace: not owner")
	ErrNotApproved         = errors.New("marketplace: not approved for marketplace")
	ErrAlreadyListed       = errors.New("marketplace: already listed")
	ErrNotListed           = errors.New("marketplace: not listed")
	ErrPriceMustBePositive = errors.New("marketplace: price must be above zero")
	ErrPriceNotMet         = errors.New("marketplace: price not met")
	ErrNothingToWithdraw   = errors.New("marketplace: no proceeds")
	ErrReleaseFailed       = errors.New("marketplace: proceeds release failed")
	ErrBalanceOverflow     = errors.New("marketplace: proceeds balance overflow")
	ErrInvalidAddress      = errors.New("marketplace: invalid address")
	ErrRegistry            = errors.New("marketplace: asset registry lookup failed")
	ErrTransferFailed      = errors.New("marketplace: asset transfer failed")

	ErrModulePaused = common.ErrModulePaused

	errNilState    = errors.New("marketplace engine: state not configured")
	errNilRegistry = errors.New("marketplace engine: asset registry not configured")
	errNilReleaser = errors.New("marketplace engine: funds releaser not configured")
)

// ErrorClass groups failures the way callers react to them.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassAuthorization ErrorClass = "authorization"
	ClassState         ErrorClass = "state"
	ClassValue         ErrorClass = "value"
	ClassFunds         ErrorClass = "funds"
	ClassCollaborator  ErrorClass = "collaborator"
	ClassPaused        ErrorClass = "paused"
	ClassInternal      ErrorClass = "internal"
)

// Classify maps an error returned by the engine (wrapped or not) to its class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotApproved):
		return ClassAuthorization
	case errors.Is(err, ErrAlreadyListed), errors.Is(err, ErrNotListed):
		return ClassState
	case errors.Is(err, ErrPriceMustBePositive), errors.Is(err, ErrPriceNotMet), errors.Is(err, ErrInvalidAddress):
		return ClassValue
	case errors.Is(err, ErrNothingToWithdraw), errors.Is(err, ErrReleaseFailed):
		return ClassFunds
	case errors.Is(err, ErrRegistry), errors.Is(err, ErrTransferFailed):
		return ClassCollaborator
	case errors.Is(err, ErrModulePaused):
		return ClassPaused
	default:
		return ClassInternal
	}
}
