package errors

import (
	stderrors "errors"

	"nftmarket/native/bank"
	"nftmarket/native/collectible"
	"nftmarket/native/marketplace"
)

var (
	ErrUnauthorized = stderrors.New("core: caller not authorised")
	ErrInvalidInput = stderrors.New("core: invalid input")
)

// Classify maps an error from any engine driven by the processor to the
// marketplace error classes used for metrics and API status codes.
func Classify(err error) marketplace.ErrorClass {
	if err == nil {
		return marketplace.ClassNone
	}
	if class := marketplace.Classify(err); class != marketplace.ClassInternal {
		return class
	}
	switch {
	case stderrors.Is(err, ErrUnauthorized),
		stderrors.Is(err, bank.ErrVaultAccount),
		stderrors.Is(err, collectible.ErrNotOwnerOrApproved),
		stderrors.Is(err, collectible.ErrApproveToOwner),
		stderrors.Is(err, collectible.ErrApproveToCaller):
		return marketplace.ClassAuthorization
	case stderrors.Is(err, collectible.ErrInvalidToken),
		stderrors.Is(err, collectible.ErrUnknownCollection),
		stderrors.Is(err, collectible.ErrIncorrectOwner),
		stderrors.Is(err, collectible.ErrCollectionExists):
		return marketplace.ClassState
	case stderrors.Is(err, ErrInvalidInput),
		stderrors.Is(err, collectible.ErrInvalidCollection),
		stderrors.Is(err, collectible.ErrInvalidAddress),
		stderrors.Is(err, bank.ErrInvalidAmount),
		stderrors.Is(err, bank.ErrInvalidAddress):
		return marketplace.ClassValue
	case stderrors.Is(err, bank.ErrInsufficientFunds):
		return marketplace.ClassFunds
	default:
		return marketplace.ClassInternal
	}
}
