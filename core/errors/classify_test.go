package errors

import (
	"fmt"
	"testing"

	"nftmarket/native/bank"
	"nftmarket/native/collectible"
	"nftmarket/native/marketplace"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want marketplace.ErrorClass
	}{
		{nil, marketplace.ClassNone},
		{marketplace.ErrNotOwner, marketplace.ClassAuthorization},
		{fmt.Errorf("buy: %w", marketplace.ErrPriceNotMet), marketplace.ClassValue},
		{collectible.ErrNotOwnerOrApproved, marketplace.ClassAuthorization},
		{collectible.ErrInvalidToken, marketplace.ClassState},
		{bank.ErrInsufficientFunds, marketplace.ClassFunds},
		{fmt.Errorf("bank: release: %w", bank.ErrInsufficientFunds), marketplace.ClassFunds},
		{ErrInvalidInput, marketplace.ClassValue},
		{fmt.Errorf("disk"), marketplace.ClassInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
