package collectible

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/text/unicode/norm"
)

// ModuleName identifies the collectible registry for pause control.
const ModuleName = "collectible"

// Collection describes a registered ERC-721 style contract. Every token of a
// collection shares the same metadata URI.
type Collection struct {
	Address      common.Address
	Creator      common.Address
	Name         string
	Symbol       string
	TokenURI     string
	TokenCounter uint64
}

// Clone returns a copy of the collection.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Token is the stored ownership record of a minted token. Approved is the
// zero address when no single-token approval is set.
type Token struct {
	Owner    common.Address
	Approved common.Address
}

// Clone returns a copy of the token record.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// SanitizeCollection NFKC-normalises and trims the descriptive fields and
// validates that the collection can be stored. Full-width and compatibility
// forms of a symbol collapse to the same text.
func SanitizeCollection(c *Collection) (*Collection, error) {
	if c == nil {
		return nil, ErrInvalidCollection
	}
	clone := c.Clone()
	clone.Name = strings.TrimSpace(norm.NFKC.String(clone.Name))
	clone.Symbol = strings.TrimSpace(norm.NFKC.String(clone.Symbol))
	clone.TokenURI = strings.TrimSpace(clone.TokenURI)
	if clone.Name == "" || clone.Symbol == "" {
		return nil, ErrInvalidCollection
	}
	if clone.Creator == (common.Address{}) {
		return nil, ErrInvalidAddress
	}
	return clone, nil
}
