package collectible

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Registry adapts the engine to the marketplace's asset registry contract.
// Transfers are performed as the marketplace operator, which must have been
// approved by the owner beforehand.
type Registry struct {
	engine   *Engine
	operator common.Address
}

// NewRegistry binds the engine to the operator address the marketplace acts
// as when moving sold tokens.
func NewRegistry(engine *Engine, operator common.Address) *Registry {
	return &Registry{engine: engine, operator: operator}
}

func (r *Registry) OwnerOf(contract common.Address, tokenID *uint256.Int) (common.Address, error) {
	return r.engine.OwnerOf(contract, tokenID)
}

// IsApprovedForTransfer accepts either getApproved(id) == operator or an
// operator-wide approval from the owner.
func (r *Registry) IsApprovedForTransfer(contract common.Address, tokenID *uint256.Int, operator common.Address) (bool, error) {
	tok, err := r.engine.token(contract, tokenID)
	if err != nil {
		return false, err
	}
	if tok.Approved == operator && operator != (common.Address{}) {
		return true, nil
	}
	return r.engine.IsApprovedForAll(contract, tok.Owner, operator)
}

func (r *Registry) Transfer(contract common.Address, tokenID *uint256.Int, from, to common.Address) error {
	return r.engine.TransferFrom(contract, tokenID, r.operator, from, to)
}
