package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"nftmarket/core"
	"nftmarket/native/collectible"
	"nftmarket/native/marketplace"
)

type listingResponse struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Seller   string `json:"seller,omitempty"`
	Price    string `json:"price,omitempty"`
	Listed   bool   `json:"listed"`
}

type listRequest struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Price    string `json:"price"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	var req listRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	contract, err := parseAddress(req.Contract)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	tokenID, err := parseAmount(req.TokenID)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.backend.List(r.Context(), contract, tokenID, price, caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listingResponse{
		Contract: contract.Hex(),
		TokenID:  tokenID.Dec(),
		Seller:   caller.Hex(),
		Price:    price.Dec(),
		Listed:   true,
	})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	listing, ok, err := s.backend.GetListing(contract, tokenID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, listingResponse{Contract: contract.Hex(), TokenID: tokenID.Dec()})
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{
		Contract: contract.Hex(),
		TokenID:  tokenID.Dec(),
		Seller:   listing.Seller.Hex(),
		Price:    listing.Price.Dec(),
		Listed:   true,
	})
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	price, err := parseAmount(req.Price)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.backend.UpdateListing(r.Context(), contract, tokenID, price, caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{
		Contract: contract.Hex(),
		TokenID:  tokenID.Dec(),
		Seller:   caller.Hex(),
		Price:    price.Dec(),
		Listed:   true,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.backend.CancelListing(r.Context(), contract, tokenID, caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingResponse{Contract: contract.Hex(), TokenID: tokenID.Dec()})
}

type buyRequest struct {
	Payment string `json:"payment"`
}

type buyResponse struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Buyer    string `json:"buyer"`
	Paid     string `json:"paid"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	buyer, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.backend.Buy(r.Context(), contract, tokenID, payment, buyer); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buyResponse{
		Contract: contract.Hex(),
		TokenID:  tokenID.Dec(),
		Buyer:    buyer.Hex(),
		Paid:     payment.Dec(),
	})
}

type proceedsResponse struct {
	Address  string `json:"address"`
	Proceeds string `json:"proceeds"`
}

type withdrawResponse struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	amount, err := s.backend.Withdraw(r.Context(), caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{Address: caller.Hex(), Amount: amount.Dec()})
}

func (s *Server) handleGetProceeds(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := s.backend.GetProceeds(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, proceedsResponse{Address: addr.Hex(), Proceeds: amount.Dec()})
}

type collectionRequest struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	TokenURI string `json:"tokenUri"`
}

type collectionResponse struct {
	Address      string `json:"address"`
	Creator      string `json:"creator"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	TokenURI     string `json:"tokenUri"`
	TokenCounter uint64 `json:"tokenCounter"`
}

func collectionPayload(col *collectible.Collection) collectionResponse {
	return collectionResponse{
		Address:      col.Address.Hex(),
		Creator:      col.Creator.Hex(),
		Name:         col.Name,
		Symbol:       col.Symbol,
		TokenURI:     col.TokenURI,
		TokenCounter: col.TokenCounter,
	}
}

func (s *Server) handleRegisterCollection(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	var req collectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	col, err := s.backend.RegisterCollection(r.Context(), req.Name, req.Symbol, req.TokenURI, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, collectionPayload(col))
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	contract, err := parseAddress(chi.URLParam(r, "contract"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	col, err := s.backend.Collection(contract)
	if errors.Is(err, collectible.ErrUnknownCollection) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionPayload(col))
}

type mintRequest struct {
	To string `json:"to,omitempty"`
}

type tokenResponse struct {
	Contract string `json:"contract"`
	TokenID  string `json:"tokenId"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	TokenURI string `json:"tokenUri,omitempty"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, err := parseAddress(chi.URLParam(r, "contract"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req mintRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	to := caller
	if req.To != "" {
		if to, err = parseAddress(req.To); err != nil {
			writeBadRequest(w, r, err)
			return
		}
	}
	tokenID, err := s.backend.Mint(r.Context(), contract, caller, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Contract: contract.Hex(), TokenID: tokenID.Dec(), Owner: to.Hex()})
}

type approveRequest struct {
	Approved string `json:"approved"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	approved := s.backend.Operator()
	if req.Approved != "" {
		if approved, err = parseAddress(req.Approved); err != nil {
			writeBadRequest(w, r, err)
			return
		}
	}
	if err := s.backend.Approve(r.Context(), contract, tokenID, caller, approved); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeToken(w, r, contract, tokenID, http.StatusOK)
}

type operatorRequest struct {
	Operator string `json:"operator"`
	Approved bool   `json:"approved"`
}

func (s *Server) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, err := parseAddress(chi.URLParam(r, "contract"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req operatorRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	operator := s.backend.Operator()
	if req.Operator != "" {
		if operator, err = parseAddress(req.Operator); err != nil {
			writeBadRequest(w, r, err)
			return
		}
	}
	if err := s.backend.SetApprovalForAll(r.Context(), contract, caller, operator, req.Approved); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract": contract.Hex(),
		"owner":    caller.Hex(),
		"operator": operator.Hex(),
		"approved": req.Approved,
	})
}

type transferRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

func (s *Server) handleTransferToken(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return
	}
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	from := caller
	if req.From != "" {
		if from, err = parseAddress(req.From); err != nil {
			writeBadRequest(w, r, err)
			return
		}
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.backend.TransferToken(r.Context(), contract, tokenID, caller, from, to); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeToken(w, r, contract, tokenID, http.StatusOK)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	contract, tokenID, err := assetFromPath(r)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	s.writeToken(w, r, contract, tokenID, http.StatusOK)
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, contract common.Address, tokenID *uint256.Int, status int) {
	info, err := s.backend.Token(contract, tokenID)
	if errors.Is(err, collectible.ErrInvalidToken) || errors.Is(err, collectible.ErrUnknownCollection) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, tokenPayload(info))
}

func tokenPayload(info *core.TokenInfo) tokenResponse {
	resp := tokenResponse{
		Contract: info.Contract.Hex(),
		TokenID:  info.TokenID.Dec(),
		Owner:    info.Owner.Hex(),
		TokenURI: info.TokenURI,
	}
	if info.Approved != (common.Address{}) {
		resp.Approved = info.Approved.Hex()
	}
	return resp
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	balance, err := s.backend.Balance(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.Hex(), Balance: balance.Dec()})
}

type depositRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.backend.Deposit(r.Context(), addr, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.backend.Balance(addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.Hex(), Balance: balance.Dec()})
}

type pauseRequest struct {
	Module string `json:"module"`
}

var pausableModules = []string{marketplace.ModuleName, collectible.ModuleName}

func (s *Server) handlePauses(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]bool, len(pausableModules))
	for _, module := range pausableModules {
		out[module] = s.backend.IsPaused(module)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.togglePause(w, r, true)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.togglePause(w, r, false)
}

func (s *Server) togglePause(w http.ResponseWriter, r *http.Request, pause bool) {
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var err error
	if pause {
		err = s.backend.Pause(r.Context(), req.Module)
	} else {
		err = s.backend.Resume(r.Context(), req.Module)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Warn("module pause changed", "module", req.Module, "paused", pause)
	writeJSON(w, http.StatusOK, map[string]interface{}{"module": req.Module, "paused": pause})
}

type eventsResponse struct {
	Events []core.EventUpdate `json:"events"`
	Next   string             `json:"next,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, r, errors.New("invalid after cursor"))
			return
		}
		after = parsed
	}
	limit := s.eventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, r, errors.New("invalid limit"))
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	var updates []core.EventUpdate
	switch eventType := strings.TrimSpace(r.URL.Query().Get("type")); {
	case eventType == "":
		updates = s.backend.Events(after, limit)
	case s.history != nil:
		var err error
		updates, err = s.history.ByType(r.Context(), eventType, after, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	default:
		updates = filterByType(s.backend.Events(after, 0), eventType, limit)
	}
	resp := eventsResponse{Events: updates}
	if len(updates) > 0 {
		resp.Next = updates[len(updates)-1].Cursor
	}
	writeJSON(w, http.StatusOK, resp)
}

func filterByType(updates []core.EventUpdate, eventType string, limit int) []core.EventUpdate {
	out := make([]core.EventUpdate, 0, len(updates))
	for _, update := range updates {
		if update.Type != eventType {
			continue
		}
		out = append(out, update)
		if len(out) >= limit {
			break
		}
	}
	return out
}
