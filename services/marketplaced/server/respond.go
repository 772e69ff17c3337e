package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	coreerrors "nftmarket/core/errors"
	"nftmarket/gateway/middleware"
	"nftmarket/native/marketplace"
)

const maxRequestBody = 64 << 10

var (
	errMissingCaller = errors.New("authenticated caller required")
	errBadAddress    = errors.New("invalid address")
	errBadAmount     = errors.New("invalid amount")
)

type errorResponse struct {
	Error     string `json:"error"`
	Class     string `json:"class,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps an error class to its HTTP status.
func statusFor(class marketplace.ErrorClass) int {
	switch class {
	case marketplace.ClassAuthorization:
		return http.StatusForbidden
	case marketplace.ClassState, marketplace.ClassFunds:
		return http.StatusConflict
	case marketplace.ClassValue:
		return http.StatusUnprocessableEntity
	case marketplace.ClassCollaborator:
		return http.StatusBadGateway
	case marketplace.ClassPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders a processor error. Internal failures are logged and
// reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	class := coreerrors.Classify(err)
	status := statusFor(class)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "path", r.URL.Path, "requestId", middleware.RequestIDFromContext(r.Context()))
		message = "internal error"
	}
	writeJSON(w, status, errorResponse{
		Error:     message,
		Class:     string(class),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:     err.Error(),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body required")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// decodeOptionalBody is decodeBody for requests whose body may be empty.
func decodeOptionalBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func callerFrom(r *http.Request) (common.Address, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return common.Address{}, errMissingCaller
	}
	return caller, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", errBadAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

// parseAmount accepts decimal or 0x-prefixed hex.
func parseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", errBadAmount)
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, err := uint256.FromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadAmount, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadAmount, err)
	}
	return v, nil
}

func assetFromPath(r *http.Request) (common.Address, *uint256.Int, error) {
	contract, err := parseAddress(chi.URLParam(r, "contract"))
	if err != nil {
		return common.Address{}, nil, err
	}
	tokenID, err := parseAmount(chi.URLParam(r, "tokenId"))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("invalid token id: %w", err)
	}
	return contract, tokenID, nil
}
