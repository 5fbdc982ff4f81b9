package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/testnet-faucet/internal/ledger"
)

// poolCacheTTL bounds how stale a cached pool state response may be.
const poolCacheTTL = 30 * time.Second

// parseChainID extracts and validates the chainId path variable.
func parseChainID(r *http.Request) (int64, bool) {
	chainID, err := strconv.ParseInt(mux.Vars(r)["chainId"], 10, 64)
	if err != nil || chainID <= 0 {
		return 0, false
	}
	return chainID, true
}

// handleDrip handles POST /api/faucet/{chainId}/drip - Claim test ETH
func (s *Server) handleDrip(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid chain ID", nil)
		return
	}

	var req struct {
		Address    string `json:"address"`
		ProofToken string `json:"proofToken"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}
	if req.Address == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Address is required", nil)
		return
	}

	result, err := s.ledger.Drip(r.Context(), ledger.DripRequest{
		ChainID:    chainID,
		Address:    req.Address,
		ProofToken: req.ProofToken,
		ClientIP:   clientIP(r),
	})
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleDonate handles POST /api/faucet/{chainId}/donations - Credit a donation
func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid chain ID", nil)
		return
	}

	var req struct {
		TxHash string `json:"txHash"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}
	if req.TxHash == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Transaction hash is required", nil)
		return
	}

	result, err := s.ledger.Donate(r.Context(), ledger.DonationClaim{
		ChainID: chainID,
		TxHash:  req.TxHash,
	})
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetPool handles GET /api/faucet/{chainId} - Pool balance and next claim
func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid chain ID", nil)
		return
	}

	cacheKey := fmt.Sprintf("faucet:pool:%d", chainID)
	if s.cache != nil {
		if cached, err := s.cache.Get(r.Context(), cacheKey); err == nil && cached != "" {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(cached))
			return
		}
	}

	state, err := s.ledger.Pool(r.Context(), chainID)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	if s.cache != nil {
		if body, err := marshalForCache(state); err == nil {
			// Best effort; a failed cache write never fails the response.
			_ = s.cache.Set(r.Context(), cacheKey, body, poolCacheTTL) // nolint:errcheck
		}
	}

	respondJSON(w, http.StatusOK, state)
}
