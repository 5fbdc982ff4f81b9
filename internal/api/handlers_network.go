package api

import (
	"encoding/json"
	"net/http"
)

// marshalForCache renders a response body once for Redis storage.
func marshalForCache(v interface{}) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// handleGetNetwork handles GET /api/networks/{chainId} - Network metadata
func (s *Server) handleGetNetwork(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid chain ID", nil)
		return
	}

	resolution, err := s.networks.Resolve(r.Context(), chainID)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"network":   resolution.Network,
		"freshness": resolution.Freshness,
	})
}
