package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	payrelay "github.com/payrelay/payrelay-go"
	"github.com/payrelay/payrelay-go/settle"
)

// HandleSubmit accepts a signed transfer authorization and forwards it to
// the network's facilitator for on-chain execution. The response body is
// always a SettlementResult; the status code distinguishes validation
// failures (400), facilitator rejections (402), unreachable facilitators
// (502), and success (200).
func (s *Server) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req settle.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondSettlement(w, http.StatusBadRequest, &payrelay.SettlementResult{
			Success: false,
			Error:   "Invalid request",
			Reason:  "body is not valid JSON",
		})
		return
	}

	network, err := payrelay.GetNetworkConfig(req.Network)
	if err != nil {
		s.respondSettlement(w, http.StatusBadRequest, &payrelay.SettlementResult{
			Success: false,
			Error:   "Invalid request",
			Reason:  err.Error(),
		})
		return
	}

	signed, err := req.Authorization.Parse()
	if err != nil {
		s.respondSettlement(w, http.StatusBadRequest, &payrelay.SettlementResult{
			Success: false,
			Error:   "Invalid request",
			Reason:  err.Error(),
		})
		return
	}

	facilitator, ok := s.facilitators[req.Network]
	if !ok {
		s.respondSettlement(w, http.StatusBadRequest, &payrelay.SettlementResult{
			Success: false,
			Error:   "Invalid request",
			Reason:  "no facilitator configured for network " + req.Network,
		})
		return
	}

	settleResp, err := facilitator.Settle(r.Context(), signed, req.Network)
	if err != nil {
		s.logger.Warn().Err(err).Str("network", req.Network).Msg("settlement failed")
		if errors.Is(err, payrelay.ErrFacilitatorUnavailable) {
			s.respondSettlement(w, http.StatusBadGateway, &payrelay.SettlementResult{
				Success: false,
				Error:   "Network error",
				Reason:  err.Error(),
			})
			return
		}
		s.respondSettlement(w, http.StatusPaymentRequired, &payrelay.SettlementResult{
			Success: false,
			Error:   "Settlement rejected",
			Reason:  err.Error(),
			Network: req.Network,
		})
		return
	}

	if !settleResp.Success {
		s.respondSettlement(w, http.StatusPaymentRequired, &payrelay.SettlementResult{
			Success: false,
			Error:   settleResp.ErrorReason,
			Reason:  settleResp.ErrorMessage,
			Network: req.Network,
		})
		return
	}

	s.logger.Info().
		Str("network", req.Network).
		Str("tx", settleResp.Transaction).
		Str("payer", signed.From.Hex()).
		Msg("settlement executed")

	s.respondSettlement(w, http.StatusOK, &payrelay.SettlementResult{
		Success:     true,
		TxHash:      settleResp.Transaction,
		Network:     req.Network,
		ExplorerURL: network.TxURL(settleResp.Transaction),
	})
}

// HandleFacilitatorHealth probes the facilitator for the requested network
// (query param "network", default mainnet). Always responds 200: the probe
// result, not the response status, carries liveness.
func (s *Server) HandleFacilitatorHealth(w http.ResponseWriter, r *http.Request) {
	networkID := r.URL.Query().Get("network")
	if networkID == "" {
		networkID = payrelay.NetworkMainnet
	}

	facilitator, ok := s.facilitators[networkID]
	if !ok {
		s.respondJSON(w, http.StatusOK, settle.HealthStatus{
			Healthy: false,
			Error:   "unknown network " + networkID,
		})
		return
	}

	s.respondJSON(w, http.StatusOK, facilitator.Health(r.Context()))
}

func (s *Server) respondSettlement(w http.ResponseWriter, status int, result *payrelay.SettlementResult) {
	s.respondJSON(w, status, result)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
