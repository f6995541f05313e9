package server

import (
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evmx402/facilitator/internal/fees"
	"github.com/evmx402/facilitator/internal/gateway"
	domain "github.com/evmx402/facilitator/internal/types"
)

const idempotencyTTL = 5 * time.Minute

// handleInfo serves GET /api/info: static service metadata grounded in the
// reference SDK's SupportedResponse shape, generalized per SPEC_FULL.md §6.
func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "x402-evm-facilitator",
		"version":     Version,
		"x402Version": 1,
		"networks":    s.registry.SupportedNetworks(),
	})
}

// handleSupported serves GET /supported.
func (s *Server) handleSupported(c *gin.Context) {
	var kinds []domain.SupportedKind
	for _, network := range s.registry.SupportedNetworks() {
		kinds = append(kinds, domain.SupportedKind{X402Version: 1, Scheme: "exact", Network: network})
	}
	c.JSON(http.StatusOK, domain.SupportedResponse{Kinds: kinds})
}

// handleVerify serves POST /verify: idempotency lookup, schema validation,
// the Verifier pass, and response assembly, per spec.md §4.7.
func (s *Server) handleVerify(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondInternalError(c)
		return
	}

	if errs, err := gateway.ValidateRequestBody(body); err != nil {
		s.respondInternalError(c)
		return
	} else if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "VERIFICATION_ERROR", "details": errs})
		return
	}

	var req domain.VerifyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "VERIFICATION_ERROR", "details": err.Error()})
		return
	}

	fingerprint := gateway.Fingerprint("/verify", req, c.GetHeader("Idempotency-Key"))
	if cached, found, err := s.idempotent.Get(c.Request.Context(), fingerprint); err == nil && found {
		c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
		return
	}

	result, err := s.verifier.Verify(c.Request.Context(), req)
	if err != nil {
		s.respondInternalError(c)
		return
	}

	s.metrics.RecordVerify(req.PaymentRequirements.Network, req.PaymentRequirements.Scheme, result.IsValid)

	breakdown := s.safeFeeSplit(req.PaymentRequirements.MaxAmountRequired, result.Decimals, result.Token.Symbol)

	var invalidReason *string
	if !result.IsValid {
		reason := result.InvalidReason
		invalidReason = &reason
	}

	var proof *string
	if result.IsValid {
		proof = consensusProof(result.Auth.Nonce, result.Auth.From, req.PaymentRequirements.Network)
	}

	resp := domain.VerifyResponse{
		IsValid:        result.IsValid,
		InvalidReason:  invalidReason,
		ConsensusProof: proof,
		ReportID:       reportID(s.now().Unix()),
		Timestamp:      s.now().Unix(),
		Amount:         breakdown.Amount,
		Fee:            breakdown.Fee,
		Net:            breakdown.Net,
	}

	s.writeIdempotent(c, fingerprint, http.StatusOK, resp)
}

// handleSettle serves POST /settle: runs the Verifier before dispatching to
// the Settler, since the Settler assumes expected-rejection shapes have
// already been caught (spec.md §7's propagation policy).
func (s *Server) handleSettle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondInternalError(c)
		return
	}

	if errs, err := gateway.ValidateRequestBody(body); err != nil {
		s.respondInternalError(c)
		return
	} else if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "SETTLEMENT_ERROR", "details": errs})
		return
	}

	var req domain.SettleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "SETTLEMENT_ERROR", "details": err.Error()})
		return
	}

	verifyReq := domain.VerifyRequest{
		X402Version:         req.X402Version,
		PaymentHeader:       req.PaymentHeader,
		PaymentRequirements: req.PaymentRequirements,
		AgentID:             req.AgentID,
	}

	fingerprint := gateway.Fingerprint("/settle", verifyReq, c.GetHeader("Idempotency-Key"))
	if cached, found, err := s.idempotent.Get(c.Request.Context(), fingerprint); err == nil && found {
		c.Data(http.StatusOK, "application/json; charset=utf-8", cached)
		return
	}

	result, err := s.verifier.Verify(c.Request.Context(), verifyReq)
	if err != nil {
		s.respondInternalError(c)
		return
	}

	breakdown := s.safeFeeSplit(req.PaymentRequirements.MaxAmountRequired, result.Decimals, result.Token.Symbol)

	if !result.IsValid {
		s.metrics.RecordSettle(req.PaymentRequirements.Network, req.PaymentRequirements.Scheme, false)
		reason := result.InvalidReason
		resp := domain.SettleResponse{
			Success:   false,
			Error:     &reason,
			NetworkID: req.PaymentRequirements.Network,
			Timestamp: s.now().Unix(),
			Amount:    breakdown.Amount,
			Fee:       breakdown.Fee,
			Net:       breakdown.Net,
			Status:    domain.TxFailed,
		}
		s.writeIdempotent(c, fingerprint, http.StatusOK, resp)
		return
	}

	network, err := s.registry.ChainOf(req.PaymentRequirements.Network)
	if err != nil {
		s.respondInternalError(c)
		return
	}

	feeAmount, ok := new(big.Int).SetString(breakdown.Fee.Base, 10)
	if !ok {
		s.respondInternalError(c)
		return
	}
	netAmount, ok := new(big.Int).SetString(breakdown.Net.Base, 10)
	if !ok {
		s.respondInternalError(c)
		return
	}

	outcome, err := s.settler.Settle(c.Request.Context(), network, result.Token, req.PaymentRequirements.PayTo, result.Auth, feeAmount, netAmount, req.AgentID)
	if err != nil {
		s.metrics.RecordSettle(req.PaymentRequirements.Network, req.PaymentRequirements.Scheme, false)
		c.JSON(http.StatusBadRequest, gin.H{"error": "settlement failed", "code": "SETTLEMENT_ERROR", "details": err.Error()})
		return
	}

	success := outcome.Record.Status == domain.TxConfirmed || outcome.Record.Status == domain.TxPending
	s.metrics.RecordSettle(req.PaymentRequirements.Network, req.PaymentRequirements.Scheme, success)

	var settleErr *string
	if !success {
		reason := "settlement did not reach a confirmed state: " + string(outcome.Record.Status)
		settleErr = &reason
	}

	var proof *string
	if success {
		proof = consensusProof(outcome.Record.TxHash, result.Auth.Nonce, req.PaymentRequirements.Network)
	}

	resp := domain.SettleResponse{
		Success:        success,
		Error:          settleErr,
		TxHash:         outcome.Record.TxHash,
		TxHashFee:      outcome.Record.TxHashFee,
		NetworkID:      req.PaymentRequirements.Network,
		ConsensusProof: proof,
		Timestamp:      s.now().Unix(),
		Amount:         breakdown.Amount,
		Fee:            breakdown.Fee,
		Net:            breakdown.Net,
		Status:         outcome.Record.Status,
	}
	if outcome.Anchor != nil {
		resp.EvidenceHash = outcome.Anchor.EvidenceHash
		resp.ProofOfAgency = outcome.Anchor.ProofOfAgency
	}

	s.writeIdempotent(c, fingerprint, http.StatusOK, resp)
}

// safeFeeSplit computes a FeeBreakdown, falling back to a zero-valued one
// when amountBase isn't parseable (the Verifier has already reported that
// as an invalid reason; the Gateway must still populate a breakdown shape,
// per spec.md §4.7's "fee breakdown is always populated" rule).
func (s *Server) safeFeeSplit(amountBase string, decimals uint8, symbol string) domain.FeeBreakdown {
	breakdown, err := fees.Split(amountBase, s.config.FeeBps, decimals, symbol)
	if err != nil {
		zero := domain.Amount{Human: "0", Base: "0", Symbol: symbol}
		return domain.FeeBreakdown{Amount: zero, Fee: zero, Net: zero}
	}
	return breakdown
}

// writeIdempotent marshals body, stores it under fingerprint before
// replying (per spec.md §4.7's "store before emitting the reply"), and
// writes the response.
func (s *Server) writeIdempotent(c *gin.Context, fingerprint string, status int, body interface{}) {
	encoded, err := json.Marshal(body)
	if err != nil {
		s.respondInternalError(c)
		return
	}
	if err := s.idempotent.Put(c.Request.Context(), fingerprint, encoded, idempotencyTTL); err != nil {
		// Failure to cache must not fail the request; the next retry simply
		// re-executes rather than replaying a stale body.
	}
	c.Data(status, "application/json; charset=utf-8", encoded)
}

func (s *Server) respondInternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "INTERNAL_ERROR"})
}
