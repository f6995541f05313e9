// Package identity anchors successful EIP-3009 settlements against an
// external agent-reputation registry (spec.md §4.5.3, the "identity"
// collaborator), enabled by CHAOSCHAIN_ENABLED. Failures here never fail
// the settlement: they are logged and the response simply omits
// evidenceHash/proofOfAgency.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// AnchorRequest is the payload POSTed to the agent registry.
type AnchorRequest struct {
	AgentID     string `json:"agentId"`
	TxHash      string `json:"txHash"`
	Chain       string `json:"chain"`
	Amount      string `json:"amount"`
	PaymentData string `json:"paymentData"`
}

// AnchorReceipt carries the evidence the registry returns on success.
type AnchorReceipt struct {
	EvidenceHash  string `json:"evidenceHash"`
	ProofOfAgency string `json:"proofOfAgency"`
}

// Client posts anchor requests to the configured registry URL.
type Client struct {
	registryURL string
	httpClient  *http.Client
	enabled     bool
}

// New constructs a Client. enabled mirrors CHAOSCHAIN_ENABLED; when false,
// Anchor is a no-op that never makes a network call.
func New(registryURL string, enabled bool) *Client {
	return &Client{
		registryURL: registryURL,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		enabled:     enabled,
	}
}

// Anchor posts req to the registry. On any failure it logs and returns a
// zero AnchorReceipt and false, never an error: callers must treat
// anchoring as best-effort.
func (c *Client) Anchor(ctx context.Context, req AnchorRequest) (AnchorReceipt, bool) {
	if !c.enabled || c.registryURL == "" || req.AgentID == "" {
		return AnchorReceipt{}, false
	}

	body, err := json.Marshal(req)
	if err != nil {
		log.Printf("identity: marshal anchor request: %v", err)
		return AnchorReceipt{}, false
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.registryURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("identity: build anchor request: %v", err)
		return AnchorReceipt{}, false
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Printf("identity: anchor request failed: %v", err)
		return AnchorReceipt{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("identity: anchor request returned status %d", resp.StatusCode)
		return AnchorReceipt{}, false
	}

	var receipt AnchorReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		log.Printf("identity: decode anchor response: %v", err)
		return AnchorReceipt{}, false
	}

	return receipt, true
}

// Describe renders a short log-friendly summary, used by callers that want
// to note an anchor attempt without leaking the full payload.
func Describe(req AnchorRequest) string {
	return fmt.Sprintf("agent=%s chain=%s tx=%s", req.AgentID, req.Chain, req.TxHash)
}
