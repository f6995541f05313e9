package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NetworkHealth reports one configured network's RPC reachability.
type NetworkHealth struct {
	RPCHealthy bool   `json:"rpcHealthy"`
	Token      string `json:"token"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Healthy         bool                     `json:"healthy"`
	FacilitatorMode string                   `json:"facilitatorMode"`
	Networks        map[string]NetworkHealth `json:"networks"`
	Timestamp       int64                    `json:"timestamp"`
}

// handleHealth pings every configured network's RPC endpoint and reports
// overall health as the conjunction of all per-network checks, per spec.md §6.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	networks := make(map[string]NetworkHealth, len(s.registry.SupportedNetworks()))
	healthy := true

	for _, slug := range s.registry.SupportedNetworks() {
		chain, err := s.registry.ChainOf(slug)
		if err != nil {
			healthy = false
			networks[slug] = NetworkHealth{RPCHealthy: false, Status: "unsupported", Error: err.Error()}
			continue
		}

		client, err := s.registry.PublicClientFor(slug)
		if err != nil {
			healthy = false
			networks[slug] = NetworkHealth{RPCHealthy: false, Token: chain.DefaultToken, Status: "error", Error: err.Error()}
			continue
		}

		if _, err := client.BlockNumber(ctx); err != nil {
			healthy = false
			networks[slug] = NetworkHealth{RPCHealthy: false, Token: chain.DefaultToken, Status: "unreachable", Error: err.Error()}
			continue
		}

		networks[slug] = NetworkHealth{RPCHealthy: true, Token: chain.DefaultToken, Status: "ok"}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, HealthResponse{
		Healthy:         healthy,
		FacilitatorMode: s.config.FacilitatorMode,
		Networks:        networks,
		Timestamp:       s.now().Unix(),
	})
}
