// Package registry implements the read-only Chain & Token Registry (spec §4.1):
// a two-map lookup built once at startup, plus the PublicClient/WalletClient
// capability handles other components use to touch the chain.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/evmx402/facilitator/internal/config"
	domain "github.com/evmx402/facilitator/internal/types"
)

// Registry is an immutable, read-only view of configured networks and
// tokens, plus the chain capability handles bound to each network.
type Registry struct {
	networks map[string]domain.Network
	tokens   map[string]domain.Token
	public   map[string]PublicClient
	wallet   map[string]WalletClient
	order    []string // network slugs, sorted alphabetically
}

// Build constructs the registry from static defaults plus environment
// overrides, dialing one evmClient per configured network. Construction
// fails fast when a configured network's client cannot be built (an
// unreachable RPC endpoint or an unparseable private key). Token addresses
// are not checked here: a network whose tokens have no configured address
// is still registered, and lookups of those tokens on it are NotSupported.
func Build(ctx context.Context, cfg *config.Config) (*Registry, error) {
	r := &Registry{
		networks: make(map[string]domain.Network),
		tokens:   make(map[string]domain.Token),
		public:   make(map[string]PublicClient),
		wallet:   make(map[string]WalletClient),
	}

	for _, tc := range config.DefaultTokens {
		addrs := make(map[string]string, len(tc.AddressEnv))
		for slug, env := range tc.AddressEnv {
			if addr := lookupEnv(env); addr != "" {
				addrs[slug] = addr
			}
		}
		r.tokens[tc.Symbol] = domain.Token{
			Symbol:          tc.Symbol,
			Decimals:        tc.Decimals,
			SupportsEIP3009: tc.SupportsEIP3009,
			EIP712Name:      tc.EIP712Name,
			EIP712Version:   tc.EIP712Version,
			Addresses:       addrs,
		}
	}

	for _, nc := range config.DefaultNetworks {
		rpcURL := lookupEnv(nc.RPCEnv)
		if rpcURL == "" {
			// Not configured; skip rather than fail fast, so operators can
			// run a subset of networks. A network with no RPC URL and no
			// fallback from its default token is simply absent from the
			// registry (surfaced later as NotSupported, never a panic).
			continue
		}

		client, err := NewEVMClient(ctx, rpcURL, cfg.FacilitatorPrivateKey)
		if err != nil {
			return nil, domain.NewConfigError(fmt.Sprintf("network %s: %v", nc.Slug, err))
		}

		r.networks[nc.Slug] = domain.Network{
			Slug:                  nc.Slug,
			ChainID:               nc.ChainID,
			Name:                  nc.Name,
			RPCURL:                rpcURL,
			RequiredConfirmations: nc.RequiredConfirmations,
			DefaultToken:          nc.DefaultToken,
		}
		r.public[nc.Slug] = client
		r.wallet[nc.Slug] = client
		r.order = append(r.order, nc.Slug)
	}

	sort.Strings(r.order)

	return r, nil
}

func lookupEnv(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

// ChainOf resolves a network by slug.
func (r *Registry) ChainOf(network string) (domain.Network, error) {
	n, ok := r.networks[network]
	if !ok {
		return domain.Network{}, domain.NewNotSupported("network", network)
	}
	return n, nil
}

// TokenOf resolves a token by symbol.
func (r *Registry) TokenOf(symbol string) (domain.Token, error) {
	t, ok := r.tokens[strings.ToLower(symbol)]
	if !ok {
		return domain.Token{}, domain.NewNotSupported("asset", symbol)
	}
	return t, nil
}

// TokenByAddress resolves a token by its contract address on a given
// network, per spec.md §9's open question: address-form assets are looked
// up by address, and an unknown address is NotSupported.
func (r *Registry) TokenByAddress(network, address string) (domain.Token, error) {
	for _, t := range r.tokens {
		if addr, ok := t.Addresses[network]; ok && strings.EqualFold(addr, address) {
			return t, nil
		}
	}
	return domain.Token{}, domain.NewNotSupported("asset", address)
}

// ResolveAsset resolves requirements.Asset, which may be a symbol or an
// address, against the registry (spec.md §4.4 step 3 / §9).
func (r *Registry) ResolveAsset(network, asset string) (domain.Token, error) {
	if strings.HasPrefix(asset, "0x") && len(asset) == 42 {
		return r.TokenByAddress(network, asset)
	}
	return r.TokenOf(asset)
}

// AddressOf returns the contract address of a token on a network.
func (r *Registry) AddressOf(network, symbol string) (string, error) {
	t, err := r.TokenOf(symbol)
	if err != nil {
		return "", err
	}
	addr, ok := t.Addresses[network]
	if !ok {
		return "", domain.NewNotSupported("asset", symbol)
	}
	return addr, nil
}

// ConfirmationsOf returns the required confirmation depth for a network.
func (r *Registry) ConfirmationsOf(network string) (uint64, error) {
	n, err := r.ChainOf(network)
	if err != nil {
		return 0, err
	}
	return n.RequiredConfirmations, nil
}

// ChainIDOf returns the numeric chain id for a network.
func (r *Registry) ChainIDOf(network string) (uint64, error) {
	n, err := r.ChainOf(network)
	if err != nil {
		return 0, err
	}
	return n.ChainID, nil
}

// SupportedNetworks returns all configured network slugs in a stable order.
func (r *Registry) SupportedNetworks() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SupportedAssets returns the token symbols supported on a network.
func (r *Registry) SupportedAssets(network string) []string {
	var out []string
	for symbol, t := range r.tokens {
		if _, ok := t.Addresses[network]; ok {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out
}

// IsNative reports whether asset is the native currency of network.
func (r *Registry) IsNative(network, asset string) bool {
	t, err := r.ResolveAsset(network, asset)
	if err != nil {
		return false
	}
	return t.IsNative(network)
}

// PublicClientFor returns the read-only chain handle for a network.
func (r *Registry) PublicClientFor(network string) (PublicClient, error) {
	c, ok := r.public[network]
	if !ok {
		return nil, domain.NewNotSupported("network", network)
	}
	return c, nil
}

// WalletClientFor returns the signing chain handle for a network.
func (r *Registry) WalletClientFor(network string) (WalletClient, error) {
	c, ok := r.wallet[network]
	if !ok {
		return nil, domain.NewNotSupported("network", network)
	}
	return c, nil
}

// FacilitatorAddress returns the facilitator's signing address on a network,
// used by the Verifier to derive the allowance spender in relayer mode.
func (r *Registry) FacilitatorAddress(network string) (string, error) {
	w, err := r.WalletClientFor(network)
	if err != nil {
		return "", err
	}
	return w.Address(), nil
}
