// Command facilitator boots the x402 EVM payment facilitator: it loads
// configuration, builds the chain registry, wires the Request Gateway,
// Verifier, Settler and Finality Confirmer, and serves the HTTP API until
// an interrupt or termination signal arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evmx402/facilitator/internal/config"
	"github.com/evmx402/facilitator/internal/confirmer"
	"github.com/evmx402/facilitator/internal/gateway"
	"github.com/evmx402/facilitator/internal/identity"
	"github.com/evmx402/facilitator/internal/registry"
	"github.com/evmx402/facilitator/internal/server"
	"github.com/evmx402/facilitator/internal/settle"
	"github.com/evmx402/facilitator/internal/store"
	"github.com/evmx402/facilitator/internal/verify"
)

func main() {
	cfg := config.Load()

	log.Printf("starting x402 EVM facilitator")
	log.Printf("mode: %s, port: %d, default chain: %s", cfg.FacilitatorMode, cfg.Port, cfg.DefaultChain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: build registry: %v", err)
	}
	log.Printf("registry ready: networks=%v", reg.SupportedNetworks())

	txStore, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap: open transaction store: %v", err)
	}

	limiter, idempotent := setupGateway(ctx, cfg)

	identityClient := identity.New(cfg.AgentRegistryURL, cfg.ChaoschainEnabled)

	verifier := verify.New(reg)
	settler := settle.New(reg, txStore, identityClient, cfg.TreasuryAddress)

	confirm := confirmer.New(txStore, reg)
	confirmDone := make(chan struct{})
	go func() {
		defer close(confirmDone)
		confirm.Run(ctx)
	}()

	srv := server.New(cfg, reg, verifier, settler, limiter, idempotent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %s, shutting down", sig)
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("bootstrap: server exited with error: %v", err)
	}

	<-confirmDone
	log.Printf("facilitator stopped cleanly")
}

// setupStore opens a Postgres-backed transaction store when TX_STORE_DSN is
// configured, falling back to the in-memory store otherwise. A DSN that is
// configured but unreachable is a bootstrap failure: a facilitator that
// believes it is durably persisting transactions but silently isn't would
// violate spec.md §4.6's settlement audit trail.
func setupStore(ctx context.Context, cfg *config.Config) (store.TransactionStore, error) {
	if cfg.TxStoreDSN == "" {
		log.Printf("no TX_STORE_DSN configured, using in-memory transaction store")
		return store.NewMemoryStore(), nil
	}

	pgStore, err := store.NewPostgresStore(ctx, cfg.TxStoreDSN)
	if err != nil {
		return nil, err
	}
	if err := pgStore.Migrate(ctx); err != nil {
		return nil, err
	}
	log.Printf("transaction store: postgres")
	return pgStore, nil
}

// setupGateway wires Redis-backed rate limiting and idempotency caching
// when REDIS_URL is configured, falling back to in-memory equivalents on
// any connection failure. Unlike the transaction store, Redis is
// best-effort infrastructure (spec.md §4.7 treats rate limiting and
// idempotency as request-shaping, not settlement-critical), so a failed
// connection here is logged, not fatal.
func setupGateway(ctx context.Context, cfg *config.Config) (gateway.Limiter, gateway.IdempotencyCache) {
	if cfg.RedisURL == "" {
		log.Printf("no REDIS_URL configured, using in-memory rate limiter and idempotency cache")
		return gateway.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), gateway.NewMemoryIdempotencyCache()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := gateway.NewRedisClient(connectCtx, cfg.RedisURL)
	if err != nil {
		log.Printf("warning: redis connection failed: %v", err)
		log.Printf("continuing with in-memory rate limiter and idempotency cache")
		return gateway.NewMemoryLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow), gateway.NewMemoryIdempotencyCache()
	}

	log.Printf("redis connected: rate limiting and idempotency backed by %s", cfg.RedisURL)
	return gateway.NewRedisLimiter(client, cfg.RateLimitRequests, cfg.RateLimitWindow), gateway.NewRedisIdempotencyCache(client)
}
