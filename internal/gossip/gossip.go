// Package gossip implements outbound fan-out of new blocks and
// transactions to the peer set. Inbound blocks reach the chain through the
// HTTP API's POST /receive-new-block handler, not through this package.
// The bounded-concurrency fan-out uses the same errgroup pattern
// internal/peerset uses for its own peer probing.
package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// PeerLister is the narrow slice of peerset.PeerSet that outbound gossip
// needs. Defined locally so gossip only depends one-directionally on
// peerset.
type PeerLister interface {
	Peers() []string
}

// Gossiper is the outbound broadcaster, given to the miner and API
// packages as a narrow local interface so they never import package
// gossip directly.
type Gossiper struct {
	peers  PeerLister
	cfg    *config.Config
	logger ulogger.Logger
	client *http.Client
}

// New constructs a Gossiper that fans out over peers.
func New(cfg *config.Config, logger ulogger.Logger, peers PeerLister) *Gossiper {
	return &Gossiper{
		peers:  peers,
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.PeerRPCTimeout},
	}
}

// BroadcastBlock fans out block to every peer via POST /receive-new-block,
// as a {"newBlock": block} body. Best effort only: per-peer failures are
// logged, never returned. No acknowledgments are required; lost messages
// are reconciled by the Sync Manager.
func (g *Gossiper) BroadcastBlock(ctx context.Context, block chain.Block) {
	g.broadcast(ctx, "/receive-new-block", map[string]chain.Block{"newBlock": block})
}

// BroadcastTransaction fans out tx to every peer via the same endpoint the
// node exposes for transaction submission.
func (g *Gossiper) BroadcastTransaction(ctx context.Context, tx chain.Transaction) {
	g.broadcast(ctx, "/transaction/broadcast", tx)
}

func (g *Gossiper) broadcast(ctx context.Context, path string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		g.logger.Errorf("[gossip] marshal broadcast payload for %s: %v", path, err)
		return
	}

	peers := g.peers.Peers()
	if len(peers) == 0 {
		return
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(16)

	for _, peer := range peers {
		peer := peer
		eg.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodPost, peer+path, bytes.NewReader(body))
			if err != nil {
				return nil
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := g.client.Do(req)
			if err != nil {
				g.logger.Warnf("[gossip] %s to %s failed: %v", path, peer, err)
				return nil
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				g.logger.Warnf("[gossip] %s to %s returned status %d", path, peer, resp.StatusCode)
			}
			return nil
		})
	}
	_ = eg.Wait()
}
