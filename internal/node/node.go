// Package node is the facade that wires the store, chain, mempool, peer
// set, gossiper, sync manager, miner and HTTP API into one running process
// and owns its startup and shutdown sequencing.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acem702/Ekehi-Network/internal/api"
	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/gossip"
	"github.com/acem702/Ekehi-Network/internal/mempool"
	"github.com/acem702/Ekehi-Network/internal/miner"
	"github.com/acem702/Ekehi-Network/internal/peerset"
	"github.com/acem702/Ekehi-Network/internal/store"
	syncmgr "github.com/acem702/Ekehi-Network/internal/sync"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// Node owns every component's lifecycle and is the process's single entry
// point once configuration has been resolved.
type Node struct {
	cfg    *config.Config
	logger ulogger.Logger

	store   *store.Store
	chain   *chain.Chain
	mempool *mempool.Mempool
	peers   *peerset.PeerSet
	gossip  *gossip.Gossiper
	sync    *syncmgr.Manager
	miner   *miner.Miner
	api     *api.Server

	startedAt int64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics  metricsSet
	registry *prometheus.Registry
}

type metricsSet struct {
	blockCount    prometheus.GaugeFunc
	mempoolDepth  prometheus.GaugeFunc
	peerCount     prometheus.GaugeFunc
	difficulty    prometheus.GaugeFunc
	uptimeSeconds prometheus.GaugeFunc
}

// New constructs every component and wires them together. It does not
// start any background worker; call Start for that.
func New(cfg *config.Config, logger ulogger.Logger) (*Node, error) {
	st, err := openStoreWithRetry(cfg, logger)
	if err != nil {
		return nil, err
	}

	c := chain.New(cfg, logger, st)
	mp := mempool.New(cfg, logger, st, c)
	ps := peerset.New(cfg, logger, cfg.PublicNodeURL, st)
	gs := gossip.New(cfg, logger, ps)
	sm := syncmgr.New(cfg, logger, c, mp, ps)
	mn := miner.New(cfg, logger, c, mp, gs, st)
	ps.SetSyncTrigger(sm)

	n := &Node{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		chain:   c,
		mempool: mp,
		peers:   ps,
		gossip:  gs,
		sync:    sm,
		miner:   mn,
	}

	n.registerMetrics()

	n.api = api.New(cfg, logger, api.Deps{
		Chain:          c,
		Mempool:        mp,
		Peers:          ps,
		Sync:           sm,
		Gossip:         gs,
		Miner:          mn,
		StartedAt:      func() int64 { return n.startedAt },
		MetricsHandler: promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}),
	})

	return n, nil
}

// openStoreWithRetry opens the embedded store, retrying a fixed number of
// times with linear backoff before giving up — startup failure here is
// unrecoverable and the caller should exit non-zero rather than continue
// read-only, since this node's mempool and chain both depend on it.
func openStoreWithRetry(cfg *config.Config, logger ulogger.Logger) (*store.Store, error) {
	const maxAttempts = 5
	const backoffStep = 500 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st, err := store.Open(cfg.StorePath, logger)
		if err == nil {
			return st, nil
		}
		lastErr = err
		logger.Warnf("[node] store open attempt %d/%d failed: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * backoffStep)
		}
	}
	return nil, fmt.Errorf("open store after %d attempts: %w", maxAttempts, lastErr)
}

// registerMetrics builds a dedicated registry, rather than the global
// default one, so constructing more than one Node in the same process
// (as node_test.go does) never panics on duplicate registration.
func (n *Node) registerMetrics() {
	n.registry = prometheus.NewRegistry()

	n.metrics.blockCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ekehi_chain_length",
		Help: "Current number of blocks on the canonical chain.",
	}, func() float64 { return float64(n.chain.Len()) })
	n.metrics.mempoolDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ekehi_mempool_depth",
		Help: "Current number of pending transactions.",
	}, func() float64 { return float64(n.mempool.Len()) })
	n.metrics.peerCount = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ekehi_peer_count",
		Help: "Current number of known peers.",
	}, func() float64 { return float64(n.peers.Len()) })
	n.metrics.difficulty = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ekehi_difficulty",
		Help: "Current proof-of-work difficulty.",
	}, func() float64 { return float64(n.miner.Difficulty()) })
	n.metrics.uptimeSeconds = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ekehi_uptime_seconds",
		Help: "Seconds since this node process started.",
	}, func() float64 { return float64(time.Now().Unix() - n.startedAt) })

	n.registry.MustRegister(
		n.metrics.blockCount,
		n.metrics.mempoolDepth,
		n.metrics.peerCount,
		n.metrics.difficulty,
		n.metrics.uptimeSeconds,
	)
}

// Start launches every background worker (health monitor, discovery loop,
// sync loop, miner) and then serves HTTP on addr. It blocks while the HTTP
// server runs and returns its error once the server stops or fails to bind.
func (n *Node) Start(addr string) error {
	n.startedAt = time.Now().Unix()

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.spawn(func() { n.peers.RunHealthMonitor(ctx) })
	n.spawn(func() { n.peers.RunDiscoveryLoop(ctx, 2*time.Second) })
	n.spawn(func() { n.sync.RunLoop(ctx) })
	n.spawn(func() { n.miner.Run(ctx) })

	n.logger.Infof("[node] listening on %s", addr)
	return n.api.Start(addr)
}

func (n *Node) spawn(f func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		f()
	}()
}

// Stop cancels the one context shared by every background worker and waits
// for all of them to return; the workers stop together, in no particular
// order. It then drains the HTTP server and closes the store last so any
// in-flight persistence from the workers above completes first.
func (n *Node) Stop(ctx context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	if err := n.api.Shutdown(ctx); err != nil {
		n.logger.Warnf("[node] api shutdown: %v", err)
	}

	n.peers.Close()

	if err := n.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}
