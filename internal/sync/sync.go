// Package sync implements the Sync Manager: serialized full-chain sync
// with fork choice and rollback.
package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/errors"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// ChainSyncer is the narrow slice of *chain.Chain the Sync Manager needs.
type ChainSyncer interface {
	Len() int
	Snapshot() []chain.Block
	ValidateChain(blocks []chain.Block, tolerantGenesis bool) error
	Replace(candidate []chain.Block) (replaced bool, oldLen int, newLen int)
}

// MempoolReconciler is the narrow slice of *mempool.Mempool the Sync
// Manager needs, defined locally to keep sync a one-directional consumer
// of package mempool.
type MempoolReconciler interface {
	Snapshot() []chain.Transaction
	ReconcileAfterReplace(adoptedChain []chain.Block, remotePending []chain.Transaction)
}

// PeerLister is the narrow slice of peerset.PeerSet the Sync Manager needs.
type PeerLister interface {
	Peers() []string
}

// Reason is the typed outcome of a sync attempt.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonSkipped             Reason = "skipped"
	ReasonNoBetterCandidate   Reason = "no_better_candidate"
	ReasonInvalidRemoteChain  Reason = "invalid_remote_chain"
	ReasonUpdateFailed        Reason = "update_failed"
)

// Result is the outcome reported to callers of TriggerSync / RunOnce.
type Result struct {
	Updated bool   `json:"updated"`
	Reason  Reason `json:"reason,omitempty"`
	OldLen  int    `json:"oldLen,omitempty"`
	NewLen  int    `json:"newLen,omitempty"`
}

type fetchedChain struct {
	source     string
	blocks     []chain.Block
	pending    []chain.Transaction
	difficulty int
}

// blockchainResponse mirrors the GET /blockchain payload a peer serves.
type blockchainResponse struct {
	Chain              []chain.Block        `json:"chain"`
	PendingTransactions []chain.Transaction `json:"pendingTransactions"`
	Difficulty          int                 `json:"difficulty"`
}

// Manager is the Sync Manager.
type Manager struct {
	mu             sync.Mutex
	inProgress     bool
	lastAttempt    time.Time

	cfg     *config.Config
	logger  ulogger.Logger
	client  *http.Client
	chain   ChainSyncer
	mempool MempoolReconciler
	peers   PeerLister
}

// New constructs a Sync Manager.
func New(cfg *config.Config, logger ulogger.Logger, c ChainSyncer, m MempoolReconciler, peers PeerLister) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		client:  &http.Client{Timeout: cfg.PeerRPCTimeout},
		chain:   c,
		mempool: m,
		peers:   peers,
	}
}

// TriggerSync implements peerset.SyncTrigger: run a sync attempt, silently
// skipping if one is already in flight or the cooldown has not elapsed.
func (m *Manager) TriggerSync(ctx context.Context) {
	result := m.RunOnce(ctx)
	if result.Reason == ReasonSkipped {
		m.logger.Debugf("[sync] skipped: already in progress or within cooldown")
	}
}

// RunOnce executes a single sync attempt. Only
// one attempt may be in flight at a time, and attempts are throttled by
// SyncCooldown between successive runs.
func (m *Manager) RunOnce(ctx context.Context) Result {
	if !m.acquire() {
		return Result{Updated: false, Reason: ReasonSkipped}
	}
	defer m.release()

	candidates := m.fetchCandidates(ctx)
	ranked := rankFetched(candidates)

	localLen := m.chain.Len()
	if len(ranked) == 0 || len(ranked[0].blocks) <= localLen {
		return Result{Updated: false, Reason: ReasonNoBetterCandidate}
	}

	best := ranked[0]
	if err := m.chain.ValidateChain(best.blocks, true); err != nil {
		m.logger.Warnf("[sync] candidate from %s failed validation: %v", best.source, err)
		return Result{Updated: false, Reason: ReasonInvalidRemoteChain}
	}

	localPending := m.mempool.Snapshot()
	replaced, oldLen, newLen := m.chain.Replace(best.blocks)
	if !replaced {
		return Result{Updated: false, Reason: ReasonUpdateFailed}
	}

	m.mempool.ReconcileAfterReplace(best.blocks, append(best.pending, localPending...))

	m.logger.Infof("[sync] adopted chain from %s: %d -> %d blocks", best.source, oldLen, newLen)
	return Result{Updated: true, OldLen: oldLen, NewLen: newLen}
}

// RunLoop attempts a sync every SyncInterval until ctx is done. Discovery
// also triggers attempts via TriggerSync; this loop is the periodic
// fallback so a node with no discovery activity still catches up.
func (m *Manager) RunLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

func (m *Manager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inProgress {
		return false
	}
	if !m.lastAttempt.IsZero() && time.Since(m.lastAttempt) < m.cfg.SyncCooldown {
		return false
	}
	m.inProgress = true
	m.lastAttempt = time.Now()
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress = false
}

// fetchCandidates performs phase 1 and 2 of a sync attempt: GET /blockchain
// with a timeout from every peer the PeerLister returns (no loopback
// filtering happens here), discarding responses that fail, do not decode,
// or carry an empty chain. Link, index and hash checks are not done here;
// RunOnce leaves them to ValidateChain on the best-ranked candidate.
func (m *Manager) fetchCandidates(ctx context.Context) []fetchedChain {
	peers := m.peers.Peers()
	if len(peers) == 0 {
		return nil
	}

	var mu sync.Mutex
	var out []fetchedChain

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(16)

	for _, peer := range peers {
		peer := peer
		eg.Go(func() error {
			fc, err := m.fetchOne(gctx, peer)
			if err != nil {
				m.logger.Debugf("[sync] fetch from %s failed: %v", peer, err)
				return nil
			}
			mu.Lock()
			out = append(out, fc)
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return out
}

func (m *Manager) fetchOne(ctx context.Context, peer string) (fetchedChain, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/blockchain", nil)
	if err != nil {
		return fetchedChain{}, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fetchedChain{}, errors.Wrap(errors.KindPeerUnreachable, err, "GET /blockchain from %s", peer)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fetchedChain{}, errors.New(errors.KindPeerUnreachable, "peer %s returned status %d", peer, resp.StatusCode)
	}

	var payload blockchainResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fetchedChain{}, errors.Wrap(errors.KindChainInvalid, err, "decode /blockchain from %s", peer)
	}
	if len(payload.Chain) == 0 {
		return fetchedChain{}, errors.New(errors.KindChainInvalid, "empty chain from %s", peer)
	}

	return fetchedChain{
		source:     peer,
		blocks:     payload.Chain,
		pending:    payload.PendingTransactions,
		difficulty: payload.Difficulty,
	}, nil
}

// rankFetched ranks candidates by (length desc, declared difficulty desc,
// total work desc) via chain.RankCandidates.
func rankFetched(candidates []fetchedChain) []fetchedChain {
	ranked := make([]chain.Candidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = chain.Candidate{
			Source:             c.source,
			Blocks:             c.blocks,
			DeclaredDifficulty: c.difficulty,
			FirstObservedAt:    int64(i),
		}
	}
	ranked = chain.RankCandidates(ranked)

	bySource := make(map[string]fetchedChain, len(candidates))
	for _, c := range candidates {
		bySource[c.source] = c
	}

	out := make([]fetchedChain, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, bySource[r.Source])
	}
	return out
}
