// Package miner implements the dedicated mining worker: block assembly,
// proof-of-work search, coinbase emission, and difficulty adjustment.
package miner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// ChainAppender is the narrow slice of *chain.Chain the miner needs.
type ChainAppender interface {
	Tip() chain.Block
	Revision() uint64
	AppendValidated(block chain.Block, evictor chain.MempoolEvictor) error
}

// MempoolSource is the narrow slice of *mempool.Mempool the miner needs.
type MempoolSource interface {
	Len() int
	Take(n int) []chain.Transaction
	EvictConfirmed(block chain.Block)
}

// Gossiper is the narrow slice of *gossip.Gossiper the miner needs,
// defined locally so miner depends one-directionally on gossip.
type Gossiper interface {
	BroadcastBlock(ctx context.Context, block chain.Block)
}

// persister is the narrow slice of internal/store.Store that Miner needs.
type persister interface {
	Save(section string, value interface{}) error
	Load(section string, out interface{}) (bool, error)
}

// nodeConfig is the runtime-mutable slice of node configuration that
// survives a restart: the miner's live-adjusted difficulty.
type nodeConfig struct {
	Difficulty int `json:"difficulty"`
}

// Miner is the node's dedicated proof-of-work worker. A single worker
// polls the mempool on an interval; a mining flag prevents concurrent
// invocations, and a chain revision check lets an in-flight PoW search
// notice a tip change and abandon its candidate without touching the
// mempool.
type Miner struct {
	cfg      *config.Config
	logger   ulogger.Logger
	chain    ChainAppender
	mempool  MempoolSource
	gossiper Gossiper
	store    persister

	mining     int32 // atomic: guards against concurrent mining passes
	difficulty int32 // atomic: current PoW difficulty, adjusted per block
	enabled    int32 // atomic: 1 unless paused via SetEnabled(false)
}

// New constructs a Miner, resuming a persisted difficulty from store if
// present, otherwise starting at cfg.InitialDifficulty. Always starts
// enabled.
func New(cfg *config.Config, logger ulogger.Logger, c ChainAppender, m MempoolSource, g Gossiper, store persister) *Miner {
	difficulty := cfg.InitialDifficulty
	if store != nil {
		var loaded nodeConfig
		if ok, err := store.Load("config", &loaded); err != nil {
			logger.Warnf("[miner] failed to load persisted config, using initial difficulty: %v", err)
		} else if ok {
			difficulty = loaded.Difficulty
		}
	}

	return &Miner{
		cfg:        cfg,
		logger:     logger,
		chain:      c,
		mempool:    m,
		gossiper:   g,
		store:      store,
		difficulty: int32(difficulty),
		enabled:    1,
	}
}

func (m *Miner) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.Save("config", nodeConfig{Difficulty: m.Difficulty()}); err != nil {
		m.logger.Warnf("[miner] store unavailable, continuing in-memory: %v", err)
	}
}

// Difficulty returns the current PoW difficulty.
func (m *Miner) Difficulty() int {
	return int(atomic.LoadInt32(&m.difficulty))
}

// Enabled reports whether the miner is currently allowed to assemble
// blocks. Operators pause mining via SetEnabled without stopping Run's
// polling loop, so it resumes immediately once re-enabled.
func (m *Miner) Enabled() bool {
	return atomic.LoadInt32(&m.enabled) == 1
}

// SetEnabled pauses or resumes block assembly.
func (m *Miner) SetEnabled(enabled bool) {
	if enabled {
		atomic.StoreInt32(&m.enabled, 1)
	} else {
		atomic.StoreInt32(&m.enabled, 0)
	}
}

// Run polls the mempool every MinerPollInterval, attempting one block
// assembly pass per tick, until ctx is done.
func (m *Miner) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MinerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tryMineOnce(ctx)
		}
	}
}

func (m *Miner) tryMineOnce(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	if m.mempool.Len() == 0 {
		return
	}
	if !atomic.CompareAndSwapInt32(&m.mining, 0, 1) {
		return // a mining pass is already running
	}
	defer atomic.StoreInt32(&m.mining, 0)

	m.mineOneBlock(ctx)
}

// mineOneBlock runs the block assembly procedure: snapshot tip, take
// pending transactions, append the coinbase transaction, search for a
// valid nonce over the full transaction list (cancellable by a tip
// revision change), append the block, adjust difficulty, and broadcast.
func (m *Miner) mineOneBlock(ctx context.Context) {
	tip := m.chain.Tip()
	startRevision := m.chain.Revision()

	txs := m.mempool.Take(m.cfg.MaxTxPerBlock - 1)
	difficulty := m.Difficulty()

	coinbase := chain.Transaction{
		Amount:        m.cfg.MiningReward,
		Sender:        chain.CoinbaseSender,
		Recipient:     m.cfg.MinerAddress,
		Fee:           0,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     time.Now().UnixMilli(),
	}
	blockTxs := append(txs, coinbase)

	nonce, hash, ok := m.searchProofOfWork(ctx, tip, blockTxs, difficulty, startRevision)
	if !ok {
		return
	}

	block := chain.Block{
		Index:             tip.Index + 1,
		Timestamp:         time.Now().UnixMilli(),
		Transactions:      blockTxs,
		PreviousBlockHash: tip.Hash,
		Nonce:             nonce,
		Hash:              hash,
		Difficulty:        difficulty,
		TotalFees:         chain.SumFees(blockTxs),
	}

	if err := m.chain.AppendValidated(block, evictorAdapter{m.mempool}); err != nil {
		// Most likely the tip moved out from under us between the search
		// finishing and the append; the next tick starts fresh.
		m.logger.Debugf("[miner] append failed, discarding candidate: %v", err)
		return
	}

	m.adjustDifficulty(tip, block)

	if m.gossiper != nil {
		m.gossiper.BroadcastBlock(ctx, block)
	}
}

// evictorAdapter lets a MempoolSource satisfy chain.MempoolEvictor without
// widening MempoolSource's own interface surface.
type evictorAdapter struct {
	m MempoolSource
}

func (e evictorAdapter) EvictConfirmed(block chain.Block) {
	e.m.EvictConfirmed(block)
}

// searchProofOfWork increments nonce from zero until the recomputed hash
// satisfies difficulty, or the chain's revision changes (a new tip was
// adopted, so this candidate is stale) or ctx is cancelled.
func (m *Miner) searchProofOfWork(ctx context.Context, tip chain.Block, txs []chain.Transaction, difficulty int, startRevision uint64) (nonce uint64, hash string, ok bool) {
	const revisionCheckInterval = 4096

	for n := uint64(0); ; n++ {
		if n%revisionCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return 0, "", false
			default:
			}
			if m.chain.Revision() != startRevision {
				return 0, "", false
			}
		}

		h, err := chain.ComputeHash(tip.Hash, n, tip.Index+1, txs)
		if err != nil {
			m.logger.Errorf("[miner] hash computation failed: %v", err)
			return 0, "", false
		}
		if chain.SatisfiesDifficulty(h, difficulty) {
			return n, h, true
		}
	}
}

// adjustDifficulty compares the interval between tip and its predecessor
// against cfg.TargetInterval: below half the target, increase difficulty;
// above double the target, decrease with a floor of 1. Adjusts by at most
// ±1 per block, for every appended non-genesis block, including the first
// block after genesis.
func (m *Miner) adjustDifficulty(predecessor, mined chain.Block) {
	if mined.IsGenesis() {
		return
	}

	interval := time.Duration(mined.Timestamp-predecessor.Timestamp) * time.Millisecond

	current := atomic.LoadInt32(&m.difficulty)
	switch {
	case interval < m.cfg.TargetInterval/2:
		atomic.StoreInt32(&m.difficulty, current+1)
	case interval > m.cfg.TargetInterval*2 && current > 1:
		atomic.StoreInt32(&m.difficulty, current-1)
	default:
		return
	}
	m.persist()
}
