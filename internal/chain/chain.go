package chain

import (
	"sync"
	"time"

	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/errors"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// MempoolEvictor is the narrow slice of mempool.Mempool that Chain needs:
// dropping transactions that made it into an appended block. Defining it
// here, rather than importing package mempool, keeps chain a leaf package
// that mempool depends on one-directionally instead of the two importing
// each other.
type MempoolEvictor interface {
	EvictConfirmed(block Block)
}

// persister is the narrow slice of internal/store.Store that Chain needs.
type persister interface {
	Save(section string, value interface{}) error
	Load(section string, out interface{}) (bool, error)
}

// AddressData is the per-address activity summary: transactions, balance,
// sent, received, fees, count.
type AddressData struct {
	Address      string        `json:"address"`
	Balance      float64       `json:"balance"`
	Sent         float64       `json:"sent"`
	Received     float64       `json:"received"`
	FeesPaid     float64       `json:"feesPaid"`
	Count        int           `json:"count"`
	Transactions []Transaction `json:"transactions"`
}

// Chain is the ordered, append-mostly sequence of blocks. The chain, and
// the balances derived from replaying it, are protected by a single
// coarse read/write lock — the working set stays small enough that a
// finer-grained scheme would only add complexity.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block

	cfg    *config.Config
	logger ulogger.Logger
	store  persister

	// revision is incremented on every tip change and is the miner's
	// cancellation signal for an in-flight proof-of-work search.
	revision uint64
}

// New constructs a Chain, loading a persisted chain from store if present
// and valid, otherwise creating and persisting the fixed genesis block.
func New(cfg *config.Config, logger ulogger.Logger, store persister) *Chain {
	c := &Chain{cfg: cfg, logger: logger, store: store}

	var loaded []Block
	if store != nil {
		if ok, err := store.Load("chain", &loaded); err != nil {
			logger.Warnf("[chain] failed to load persisted chain, starting fresh: %v", err)
		} else if ok && len(loaded) > 0 {
			if err := c.validateChainLocked(loaded, false); err == nil {
				c.blocks = loaded
				logger.Infof("[chain] loaded %d blocks from store", len(loaded))
				return c
			}
			logger.Warnf("[chain] persisted chain failed validation, starting fresh")
		}
	}

	genesis := NewGenesisBlock(time.Now().UnixMilli())
	c.blocks = []Block{genesis}
	c.persist()

	return c
}

// Revision returns the current tip revision, used by the miner to detect a
// tip change and cancel an in-flight PoW search.
func (c *Chain) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Tip returns a copy of the current tip block.
func (c *Chain) Tip() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Len returns the number of blocks on the canonical chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Snapshot returns a defensive copy of the full canonical chain.
func (c *Chain) Snapshot() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// TotalSupply sums every coinbase reward ever emitted.
func (c *Chain) TotalSupply() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total float64
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.IsCoinbase() {
				total += t.Amount
			}
		}
	}
	return total
}

func (c *Chain) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save("chain", c.blocks); err != nil {
		// Persistence is best-effort; the caller proceeds in-memory.
		c.logger.Warnf("[chain] store unavailable, continuing in-memory: %v", err)
	}
}

// TransactionExists reports whether id appears in any block of the
// canonical chain.
func (c *Chain) TransactionExists(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transactionExistsLocked(id)
}

func (c *Chain) transactionExistsLocked(id string) bool {
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.TransactionID == id {
				return true
			}
		}
	}
	return false
}

// BalanceOf replays the canonical chain from genesis: +amount on receive,
// -amount-fee on send; reserved senders emit without debit.
func (c *Chain) BalanceOf(addr string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return balancesFromBlocks(c.blocks, c.cfg.ReservedSenders)[addr]
}

func balancesFromBlocks(blocks []Block, reservedSenders []string) map[string]float64 {
	balances := make(map[string]float64)
	for _, b := range blocks {
		for _, t := range b.Transactions {
			if !IsReserved(t.Sender, reservedSenders) {
				balances[t.Sender] -= t.Amount + t.Fee
			}
			balances[t.Recipient] += t.Amount
		}
	}
	return balances
}

// AddressData replays the chain to produce a per-address activity view.
func (c *Chain) AddressData(addr string) AddressData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := AddressData{Address: addr}
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.Sender != addr && t.Recipient != addr {
				continue
			}
			out.Transactions = append(out.Transactions, t)
			out.Count++
			if t.Sender == addr && !IsReserved(t.Sender, c.cfg.ReservedSenders) {
				out.Sent += t.Amount
				out.FeesPaid += t.Fee
				out.Balance -= t.Amount + t.Fee
			} else if t.Sender == addr {
				out.Balance -= 0 // reserved senders emit without debit
			}
			if t.Recipient == addr {
				out.Received += t.Amount
				out.Balance += t.Amount
			}
		}
	}
	return out
}

// BlockByHash does a linear scan for the block with the given hash; the
// chain stays small enough that an index would be premature.
func (c *Chain) BlockByHash(hash string) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b.Hash == hash {
			return b, true
		}
	}
	return Block{}, false
}

// TransactionByID does a linear scan for a transaction and its containing block.
func (c *Chain) TransactionByID(id string) (Transaction, Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.TransactionID == id {
				return t, b, true
			}
		}
	}
	return Transaction{}, Block{}, false
}

// AppendValidated appends block to the tip: precondition: block links to
// the current tip and its hash/PoW/content validate. Postcondition: tip
// updated, store write scheduled, mempool entries included in the block
// evicted.
func (c *Chain) AppendValidated(block Block, evictor MempoolEvictor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.blocks[len(c.blocks)-1]
	if err := c.checkLinkAndPoWLocked(tip, block); err != nil {
		return err
	}
	if err := c.checkBlockTransactionsLocked(block); err != nil {
		return err
	}

	c.blocks = append(c.blocks, block)
	c.revision++
	c.persist()

	if evictor != nil {
		evictor.EvictConfirmed(block)
	}

	return nil
}

func (c *Chain) checkLinkAndPoWLocked(tip, block Block) error {
	if block.PreviousBlockHash != tip.Hash {
		return errors.New(errors.KindInvalidBlock, "previousBlockHash %q does not match tip %q", block.PreviousBlockHash, tip.Hash)
	}
	if block.Index != tip.Index+1 {
		return errors.New(errors.KindInvalidBlock, "index %d does not follow tip index %d", block.Index, tip.Index)
	}
	wantHash, err := ComputeHash(block.PreviousBlockHash, block.Nonce, block.Index, block.Transactions)
	if err != nil {
		return errors.Wrap(errors.KindInvalidBlock, err, "hash recomputation failed")
	}
	if wantHash != block.Hash {
		return errors.New(errors.KindInvalidBlock, "hash mismatch: recomputed %q, declared %q", wantHash, block.Hash)
	}
	if !SatisfiesDifficulty(block.Hash, block.Difficulty) {
		return errors.New(errors.KindInvalidBlock, "hash %q does not satisfy declared difficulty %d", block.Hash, block.Difficulty)
	}
	return nil
}

func (c *Chain) checkBlockTransactionsLocked(block Block) error {
	if len(block.Transactions) > c.cfg.MaxTxPerBlock {
		return errors.New(errors.KindInvalidBlock, "block has %d transactions, exceeds max %d", len(block.Transactions), c.cfg.MaxTxPerBlock)
	}

	coinbaseCount := 0
	seen := make(map[string]bool, len(block.Transactions))
	balances := balancesFromBlocks(c.blocks, c.cfg.ReservedSenders)

	for _, t := range block.Transactions {
		if seen[t.TransactionID] || c.transactionExistsLocked(t.TransactionID) {
			return errors.New(errors.KindDuplicateTransaction, "duplicate transactionId %q", t.TransactionID)
		}
		seen[t.TransactionID] = true

		if t.IsCoinbase() {
			coinbaseCount++
			if t.Amount != c.cfg.MiningReward {
				return errors.New(errors.KindInvalidBlock, "coinbase amount %.8f does not match mining reward %.8f", t.Amount, c.cfg.MiningReward)
			}
			balances[t.Recipient] += t.Amount
			continue
		}

		if err := ValidateTransactionShape(t, c.cfg.MinFee, c.cfg.ReservedSenders); err != nil {
			return err
		}
		if !IsReserved(t.Sender, c.cfg.ReservedSenders) && balances[t.Sender] < t.Amount+t.Fee {
			return errors.New(errors.KindInsufficientBalance, "sender %q balance %.8f insufficient for %.8f", t.Sender, balances[t.Sender], t.Amount+t.Fee)
		}

		if !IsReserved(t.Sender, c.cfg.ReservedSenders) {
			balances[t.Sender] -= t.Amount + t.Fee
		}
		balances[t.Recipient] += t.Amount
	}

	if coinbaseCount > 1 {
		return errors.New(errors.KindInvalidBlock, "block has %d coinbase transactions, max 1", coinbaseCount)
	}

	if SumFees(block.Transactions) != block.TotalFees {
		return errors.New(errors.KindInvalidBlock, "totalFees %.8f does not match computed %.8f", block.TotalFees, SumFees(block.Transactions))
	}

	return nil
}
