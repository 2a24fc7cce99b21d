// Package mempool implements the node's pending transaction set: admission
// rules, ordered take for mining, and reconciliation after a chain
// replacement.
package mempool

import (
	"sync"

	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/errors"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// ChainBalancer is the narrow slice of chain.Chain that admission needs:
// current balances and chain-wide transaction-id membership. Defined here,
// rather than importing a concrete *chain.Chain dependency both ways,
// keeps mempool a one-directional consumer of package chain.
type ChainBalancer interface {
	BalanceOf(address string) float64
	TransactionExists(id string) bool
}

// persister is the narrow slice of internal/store.Store that Mempool needs.
type persister interface {
	Save(section string, value interface{}) error
	Load(section string, out interface{}) (bool, error)
}

// Mempool is the unordered set of admitted but unmined transactions, keyed
// by transactionId, preserving insertion order for mining.
type Mempool struct {
	mu     sync.Mutex
	order  []string
	byID   map[string]chain.Transaction

	cfg    *config.Config
	logger ulogger.Logger
	store  persister
	chain  ChainBalancer
}

// New constructs a Mempool, restoring any persisted pending transactions.
func New(cfg *config.Config, logger ulogger.Logger, store persister, chainReader ChainBalancer) *Mempool {
	m := &Mempool{
		byID:   make(map[string]chain.Transaction),
		cfg:    cfg,
		logger: logger,
		store:  store,
		chain:  chainReader,
	}

	if store != nil {
		var loaded []chain.Transaction
		if ok, err := store.Load("mempool", &loaded); err != nil {
			logger.Warnf("[mempool] failed to load persisted mempool: %v", err)
		} else if ok {
			for _, t := range loaded {
				m.order = append(m.order, t.TransactionID)
				m.byID[t.TransactionID] = t
			}
		}
	}

	return m
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Snapshot returns a defensive copy of the pending set, in insertion order.
func (m *Mempool) Snapshot() []chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Mempool) snapshotLocked() []chain.Transaction {
	out := make([]chain.Transaction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

func (m *Mempool) persistLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.Save("mempool", m.snapshotLocked()); err != nil {
		m.logger.Warnf("[mempool] store unavailable, continuing in-memory: %v", err)
	}
}

// Admit runs full transaction validation: address shapes, distinct
// sender/recipient, positive amount, fee floor for non-reserved senders,
// sufficient balance using current chain state, no duplicate
// transactionId. On failure returns a typed error.
func (m *Mempool) Admit(t chain.Transaction) error {
	if err := chain.ValidateTransactionShape(t, m.cfg.MinFee, m.cfg.ReservedSenders); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[t.TransactionID]; exists {
		return errors.New(errors.KindDuplicateTransaction, "transactionId %q already pending", t.TransactionID)
	}
	if m.chain != nil && m.chain.TransactionExists(t.TransactionID) {
		return errors.New(errors.KindDuplicateTransaction, "transactionId %q already on chain", t.TransactionID)
	}

	if m.chain != nil && !chain.IsReserved(t.Sender, m.cfg.ReservedSenders) {
		balance := m.chain.BalanceOf(t.Sender)
		balance -= m.pendingDebitLocked(t.Sender)
		if balance < t.Amount+t.Fee {
			return errors.New(errors.KindInsufficientBalance, "sender %q balance %.8f insufficient for %.8f", t.Sender, balance, t.Amount+t.Fee)
		}
	}

	m.order = append(m.order, t.TransactionID)
	m.byID[t.TransactionID] = t
	m.persistLocked()

	return nil
}

// pendingDebitLocked sums the amount+fee already committed by sender across
// other pending transactions, so Admit rejects a second transaction that
// would overdraw a balance the first pending transaction already spends.
func (m *Mempool) pendingDebitLocked(sender string) float64 {
	var total float64
	for _, id := range m.order {
		t := m.byID[id]
		if t.Sender == sender {
			total += t.Amount + t.Fee
		}
	}
	return total
}

// Take returns up to n transactions in insertion order, for mining.
func (m *Mempool) Take(n int) []chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.order) {
		n = len(m.order)
	}
	out := make([]chain.Transaction, n)
	for i := 0; i < n; i++ {
		out[i] = m.byID[m.order[i]]
	}
	return out
}

// EvictConfirmed removes by transactionId every transaction in block.
// Satisfies chain.MempoolEvictor.
func (m *Mempool) EvictConfirmed(block chain.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range block.Transactions {
		m.removeLocked(t.TransactionID)
	}
	m.persistLocked()
}

func (m *Mempool) removeLocked(id string) {
	if _, ok := m.byID[id]; !ok {
		return
	}
	delete(m.byID, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Purge removes every pending transaction, for administrative use.
func (m *Mempool) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.byID = make(map[string]chain.Transaction)
	m.persistLocked()
}

// ReconcileAfterReplace rebuilds the pending set as the union of the
// adopted chain's source peer's pending transactions and this node's own
// prior pending set, minus any transactionId now present on the adopted
// chain, de-duplicated by id.
func (m *Mempool) ReconcileAfterReplace(adoptedChain []chain.Block, remotePending []chain.Transaction) {
	onChain := make(map[string]bool)
	for _, b := range adoptedChain {
		for _, t := range b.Transactions {
			onChain[t.TransactionID] = true
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make(map[string]chain.Transaction)
	order := make([]string, 0, len(m.order)+len(remotePending))

	for _, id := range m.order {
		t := m.byID[id]
		if onChain[t.TransactionID] {
			continue
		}
		if _, dup := merged[t.TransactionID]; dup {
			continue
		}
		merged[t.TransactionID] = t
		order = append(order, t.TransactionID)
	}
	for _, t := range remotePending {
		if onChain[t.TransactionID] {
			continue
		}
		if _, dup := merged[t.TransactionID]; dup {
			continue
		}
		merged[t.TransactionID] = t
		order = append(order, t.TransactionID)
	}

	m.order = order
	m.byID = merged
	m.persistLocked()
}
