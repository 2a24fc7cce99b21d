// Package chain implements the block/transaction data model, cryptographic
// linkage, balance accounting and fork-choice semantics of the node's
// account-based proof-of-work ledger.
package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
)

// GenesisSentinelHash is the fixed hash of the genesis block.
const GenesisSentinelHash = "0"

// GenesisPreviousHash is the fixed previousBlockHash of the genesis block.
const GenesisPreviousHash = "0"

// GenesisNonce is the fixed nonce of the genesis block.
const GenesisNonce = 100

// CoinbaseSender is the reserved sender token for mining-reward transactions.
const CoinbaseSender = "00"

// Transaction is the node's transaction record. Field declaration order
// matches the consensus-critical serialization order: amount, sender,
// recipient, fee, transactionId, timestamp, [network].
type Transaction struct {
	Amount        float64 `json:"amount"`
	Sender        string  `json:"sender"`
	Recipient     string  `json:"recipient"`
	Fee           float64 `json:"fee"`
	TransactionID string  `json:"transactionId"`
	Timestamp     int64   `json:"timestamp"`

	// Network is a closed, consensus-relevant annotation: one of the named
	// optional fields a transaction can carry, modeled as a tagged variant
	// rather than folded into the free-form Annotations map below.
	Network string `json:"network,omitempty"`

	// Annotations holds the optional, consensus-irrelevant "activity"
	// object; other unknown JSON fields are dropped on decode. Never
	// included in block hash material.
	Annotations map[string]interface{} `json:"activity,omitempty"`
}

// NewTransactionID returns a fresh 128-bit opaque transaction identifier.
func NewTransactionID() string {
	return uuid.NewString()
}

// IsCoinbase reports whether t is a mining-reward transaction.
func (t Transaction) IsCoinbase() bool {
	return t.Sender == CoinbaseSender
}

// canonicalTx is the subset of Transaction included in consensus hashing,
// in the exact field order the hash material requires.
type canonicalTx struct {
	Amount        float64 `json:"amount"`
	Sender        string  `json:"sender"`
	Recipient     string  `json:"recipient"`
	Fee           float64 `json:"fee"`
	TransactionID string  `json:"transactionId"`
	Timestamp     int64   `json:"timestamp"`
	Network       string  `json:"network,omitempty"`
}

func (t Transaction) canonical() canonicalTx {
	return canonicalTx{
		Amount:        t.Amount,
		Sender:        t.Sender,
		Recipient:     t.Recipient,
		Fee:           t.Fee,
		TransactionID: t.TransactionID,
		Timestamp:     t.Timestamp,
		Network:       t.Network,
	}
}

// Block is the node's block record.
type Block struct {
	Index             uint64        `json:"index"`
	Timestamp         int64         `json:"timestamp"`
	Transactions      []Transaction `json:"transactions"`
	PreviousBlockHash string        `json:"previousBlockHash"`
	Nonce             uint64        `json:"nonce"`
	Hash              string        `json:"hash"`
	Difficulty        int           `json:"difficulty"`
	TotalFees         float64       `json:"totalFees"`
}

// hashMaterial is the canonical {transactions, index} object hashed together
// with previousBlockHash and the nonce. Field order (transactions, then
// index) is consensus-critical.
type hashMaterial struct {
	Transactions []canonicalTx `json:"transactions"`
	Index        uint64        `json:"index"`
}

// ComputeHash reproduces a block's hash from its constituents:
// SHA-256(previousBlockHash || decimal(nonce) || JSON({transactions,index})).
func ComputeHash(previousBlockHash string, nonce uint64, index uint64, txs []Transaction) (string, error) {
	canon := make([]canonicalTx, len(txs))
	for i, t := range txs {
		canon[i] = t.canonical()
	}

	payload, err := json.Marshal(hashMaterial{Transactions: canon, Index: index})
	if err != nil {
		return "", err
	}

	material := previousBlockHash + strconv.FormatUint(nonce, 10) + string(payload)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:]), nil
}

// IsGenesis reports whether b is the fixed genesis block.
func (b Block) IsGenesis() bool {
	return b.Index == 1 && b.PreviousBlockHash == GenesisPreviousHash && b.Hash == GenesisSentinelHash
}

// NewGenesisBlock builds the fixed genesis block: nonce=100,
// previousBlockHash="0", hash="0", no transactions.
func NewGenesisBlock(timestamp int64) Block {
	return Block{
		Index:             1,
		Timestamp:         timestamp,
		Transactions:      []Transaction{},
		PreviousBlockHash: GenesisPreviousHash,
		Nonce:             GenesisNonce,
		Hash:              GenesisSentinelHash,
		Difficulty:        0,
		TotalFees:          0,
	}
}

// LeadingZeros counts leading hex '0' characters in a hash string.
func LeadingZeros(hash string) int {
	n := 0
	for _, c := range hash {
		if c != '0' {
			break
		}
		n++
	}
	return n
}

// SatisfiesDifficulty reports whether hash has at least difficulty leading
// hex zero characters — the proof-of-work acceptance rule.
func SatisfiesDifficulty(hash string, difficulty int) bool {
	return LeadingZeros(hash) >= difficulty
}

// SumFees returns the sum of Fee across all non-coinbase transactions.
func SumFees(txs []Transaction) float64 {
	var total float64
	for _, t := range txs {
		if !t.IsCoinbase() {
			total += t.Fee
		}
	}
	return total
}
