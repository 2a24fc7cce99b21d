package chain

import "github.com/acem702/Ekehi-Network/internal/errors"

// ValidateChain validates a full candidate chain end-to-end: structural
// shape, link, recomputed hash, PoW against the declared difficulty, and
// that every transaction satisfies admission rules using balances replayed
// from genesis over the candidate. Rejects duplicate transactionId and
// mismatched totalFees.
//
// tolerantGenesis allows a genesis block with index 0, for compatibility
// with peers built against an older genesis-indexing convention; this
// node's own chain always requires index 1.
func (c *Chain) ValidateChain(blocks []Block, tolerantGenesis bool) error {
	return c.validateChainLocked(blocks, tolerantGenesis)
}

func (c *Chain) validateChainLocked(blocks []Block, tolerantGenesis bool) error {
	if len(blocks) == 0 {
		return errors.New(errors.KindChainInvalid, "chain is empty")
	}

	genesis := blocks[0]
	if genesis.PreviousBlockHash != GenesisPreviousHash || genesis.Hash != GenesisSentinelHash {
		return errors.New(errors.KindChainInvalid, "genesis block malformed")
	}
	if genesis.Index != 1 {
		if !(tolerantGenesis && genesis.Index == 0) {
			return errors.New(errors.KindChainInvalid, "genesis index must be 1")
		}
	}

	balances := make(map[string]float64)
	seen := make(map[string]bool)

	for i := 1; i < len(blocks); i++ {
		prev := blocks[i-1]
		cur := blocks[i]

		if cur.PreviousBlockHash != prev.Hash {
			return errors.New(errors.KindChainInvalid, "block %d previousBlockHash does not match block %d hash", i, i-1)
		}
		if cur.Index != prev.Index+1 {
			return errors.New(errors.KindChainInvalid, "block %d index does not follow block %d", i, i-1)
		}

		wantHash, err := ComputeHash(cur.PreviousBlockHash, cur.Nonce, cur.Index, cur.Transactions)
		if err != nil {
			return errors.Wrap(errors.KindChainInvalid, err, "hash recomputation failed at block %d", i)
		}
		if wantHash != cur.Hash {
			return errors.New(errors.KindChainInvalid, "hash mismatch at block %d", i)
		}
		if !SatisfiesDifficulty(cur.Hash, cur.Difficulty) {
			return errors.New(errors.KindChainInvalid, "block %d does not satisfy its declared difficulty %d", i, cur.Difficulty)
		}
		if len(cur.Transactions) > c.cfg.MaxTxPerBlock {
			return errors.New(errors.KindChainInvalid, "block %d exceeds max transactions per block", i)
		}

		coinbaseCount := 0
		for _, t := range cur.Transactions {
			if seen[t.TransactionID] {
				return errors.New(errors.KindChainInvalid, "duplicate transactionId %q at block %d", t.TransactionID, i)
			}
			seen[t.TransactionID] = true

			if t.IsCoinbase() {
				coinbaseCount++
				if t.Amount != c.cfg.MiningReward {
					return errors.New(errors.KindChainInvalid, "block %d coinbase amount mismatch", i)
				}
				balances[t.Recipient] += t.Amount
				continue
			}

			if err := ValidateTransactionShape(t, c.cfg.MinFee, c.cfg.ReservedSenders); err != nil {
				return errors.Wrap(errors.KindChainInvalid, err, "block %d transaction %q invalid", i, t.TransactionID)
			}

			if !IsReserved(t.Sender, c.cfg.ReservedSenders) && balances[t.Sender] < t.Amount+t.Fee {
				return errors.New(errors.KindChainInvalid, "block %d transaction %q: insufficient balance", i, t.TransactionID)
			}

			if !IsReserved(t.Sender, c.cfg.ReservedSenders) {
				balances[t.Sender] -= t.Amount + t.Fee
			}
			balances[t.Recipient] += t.Amount
		}

		if coinbaseCount > 1 {
			return errors.New(errors.KindChainInvalid, "block %d has more than one coinbase transaction", i)
		}
		if SumFees(cur.Transactions) != cur.TotalFees {
			return errors.New(errors.KindChainInvalid, "block %d totalFees mismatch", i)
		}
	}

	return nil
}
