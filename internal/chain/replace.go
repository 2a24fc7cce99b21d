package chain

// Replace atomically swaps the in-memory chain for candidate under the
// write lock, returning (replaced, oldLen, newLen). On persistence
// failure, the prior in-memory snapshot is restored and replaced=false is
// returned. Replace is a no-op (replaced=false) when candidate is not
// strictly longer than the current chain, which also makes repeated calls
// with the same candidate idempotent.
//
// Callers are expected to have already run ValidateChain on candidate;
// Replace itself only performs the swap, persistence and rollback — mempool
// reconciliation is the caller's responsibility (internal/mempool
// ReconcileAfterReplace), keeping each package's single responsibility
// distinct.
func (c *Chain) Replace(candidate []Block) (replaced bool, oldLen int, newLen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldLen = len(c.blocks)
	if len(candidate) <= oldLen {
		return false, oldLen, oldLen
	}

	previous := c.blocks
	candidateCopy := make([]Block, len(candidate))
	copy(candidateCopy, candidate)

	c.blocks = candidateCopy
	c.revision++

	if c.store != nil {
		if err := c.store.Save("chain", c.blocks); err != nil {
			// Persistence failed: restore the prior snapshot so no partial
			// state is ever observable.
			c.logger.Warnf("[chain] replace: store unavailable, rolling back: %v", err)
			c.blocks = previous
			c.revision++
			return false, oldLen, oldLen
		}
	}

	return true, oldLen, len(c.blocks)
}
