package chain

// ReceiveNewBlock is the inbound single-block append path: accept iff
// previousBlockHash == tip.hash AND index == tip.index+1 AND hash
// recomputation, PoW and transaction admission all pass. On accept, drop
// mempool entries whose transactionId appears in the block. Reject
// (with a logged reason) otherwise — deeper reconciliation is the Sync
// Manager's job, not this path's.
func (c *Chain) ReceiveNewBlock(block Block, evictor MempoolEvictor) bool {
	if err := c.AppendValidated(block, evictor); err != nil {
		c.logger.Debugf("[chain] rejected inbound block %d: %v", block.Index, err)
		return false
	}
	return true
}
