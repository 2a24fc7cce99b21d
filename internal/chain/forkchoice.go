package chain

import (
	"math/big"
	"sort"
)

// TotalWork computes a total-work proxy: the sum over all blocks of
// 2^difficulty. It is used only as a tiebreak by the Sync Manager, invoked
// during full-chain sync and never inline on a single inbound block, and
// never as a cryptographic accumulation.
func TotalWork(blocks []Block) *big.Int {
	total := new(big.Int)
	one := big.NewInt(1)
	for _, b := range blocks {
		work := new(big.Int).Lsh(one, uint(b.Difficulty))
		total.Add(total, work)
	}
	return total
}

// Candidate bundles a chain fetched from a peer with the metadata the Sync
// Manager ranks by.
type Candidate struct {
	Source            string
	Blocks             []Block
	DeclaredDifficulty int
	FirstObservedAt    int64 // monotonic sequence number, not wall clock
}

// RankCandidates orders candidates by (length desc, declared difficulty
// desc, total work desc), with ties broken by first-observed order.
func RankCandidates(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	less := func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if len(a.Blocks) != len(b.Blocks) {
			return len(a.Blocks) > len(b.Blocks)
		}
		if a.DeclaredDifficulty != b.DeclaredDifficulty {
			return a.DeclaredDifficulty > b.DeclaredDifficulty
		}
		wa, wb := TotalWork(a.Blocks), TotalWork(b.Blocks)
		if cmp := wa.Cmp(wb); cmp != 0 {
			return cmp > 0
		}
		return a.FirstObservedAt < b.FirstObservedAt
	}

	sort.SliceStable(ranked, less)
	return ranked
}
