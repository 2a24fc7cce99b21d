package chain_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/acem702/Ekehi-Network/internal/address"
	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

func testAddress(t *testing.T, seed byte) string {
	t.Helper()
	payload := make([]byte, address.PayloadLen)
	for i := range payload {
		payload[i] = seed
	}
	a, ok := address.Encode(payload)
	require.True(t, ok)
	return a
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MinFee = 0.001
	cfg.MiningReward = 12.5
	cfg.MaxTxPerBlock = 10
	return cfg
}

func mineBlock(t *testing.T, prev chain.Block, txs []chain.Transaction, difficulty int) chain.Block {
	t.Helper()
	var nonce uint64
	for {
		hash, err := chain.ComputeHash(prev.Hash, nonce, prev.Index+1, txs)
		require.NoError(t, err)
		if chain.SatisfiesDifficulty(hash, difficulty) {
			return chain.Block{
				Index:             prev.Index + 1,
				Timestamp:         prev.Timestamp + 1,
				Transactions:      txs,
				PreviousBlockHash: prev.Hash,
				Nonce:             nonce,
				Hash:              hash,
				Difficulty:        difficulty,
				TotalFees:         chain.SumFees(txs),
			}
		}
		nonce++
	}
}

func TestGenesisOnlyChainValidates(t *testing.T) {
	c := chain.New(testConfig(), ulogger.Nop(), nil)
	require.Equal(t, 1, c.Len())
	require.NoError(t, c.ValidateChain(c.Snapshot(), false))
	require.Equal(t, float64(0), c.TotalSupply())
}

func TestAppendValidatedFaucetAndCoinbase(t *testing.T) {
	cfg := testConfig()
	c := chain.New(cfg, ulogger.Nop(), nil)
	tip := c.Tip()

	faucetTx := chain.Transaction{
		Amount:        100,
		Sender:        "FAUCET",
		Recipient:     testAddress(t, 0x11),
		Fee:           0,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}
	coinbase := chain.Transaction{
		Amount:        cfg.MiningReward,
		Sender:        chain.CoinbaseSender,
		Recipient:     testAddress(t, 0xaa),
		Fee:           0,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}

	block := mineBlock(t, tip, []chain.Transaction{faucetTx, coinbase}, 1)
	require.NoError(t, c.AppendValidated(block, nil))
	require.Equal(t, 2, c.Len())
	require.Equal(t, 100.0, c.BalanceOf(faucetTx.Recipient))
	require.Equal(t, cfg.MiningReward, c.BalanceOf(coinbase.Recipient))
}

func TestAppendValidatedRejectsBadLink(t *testing.T) {
	c := chain.New(testConfig(), ulogger.Nop(), nil)
	tip := c.Tip()

	bad := mineBlock(t, tip, nil, 1)
	bad.PreviousBlockHash = "deadbeef"

	err := c.AppendValidated(bad, nil)
	require.Error(t, err)
	require.Equal(t, 1, c.Len())
}

func TestReplaceIsIdempotent(t *testing.T) {
	c := chain.New(testConfig(), ulogger.Nop(), nil)
	tip := c.Tip()

	candidate := []chain.Block{tip, mineBlock(t, tip, nil, 1)}

	replaced, oldLen, newLen := c.Replace(candidate)
	require.True(t, replaced)
	require.Equal(t, 1, oldLen)
	require.Equal(t, 2, newLen)

	replaced2, _, _ := c.Replace(candidate)
	require.False(t, replaced2)
}

func TestReceiveNewBlockRejectsWrongPreviousHash(t *testing.T) {
	c := chain.New(testConfig(), ulogger.Nop(), nil)
	tip := c.Tip()
	bad := mineBlock(t, tip, nil, 1)
	bad.PreviousBlockHash = "notthetip"

	require.False(t, c.ReceiveNewBlock(bad, nil))
	require.Equal(t, 1, c.Len())
}

func TestSnapshotIsAnIndependentCopy(t *testing.T) {
	c := chain.New(testConfig(), ulogger.Nop(), nil)
	tip := c.Tip()
	mined := mineBlock(t, tip, nil, 1)
	require.NoError(t, c.AppendValidated(mined, nil))

	first := c.Snapshot()
	second := c.Snapshot()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("two snapshots of the same chain differ:\n%s", diff)
	}

	first[0].Hash = "tampered"
	if diff := cmp.Diff(first[0], second[0]); diff == "" {
		t.Fatalf("mutating one snapshot affected another; Snapshot is not an independent copy")
	}
}
