package miner_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/acem702/Ekehi-Network/internal/address"
	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/mempool"
	"github.com/acem702/Ekehi-Network/internal/miner"
	"github.com/acem702/Ekehi-Network/internal/store"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
	"github.com/stretchr/testify/require"
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

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.InitialDifficulty = 1
	cfg.MinFee = 0.001
	cfg.MaxTxPerBlock = 10
	cfg.MinerPollInterval = 5 * time.Millisecond
	cfg.MinerAddress = testAddress(t, 0x99)
	return cfg
}

type noopGossiper struct{ calls int }

func (n *noopGossiper) BroadcastBlock(ctx context.Context, block chain.Block) { n.calls++ }

func TestMinerMinesPendingTransactionIntoBlock(t *testing.T) {
	cfg := testConfig(t)
	logger := ulogger.Nop()
	c := chain.New(cfg, logger, nil)
	mp := mempool.New(cfg, logger, nil, c)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	cfg.ReservedSenders = append(cfg.ReservedSenders, sender)

	require.NoError(t, mp.Admit(chain.Transaction{
		Amount:        5,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}))

	g := &noopGossiper{}
	m := miner.New(cfg, logger, c, mp, g, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Run(ctxThatStopsAfterOneBlock(ctx, c))

	require.Equal(t, 2, c.Len())
	require.Equal(t, 5.0, c.BalanceOf(recipient))
	require.Equal(t, cfg.MiningReward, c.BalanceOf(cfg.MinerAddress))
	require.Equal(t, 0, mp.Len())
	require.Equal(t, 1, g.calls)
}

// ctxThatStopsAfterOneBlock polls the chain and cancels ctx once a second
// block appears, so Run's ticker loop exits promptly instead of waiting
// out the full timeout.
func ctxThatStopsAfterOneBlock(parent context.Context, c *chain.Chain) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-parent.Done():
				cancel()
				return
			case <-ticker.C:
				if c.Len() >= 2 {
					cancel()
					return
				}
			}
		}
	}()
	return ctx
}

func TestMinerPersistsDifficultyAndResumesAfterRestart(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetInterval = time.Hour // force every mined block to raise difficulty
	logger := ulogger.Nop()
	c := chain.New(cfg, logger, nil)
	mp := mempool.New(cfg, logger, nil, c)

	dbPath := filepath.Join(t.TempDir(), "node.db")
	s, err := store.Open(dbPath, logger)
	require.NoError(t, err)
	defer s.Close()

	sender := testAddress(t, 0x03)
	recipient := testAddress(t, 0x04)
	cfg.ReservedSenders = append(cfg.ReservedSenders, sender)
	require.NoError(t, mp.Admit(chain.Transaction{
		Amount:        5,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}))

	m := miner.New(cfg, logger, c, mp, &noopGossiper{}, s)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.Run(ctxThatStopsAfterOneBlock(ctx, c))

	require.Equal(t, cfg.InitialDifficulty+1, m.Difficulty())

	resumed := miner.New(cfg, logger, c, mp, &noopGossiper{}, s)
	require.Equal(t, cfg.InitialDifficulty+1, resumed.Difficulty())
}

func TestMinerSkipsWhenMempoolEmpty(t *testing.T) {
	cfg := testConfig(t)
	logger := ulogger.Nop()
	c := chain.New(cfg, logger, nil)
	mp := mempool.New(cfg, logger, nil, c)
	g := &noopGossiper{}
	m := miner.New(cfg, logger, c, mp, g, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	require.Equal(t, 1, c.Len())
	require.Equal(t, 0, g.calls)
}
