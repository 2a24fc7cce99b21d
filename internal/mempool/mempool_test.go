package mempool_test

import (
	"testing"

	"github.com/acem702/Ekehi-Network/internal/address"
	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/errors"
	"github.com/acem702/Ekehi-Network/internal/mempool"
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

// fakeChain is a minimal mempool.ChainBalancer stub, standing in for a real
// *chain.Chain without pulling in block mining machinery for these tests.
type fakeChain struct {
	balances map[string]float64
	ids      map[string]bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{balances: make(map[string]float64), ids: make(map[string]bool)}
}

func (f *fakeChain) BalanceOf(addr string) float64     { return f.balances[addr] }
func (f *fakeChain) TransactionExists(id string) bool { return f.ids[id] }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MinFee = 0.001
	return cfg
}

func TestAdmitRejectsInsufficientBalance(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 1

	err := m.Admit(chain.Transaction{
		Amount:        10,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0.001,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	})
	require.Error(t, err)
	require.Equal(t, errors.KindInsufficientBalance, errors.KindOf(err))
	require.Equal(t, 0, m.Len())
}

func TestAdmitRejectsBelowMinFee(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 100

	err := m.Admit(chain.Transaction{
		Amount:        10,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	})
	require.Error(t, err)
	require.Equal(t, errors.KindInvalidTransaction, errors.KindOf(err))
}

func TestAdmitRejectsDuplicateTransactionID(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 100

	tx := chain.Transaction{
		Amount:        10,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0.001,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}
	require.NoError(t, m.Admit(tx))
	err := m.Admit(tx)
	require.Error(t, err)
	require.Equal(t, errors.KindDuplicateTransaction, errors.KindOf(err))
	require.Equal(t, 1, m.Len())
}

func TestAdmitSecondTransactionAccountsForPendingDebit(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 10

	first := chain.Transaction{
		Amount:        8,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0.001,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}
	require.NoError(t, m.Admit(first))

	second := chain.Transaction{
		Amount:        8,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0.001,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     2,
	}
	err := m.Admit(second)
	require.Error(t, err)
	require.Equal(t, errors.KindInsufficientBalance, errors.KindOf(err))
}

func TestTakeReturnsInsertionOrder(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 1000

	var ids []string
	for i := 0; i < 3; i++ {
		tx := chain.Transaction{
			Amount:        1,
			Sender:        sender,
			Recipient:     recipient,
			Fee:           0.001,
			TransactionID: chain.NewTransactionID(),
			Timestamp:     int64(i),
		}
		ids = append(ids, tx.TransactionID)
		require.NoError(t, m.Admit(tx))
	}

	taken := m.Take(2)
	require.Len(t, taken, 2)
	require.Equal(t, ids[0], taken[0].TransactionID)
	require.Equal(t, ids[1], taken[1].TransactionID)
}

func TestEvictConfirmedRemovesMinedTransactions(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 100

	tx := chain.Transaction{
		Amount:        1,
		Sender:        sender,
		Recipient:     recipient,
		Fee:           0.001,
		TransactionID: chain.NewTransactionID(),
		Timestamp:     1,
	}
	require.NoError(t, m.Admit(tx))
	require.Equal(t, 1, m.Len())

	m.EvictConfirmed(chain.Block{Transactions: []chain.Transaction{tx}})
	require.Equal(t, 0, m.Len())
}

func TestReconcileAfterReplaceDropsOnChainAndMergesRemote(t *testing.T) {
	fc := newFakeChain()
	m := mempool.New(testConfig(), ulogger.Nop(), nil, fc)

	sender := testAddress(t, 0x01)
	recipient := testAddress(t, 0x02)
	fc.balances[sender] = 100

	stillPending := chain.Transaction{
		Amount: 1, Sender: sender, Recipient: recipient, Fee: 0.001,
		TransactionID: chain.NewTransactionID(), Timestamp: 1,
	}
	nowOnChain := chain.Transaction{
		Amount: 2, Sender: sender, Recipient: recipient, Fee: 0.001,
		TransactionID: chain.NewTransactionID(), Timestamp: 2,
	}
	require.NoError(t, m.Admit(stillPending))
	require.NoError(t, m.Admit(nowOnChain))

	remoteOnly := chain.Transaction{
		Amount: 3, Sender: sender, Recipient: recipient, Fee: 0.001,
		TransactionID: chain.NewTransactionID(), Timestamp: 3,
	}

	adopted := []chain.Block{{Transactions: []chain.Transaction{nowOnChain}}}
	m.ReconcileAfterReplace(adopted, []chain.Transaction{remoteOnly, nowOnChain})

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 2)
	ids := map[string]bool{}
	for _, t := range snapshot {
		ids[t.TransactionID] = true
	}
	require.True(t, ids[stillPending.TransactionID])
	require.True(t, ids[remoteOnly.TransactionID])
	require.False(t, ids[nowOnChain.TransactionID])
}
