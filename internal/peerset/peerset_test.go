package peerset_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/peerset"
	"github.com/acem702/Ekehi-Network/internal/store"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxPeers = 5
	cfg.UnhealthyEvictionN = 2
	cfg.HealthInterval = 10 * time.Millisecond
	cfg.PeerRPCTimeout = time.Second
	return cfg
}

type fakeTrigger struct {
	calls int
}

func (f *fakeTrigger) TriggerSync(ctx context.Context) { f.calls++ }

func TestAddRejectsSelfLoopbackDuplicateAndOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPeers = 1
	ps := peerset.New(cfg, ulogger.Nop(), "http://self:9000", nil)
	defer ps.Close()

	require.False(t, ps.Add("http://self:9000"))
	require.False(t, ps.Add("http://localhost:9001"))
	require.True(t, ps.Add("http://peer-a:9000"))
	require.False(t, ps.Add("http://peer-a:9000"))
	require.False(t, ps.Add("http://peer-b:9000"))
	require.Equal(t, 1, ps.Len())
}

func TestDiscoverRegistersAndHarvestsSecondDegreePeers(t *testing.T) {
	harvestPeer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/stats" {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer harvestPeer.Close()

	seed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stats":
			w.WriteHeader(http.StatusOK)
		case "/register-and-broadcast-node":
			w.WriteHeader(http.StatusOK)
		case "/api/network/peers":
			_ = json.NewEncoder(w).Encode(map[string][]string{"peers": {harvestPeer.URL}})
		}
	}))
	defer seed.Close()

	cfg := testConfig()
	cfg.SeedURLs = []string{seed.URL}
	ps := peerset.New(cfg, ulogger.Nop(), "http://self:9000", nil)
	defer ps.Close()

	trigger := &fakeTrigger{}
	ps.SetSyncTrigger(trigger)
	ps.Discover(context.Background())

	peers := ps.Peers()
	require.Contains(t, peers, seed.URL)
	require.Contains(t, peers, harvestPeer.URL)
	require.Equal(t, 1, trigger.calls)
}

func TestDiscoverWithNoHealthySeedsDoesNotTriggerSync(t *testing.T) {
	cfg := testConfig()
	cfg.SeedURLs = []string{"http://127.0.0.1:1"}
	ps := peerset.New(cfg, ulogger.Nop(), "http://self:9000", nil)
	defer ps.Close()

	trigger := &fakeTrigger{}
	ps.SetSyncTrigger(trigger)
	ps.Discover(context.Background())

	require.Equal(t, 0, trigger.calls)
	require.Equal(t, 0, ps.Len())
}

func TestHealthMonitorEvictsAfterConsecutiveFailures(t *testing.T) {
	cfg := testConfig()
	ps := peerset.New(cfg, ulogger.Nop(), "http://self:9000", nil)
	defer ps.Close()

	require.True(t, ps.Add("http://127.0.0.1:1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ps.RunHealthMonitor(ctx)
	<-ctx.Done()

	require.Equal(t, 0, ps.Len())
}

func TestAddPersistsPeersAcrossRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "node.db")
	s, err := store.Open(dbPath, ulogger.Nop())
	require.NoError(t, err)
	defer s.Close()

	cfg := testConfig()
	ps := peerset.New(cfg, ulogger.Nop(), "http://self:9000", s)
	defer ps.Close()

	require.True(t, ps.Add("http://peer-a:9000"))

	reloaded := peerset.New(cfg, ulogger.Nop(), "http://self:9000", s)
	defer reloaded.Close()

	require.Equal(t, []string{"http://peer-a:9000"}, reloaded.Peers())
}

func TestNextDiscoveryDelayBacksOffAndCaps(t *testing.T) {
	cfg := testConfig()
	cfg.DiscoveryBaseInterval = 30 * time.Second
	cfg.DiscoveryMaxInterval = 5 * time.Minute
	ps := peerset.New(cfg, ulogger.Nop(), "http://self:9000", nil)
	defer ps.Close()

	ps.Discover(context.Background()) // no healthy seeds, no trigger set -> failureCount++

	delay := ps.NextDiscoveryDelay()
	require.True(t, delay > cfg.DiscoveryBaseInterval)
	require.True(t, delay <= cfg.DiscoveryMaxInterval)
}
