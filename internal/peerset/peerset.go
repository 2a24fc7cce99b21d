// Package peerset maintains the node's peer list, health cache and seed
// list, and drives discovery.
package peerset

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"

	"github.com/acem702/Ekehi-Network/internal/config"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// SyncTrigger is the narrow slice of the Sync Manager that discovery needs:
// "run a sync attempt, or skip if one is already in flight." Defined here,
// rather than importing package sync, keeps peerset a one-directional
// dependency for the sync package instead of the two importing each other.
type SyncTrigger interface {
	TriggerSync(ctx context.Context)
}

// persister is the narrow slice of internal/store.Store that PeerSet needs.
type persister interface {
	Save(section string, value interface{}) error
	Load(section string, out interface{}) (bool, error)
}

type health struct {
	consecutiveUnhealthy int
}

// PeerSet is the node's peer table.
type PeerSet struct {
	mu       sync.RWMutex
	peers    []string
	health   map[string]*health
	cooldown *ttlcache.Cache[string, bool]

	seedURLs []string
	selfURL  string

	cfg    *config.Config
	logger ulogger.Logger
	client *http.Client
	store  persister

	// trigger is the Sync Manager set via SetSyncTrigger once it exists;
	// Discover uses it so HTTP callers don't need a direct reference to it.
	trigger SyncTrigger

	discoveryFailures int
}

// New constructs a PeerSet seeded from cfg.SeedURLs, loading a previously
// persisted peer list from store if present. cooldown is a short-TTL cache
// of recent health-check results (healthy or not), avoiding redundant
// health probes within a single discovery pass; its expiry cleanup runs
// until Close.
func New(cfg *config.Config, logger ulogger.Logger, selfURL string, store persister) *PeerSet {
	p := &PeerSet{
		health:   make(map[string]*health),
		seedURLs: cfg.SeedURLs,
		selfURL:  normalizeURL(selfURL),
		cfg:      cfg,
		logger:   logger,
		client:   &http.Client{Timeout: cfg.PeerRPCTimeout},
		store:    store,
		cooldown: ttlcache.New[string, bool](ttlcache.WithTTL[string, bool](cfg.HealthInterval / 2)),
	}

	if store != nil {
		var loaded []string
		if ok, err := store.Load("peers", &loaded); err != nil {
			logger.Warnf("[peerset] failed to load persisted peers, starting empty: %v", err)
		} else if ok {
			p.peers = loaded
			for _, peer := range loaded {
				p.health[peer] = &health{}
			}
			logger.Infof("[peerset] loaded %d peers from store", len(loaded))
		}
	}

	go p.cooldown.Start()

	return p
}

// SetSyncTrigger registers the Sync Manager that Discover triggers after a
// successful pass. Set once during wiring, before any discovery runs.
func (p *PeerSet) SetSyncTrigger(trigger SyncTrigger) {
	p.trigger = trigger
}

func (p *PeerSet) persist() {
	if p.store == nil {
		return
	}
	if err := p.store.Save("peers", p.Peers()); err != nil {
		p.logger.Warnf("[peerset] store unavailable, continuing in-memory: %v", err)
	}
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

// Peers returns a defensive copy of the current peer URL list.
func (p *PeerSet) Peers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.peers))
	copy(out, p.peers)
	return out
}

func (p *PeerSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers)
}

func isLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || host == ""
}

// Add registers candidate, rejecting the node's own URL, loopback
// addresses, duplicates, and anything beyond MAX_PEERS.
func (p *PeerSet) Add(candidate string) bool {
	candidate = normalizeURL(candidate)
	if candidate == "" || candidate == p.selfURL || isLoopback(candidate) {
		return false
	}

	p.mu.Lock()

	for _, existing := range p.peers {
		if existing == candidate {
			p.mu.Unlock()
			return false
		}
	}
	if len(p.peers) >= p.cfg.MaxPeers {
		p.mu.Unlock()
		return false
	}

	p.peers = append(p.peers, candidate)
	p.health[candidate] = &health{}
	p.mu.Unlock()

	p.persist()
	return true
}

func (p *PeerSet) remove(peer string) {
	p.mu.Lock()
	for i, existing := range p.peers {
		if existing == peer {
			p.peers = append(p.peers[:i], p.peers[i+1:]...)
			break
		}
	}
	delete(p.health, peer)
	p.mu.Unlock()

	p.persist()
}

// checkHealthy probes peer via GET /stats, caching the result (healthy or
// not) for the cooldown TTL so a discover() pass that reaches the same peer
// from more than one phase doesn't re-probe it within the same cycle.
func (p *PeerSet) checkHealthy(ctx context.Context, peer string) bool {
	if item := p.cooldown.Get(peer); item != nil {
		return item.Value()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/stats", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.cooldown.Set(peer, false, ttlcache.DefaultTTL)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	p.cooldown.Set(peer, healthy, ttlcache.DefaultTTL)
	return healthy
}

// RunHealthMonitor marks peers healthy/unhealthy on each HEALTH_INTERVAL
// tick, evicting a peer after UnhealthyEvictionN consecutive unhealthy
// observations. Blocks until ctx is done.
func (p *PeerSet) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runHealthPass(ctx)
		}
	}
}

func (p *PeerSet) runHealthPass(ctx context.Context) {
	for _, peer := range p.Peers() {
		healthy := p.checkHealthy(ctx, peer)

		p.mu.Lock()
		h, ok := p.health[peer]
		if !ok {
			p.mu.Unlock()
			continue
		}
		if healthy {
			h.consecutiveUnhealthy = 0
			p.mu.Unlock()
			continue
		}
		h.consecutiveUnhealthy++
		evict := h.consecutiveUnhealthy >= p.cfg.UnhealthyEvictionN
		p.mu.Unlock()

		if evict {
			p.logger.Infof("[peerset] evicting %s after %d consecutive unhealthy checks", peer, h.consecutiveUnhealthy)
			p.remove(peer)
		}
	}
}

// networkPeersResponse mirrors the GET /api/network/peers payload of
// the peer exposes.
type networkPeersResponse struct {
	Peers []string `json:"peers"`
}

// Discover runs a single discovery pass against the trigger registered via
// SetSyncTrigger. This is what the HTTP discovery endpoint drives directly,
// since an API caller has no other reference to the Sync Manager.
func (p *PeerSet) Discover(ctx context.Context) {
	p.discover(ctx, p.trigger)
}

// discover runs the four-phase discovery procedure: health-check seeds,
// register-and-broadcast plus harvest second-degree peers, prune unhealthy
// entries, then trigger a sync attempt exactly once.
func (p *PeerSet) discover(ctx context.Context, trigger SyncTrigger) {
	healthySeeds := p.healthyCandidates(ctx, p.seedURLs)
	if len(healthySeeds) == 0 {
		p.discoveryFailures++
		p.logger.Warnf("[peerset] discover: no healthy seeds reachable")
		return
	}

	harvested := p.registerAndHarvest(ctx, healthySeeds)

	healthyHarvested := p.healthyCandidates(ctx, harvested)
	for _, peer := range healthyHarvested {
		p.Add(peer)
	}
	for _, seed := range healthySeeds {
		p.Add(seed)
	}

	p.pruneUnhealthy(ctx)

	p.discoveryFailures = 0
	if trigger != nil {
		trigger.TriggerSync(ctx)
	}
}

// healthyCandidates probes candidates concurrently (bounded by an errgroup,
// per the DOMAIN STACK's golang.org/x/sync commitment) and returns the
// subset that responded healthy.
func (p *PeerSet) healthyCandidates(ctx context.Context, candidates []string) []string {
	var mu sync.Mutex
	var healthy []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, c := range candidates {
		c := normalizeURL(c)
		if c == "" || c == p.selfURL || isLoopback(c) {
			continue
		}
		g.Go(func() error {
			if p.checkHealthy(gctx, c) {
				mu.Lock()
				healthy = append(healthy, c)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return healthy
}

// registerAndHarvest POSTs this node's own URL to each healthy seed, then
// GETs that seed's peer list.
func (p *PeerSet) registerAndHarvest(ctx context.Context, seeds []string) []string {
	var mu sync.Mutex
	var harvested []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, seed := range seeds {
		seed := seed
		g.Go(func() error {
			p.registerWith(gctx, seed)
			peers := p.harvestFrom(gctx, seed)
			mu.Lock()
			harvested = append(harvested, peers...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return harvested
}

func (p *PeerSet) registerWith(ctx context.Context, seed string) {
	body, err := json.Marshal(map[string]string{"newNodeUrl": p.selfURL})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, seed+"/register-and-broadcast-node", strings.NewReader(string(body)))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warnf("[peerset] register-and-broadcast-node with %s failed: %v", seed, err)
		return
	}
	resp.Body.Close()
}

func (p *PeerSet) harvestFrom(ctx context.Context, seed string) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, seed+"/api/network/peers", nil)
	if err != nil {
		return nil
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warnf("[peerset] harvest from %s failed: %v", seed, err)
		return nil
	}
	defer resp.Body.Close()

	var payload networkPeersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}
	return payload.Peers
}

func (p *PeerSet) pruneUnhealthy(ctx context.Context) {
	for _, peer := range p.Peers() {
		if !p.checkHealthy(ctx, peer) {
			p.mu.Lock()
			h, ok := p.health[peer]
			if ok {
				h.consecutiveUnhealthy++
			}
			evict := ok && h.consecutiveUnhealthy >= p.cfg.UnhealthyEvictionN
			p.mu.Unlock()
			if evict {
				p.remove(peer)
			}
		}
	}
}

// NextDiscoveryDelay computes the backoff for the next discovery attempt:
// base_interval * 1.5^failureCount, capped at DiscoveryMaxInterval
// discovery schedule.
func (p *PeerSet) NextDiscoveryDelay() time.Duration {
	p.mu.RLock()
	failures := p.discoveryFailures
	p.mu.RUnlock()

	delay := p.cfg.DiscoveryBaseInterval
	for i := 0; i < failures; i++ {
		delay = time.Duration(float64(delay) * 1.5)
		if delay >= p.cfg.DiscoveryMaxInterval {
			return p.cfg.DiscoveryMaxInterval
		}
	}
	return delay
}

// RunDiscoveryLoop drives discover on the backoff schedule of
// NextDiscoveryDelay until ctx is done, against the trigger registered via
// SetSyncTrigger.
func (p *PeerSet) RunDiscoveryLoop(ctx context.Context, startupDelay time.Duration) {
	timer := time.NewTimer(startupDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.discover(ctx, p.trigger)
			timer.Reset(p.NextDiscoveryDelay())
		}
	}
}

// Close stops the health cache's expiry cleanup started by New.
func (p *PeerSet) Close() {
	p.cooldown.Stop()
}
