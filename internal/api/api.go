// Package api implements the node's HTTP surface using echo: the full set
// of endpoints external callers and peer nodes use to submit transactions,
// pull chain state, and drive discovery and sync.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/config"
	apierrors "github.com/acem702/Ekehi-Network/internal/errors"
	"github.com/acem702/Ekehi-Network/internal/statrec"
	syncmgr "github.com/acem702/Ekehi-Network/internal/sync"
	"github.com/acem702/Ekehi-Network/internal/ulogger"
)

// ChainReader is the narrow slice of *chain.Chain the API needs.
type ChainReader interface {
	Snapshot() []chain.Block
	BlockByHash(hash string) (chain.Block, bool)
	TransactionByID(id string) (chain.Transaction, chain.Block, bool)
	AddressData(addr string) chain.AddressData
	TotalSupply() float64
	Len() int
	ReceiveNewBlock(block chain.Block, evictor chain.MempoolEvictor) bool
}

// MempoolService is the narrow slice of *mempool.Mempool the API needs.
type MempoolService interface {
	Admit(t chain.Transaction) error
	Snapshot() []chain.Transaction
	Len() int
	EvictConfirmed(block chain.Block)
}

// PeerService is the narrow slice of *peerset.PeerSet the API needs.
type PeerService interface {
	Peers() []string
	Add(url string) bool
	Discover(ctx context.Context)
}

// SyncService is the narrow slice of *sync.Manager the API needs.
type SyncService interface {
	RunOnce(ctx context.Context) syncmgr.Result
}

// Gossiper is the narrow slice of *gossip.Gossiper the API needs.
type Gossiper interface {
	BroadcastBlock(ctx context.Context, block chain.Block)
	BroadcastTransaction(ctx context.Context, tx chain.Transaction)
}

// MinerControl is the narrow slice of *miner.Miner the API needs.
type MinerControl interface {
	Difficulty() int
	Enabled() bool
	SetEnabled(enabled bool)
}

// Server wires the node's components into an echo HTTP server.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	logger  ulogger.Logger
	chain   ChainReader
	mempool MempoolService
	peers   PeerService
	sync    SyncService
	gossip  Gossiper
	miner   MinerControl

	startedAt      func() int64
	metricsHandler http.Handler

	statsMu sync.Mutex
	stats   map[string]*statrec.Stat
}

// Deps bundles the Server's collaborators, since it needs every component
// in the node.
type Deps struct {
	Chain     ChainReader
	Mempool   MempoolService
	Peers     PeerService
	Sync      SyncService
	Gossip    Gossiper
	Miner     MinerControl
	StartedAt func() int64

	// MetricsHandler, if set, is served at GET /metrics (e.g.
	// promhttp.Handler()).
	MetricsHandler http.Handler
}

// New constructs a Server and registers every route.
func New(cfg *config.Config, logger ulogger.Logger, deps Deps) *Server {
	s := &Server{
		echo:           echo.New(),
		cfg:            cfg,
		logger:         logger,
		chain:          deps.Chain,
		mempool:        deps.Mempool,
		peers:          deps.Peers,
		sync:           deps.Sync,
		gossip:         deps.Gossip,
		miner:          deps.Miner,
		startedAt:      deps.StartedAt,
		metricsHandler: deps.MetricsHandler,
		stats:          make(map[string]*statrec.Stat),
	}

	s.echo.HideBanner = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.trackRouteStats)
	s.echo.HTTPErrorHandler = s.errorHandler

	s.routes()
	return s
}

// trackRouteStats records call count and latency per route path, so
// GET /stats can report which endpoints are actually being hit.
func (s *Server) trackRouteStats(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		path := c.Path()
		s.statsMu.Lock()
		stat, ok := s.stats[path]
		if !ok {
			stat = statrec.New(path)
			s.stats[path] = stat
		}
		s.statsMu.Unlock()
		stat.Track(start)

		return err
	}
}

// routeStatsSnapshot returns call counts and average latency per route,
// for diagnostics surfaced through GET /stats.
func (s *Server) routeStatsSnapshot() map[string]routeStat {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	out := make(map[string]routeStat, len(s.stats))
	for path, stat := range s.stats {
		calls, _, avg := stat.Snapshot()
		out[path] = routeStat{Calls: calls, AvgLatencyMs: float64(avg.Microseconds()) / 1000}
	}
	return out
}

type routeStat struct {
	Calls        int64   `json:"calls"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// Handler exposes the underlying http.Handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving on addr. Blocks until the server stops or errors.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) routes() {
	s.echo.GET("/blockchain", s.getBlockchain)
	s.echo.GET("/stats", s.getStats)
	s.echo.POST("/receive-new-block", s.postReceiveNewBlock)
	s.echo.POST("/register-and-broadcast-node", s.postRegisterAndBroadcastNode)
	s.echo.POST("/register-node", s.postRegisterNode)
	s.echo.POST("/register-nodes-bulk", s.postRegisterNodesBulk)
	s.echo.POST("/transaction", s.postTransaction)
	s.echo.POST("/transaction/broadcast", s.postTransactionBroadcast)
	s.echo.POST("/transaction/send", s.postTransaction)
	s.echo.GET("/mine", s.getMine)
	s.echo.POST("/mining/start", s.postMiningStart)
	s.echo.POST("/mining/stop", s.postMiningStop)
	s.echo.GET("/mining/status", s.getMiningStatus)
	s.echo.GET("/block/:hash", s.getBlockByHash)
	s.echo.GET("/transaction/:id", s.getTransactionByID)
	s.echo.GET("/address/:addr", s.getAddressData)
	s.echo.GET("/api/network/peers", s.getNetworkPeers)
	s.echo.POST("/api/network/discover", s.postNetworkDiscover)

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

// errorHandler maps a typed *errors.Error to the status its Kind declares,
// and an *echo.HTTPError to its own code; any other error gets 500 with
// kind "Unknown".
func (s *Server) errorHandler(err error, c echo.Context) {
	kind := apierrors.KindOf(err)
	status := kind.HTTPStatus()

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		c.JSON(status, echo.Map{"error": "Unsupported", "message": he.Message}) //nolint:errcheck
		return
	}

	c.JSON(status, echo.Map{"error": kind.String(), "message": err.Error()}) //nolint:errcheck
}
