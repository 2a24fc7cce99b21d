package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/acem702/Ekehi-Network/internal/chain"
	"github.com/acem702/Ekehi-Network/internal/errors"
)

// blockchainResponse is the shape peers decode a GET /blockchain reply
// into. The leading fields must stay compatible with the Sync Manager's
// own decode target.
type blockchainResponse struct {
	Chain               []chain.Block       `json:"chain"`
	PendingTransactions []chain.Transaction `json:"pendingTransactions"`
	Difficulty          int                 `json:"difficulty"`
	NetworkName         string              `json:"networkName"`
	TokenName           string              `json:"tokenName"`
	TokenSymbol         string              `json:"tokenSymbol"`
	MiningReward        float64             `json:"miningReward"`
}

func (s *Server) getBlockchain(c echo.Context) error {
	return c.JSON(http.StatusOK, blockchainResponse{
		Chain:               s.chain.Snapshot(),
		PendingTransactions: s.mempool.Snapshot(),
		Difficulty:          s.miner.Difficulty(),
		NetworkName:         s.cfg.NetworkName,
		TokenName:           s.cfg.TokenName,
		TokenSymbol:         s.cfg.TokenSymbol,
		MiningReward:        s.cfg.MiningReward,
	})
}

type statsResponse struct {
	TotalBlocks   int                  `json:"totalBlocks"`
	NetworkNodes  int                  `json:"networkNodes"`
	Difficulty    int                  `json:"difficulty"`
	MempoolDepth  int                  `json:"mempoolDepth"`
	TotalSupply   float64              `json:"totalSupply"`
	UptimeSeconds int64                `json:"uptimeSeconds"`
	MiningEnabled bool                 `json:"miningEnabled"`
	Routes        map[string]routeStat `json:"routes,omitempty"`
}

func (s *Server) getStats(c echo.Context) error {
	var uptime int64
	if s.startedAt != nil {
		uptime = time.Now().Unix() - s.startedAt()
	}

	return c.JSON(http.StatusOK, statsResponse{
		TotalBlocks:   s.chain.Len(),
		NetworkNodes:  len(s.peers.Peers()) + 1,
		Difficulty:    s.miner.Difficulty(),
		MempoolDepth:  s.mempool.Len(),
		TotalSupply:   s.chain.TotalSupply(),
		UptimeSeconds: uptime,
		MiningEnabled: s.miner.Enabled(),
		Routes:        s.routeStatsSnapshot(),
	})
}

type receiveBlockRequest struct {
	NewBlock chain.Block `json:"newBlock"`
}

func (s *Server) postReceiveNewBlock(c echo.Context) error {
	var req receiveBlockRequest
	if err := c.Bind(&req); err != nil {
		return errors.New(errors.KindInvalidBlock, "malformed request body")
	}

	accepted := s.chain.ReceiveNewBlock(req.NewBlock, mempoolEvictor{s.mempool})
	if !accepted {
		return errors.New(errors.KindInvalidBlock, "block rejected")
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"note":     "New block received and accepted.",
		"newBlock": req.NewBlock,
	})
}

// mempoolEvictor adapts MempoolService to chain.MempoolEvictor.
type mempoolEvictor struct{ m MempoolService }

func (e mempoolEvictor) EvictConfirmed(block chain.Block) { e.m.EvictConfirmed(block) }

type registerNodeRequest struct {
	NewNodeURL string `json:"newNodeUrl"`
}

func (s *Server) postRegisterAndBroadcastNode(c echo.Context) error {
	var req registerNodeRequest
	if err := c.Bind(&req); err != nil || req.NewNodeURL == "" {
		return errors.New(errors.KindUnsupported, "newNodeUrl is required")
	}

	added := s.peers.Add(req.NewNodeURL)

	return c.JSON(http.StatusCreated, echo.Map{
		"note":       "New node registered with network.",
		"registered": added,
		"peers":      s.peers.Peers(),
	})
}

func (s *Server) postRegisterNode(c echo.Context) error {
	var req registerNodeRequest
	if err := c.Bind(&req); err != nil || req.NewNodeURL == "" {
		return errors.New(errors.KindUnsupported, "newNodeUrl is required")
	}

	added := s.peers.Add(req.NewNodeURL)
	return c.JSON(http.StatusCreated, echo.Map{
		"note":       "New node registered with this node.",
		"registered": added,
	})
}

type registerNodesBulkRequest struct {
	AllNetworkNodes []string `json:"allNetworkNodes"`
}

func (s *Server) postRegisterNodesBulk(c echo.Context) error {
	var req registerNodesBulkRequest
	if err := c.Bind(&req); err != nil {
		return errors.New(errors.KindUnsupported, "malformed request body")
	}

	added := 0
	for _, url := range req.AllNetworkNodes {
		if s.peers.Add(url) {
			added++
		}
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"note":  "Bulk registration complete.",
		"added": added,
	})
}

func (s *Server) postTransaction(c echo.Context) error {
	var tx chain.Transaction
	if err := c.Bind(&tx); err != nil {
		return errors.New(errors.KindInvalidTransaction, "malformed request body")
	}
	if tx.TransactionID == "" {
		tx.TransactionID = chain.NewTransactionID()
	}
	if tx.Timestamp == 0 {
		tx.Timestamp = time.Now().UnixMilli()
	}

	if err := s.mempool.Admit(tx); err != nil {
		return err
	}

	if s.gossip != nil {
		s.gossip.BroadcastTransaction(c.Request().Context(), tx)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"note":        "Transaction added to pending transactions and broadcast to network.",
		"transaction": tx,
	})
}

func (s *Server) postTransactionBroadcast(c echo.Context) error {
	var tx chain.Transaction
	if err := c.Bind(&tx); err != nil {
		return errors.New(errors.KindInvalidTransaction, "malformed request body")
	}

	if err := s.mempool.Admit(tx); err != nil {
		return err
	}

	if s.gossip != nil {
		s.gossip.BroadcastTransaction(c.Request().Context(), tx)
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"note": "Transaction received and broadcast to network.",
	})
}

func (s *Server) getMine(c echo.Context) error {
	if !s.miner.Enabled() {
		return errors.New(errors.KindUnsupported, "mining is stopped on this node")
	}

	s.sync.RunOnce(c.Request().Context()) // sync ahead of assembly is best-effort

	return c.JSON(http.StatusOK, echo.Map{
		"note": "Mining pass requested; blocks are assembled by the background worker.",
	})
}

func (s *Server) postMiningStart(c echo.Context) error {
	s.miner.SetEnabled(true)
	return c.JSON(http.StatusOK, echo.Map{"miningEnabled": true})
}

func (s *Server) postMiningStop(c echo.Context) error {
	s.miner.SetEnabled(false)
	return c.JSON(http.StatusOK, echo.Map{"miningEnabled": false})
}

func (s *Server) getMiningStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"miningEnabled": s.miner.Enabled(),
		"difficulty":    s.miner.Difficulty(),
	})
}

func (s *Server) getBlockByHash(c echo.Context) error {
	hash := c.Param("hash")
	block, ok := s.chain.BlockByHash(hash)
	if !ok {
		return errors.New(errors.KindInvalidBlock, "no block with hash %q", hash)
	}
	return c.JSON(http.StatusOK, block)
}

func (s *Server) getTransactionByID(c echo.Context) error {
	id := c.Param("id")
	tx, block, ok := s.chain.TransactionByID(id)
	if !ok {
		return errors.New(errors.KindInvalidTransaction, "no transaction with id %q", id)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"transaction": tx,
		"block":       block,
	})
}

func (s *Server) getAddressData(c echo.Context) error {
	addr := c.Param("addr")
	return c.JSON(http.StatusOK, s.chain.AddressData(addr))
}

type networkPeersResponse struct {
	Peers []string `json:"peers"`
}

func (s *Server) getNetworkPeers(c echo.Context) error {
	return c.JSON(http.StatusOK, networkPeersResponse{Peers: s.peers.Peers()})
}

func (s *Server) postNetworkDiscover(c echo.Context) error {
	s.peers.Discover(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{
		"note":  "Discovery pass requested.",
		"peers": s.peers.Peers(),
	})
}
