package pipeline

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xdr-run/xdr/internal/ledger"
	"github.com/xdr-run/xdr/internal/money"
)

// budgetRequest is the body of POST /_xdr/budget/:agent_id.
type budgetRequest struct {
	Amount float64 `json:"amount"`
}

// SetBudget handles POST /_xdr/budget/:agent_id.
func (p *Pipeline) SetBudget(c *gin.Context) {
	agentID := c.Param("agent_id")
	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errBody("malformed JSON body"))
		return
	}

	amount, ok := money.ParseFloat(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, errBody("amount must be a non-negative number"))
		return
	}

	acct, err := p.Ledger.SetBudget(c.Request.Context(), agentID, amount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errBody("ledger error"))
		return
	}

	c.JSON(http.StatusOK, accountJSON(acct))
}

// Status handles GET /_xdr/status/:agent_id.
func (p *Pipeline) Status(c *gin.Context) {
	agentID := c.Param("agent_id")
	acct, err := p.Ledger.Status(c.Request.Context(), agentID)
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusNotFound, errBody("agent not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, errBody("ledger error"))
		return
	}
	c.JSON(http.StatusOK, accountJSON(acct))
}

// chaosRequest is the body of POST /_xdr/chaos. Pointer fields distinguish
// "omitted" from "explicit zero" so a partial update only replaces fields
// the caller actually sent.
type chaosRequest struct {
	Enabled      bool     `json:"enabled"`
	Seed         *uint64  `json:"seed"`
	FailureRate  *float64 `json:"failure_rate"`
	MinLatencyMs *uint64  `json:"min_latency_ms"`
	MaxLatencyMs *uint64  `json:"max_latency_ms"`
	RugRate      *float64 `json:"rug_rate"`
}

// SetChaos handles POST /_xdr/chaos, replacing the process-wide ChaosConfig.
func (p *Pipeline) SetChaos(c *gin.Context) {
	var req chaosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errBody("malformed JSON body"))
		return
	}

	cfg := p.Chaos.Config()
	cfg.Enabled = req.Enabled
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.FailureRate != nil {
		cfg.FailureRate = *req.FailureRate
	}
	if req.MinLatencyMs != nil {
		cfg.MinLatencyMs = *req.MinLatencyMs
	}
	if req.MaxLatencyMs != nil {
		cfg.MaxLatencyMs = *req.MaxLatencyMs
	}
	if req.RugRate != nil {
		cfg.RugRate = *req.RugRate
	}

	p.Chaos.SetConfig(cfg)
	c.JSON(http.StatusOK, cfg)
}

// Logs handles GET /_xdr/logs?agent=id.
func (p *Pipeline) Logs(c *gin.Context) {
	agentID := c.Query("agent")
	c.JSON(http.StatusOK, gin.H{"entries": p.Traces.Query(agentID)})
}

func accountJSON(acct *ledger.Account) gin.H {
	return gin.H{
		"agent_id":      acct.AgentID,
		"balance":       money.ToFloat(acct.BalanceCents),
		"total_spend":   money.ToFloat(acct.TotalSpendCents),
		"payment_count": acct.PaymentCount,
	}
}
