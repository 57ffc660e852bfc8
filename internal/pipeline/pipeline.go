// Package pipeline implements XDR's request pipeline: the payment-challenge
// state machine that binds the chaos engine, ledger, invoice minter, and
// upstream forwarder on every inbound request, plus the admin control-plane
// endpoints under /_xdr/.
package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xdr-run/xdr/internal/chaos"
	"github.com/xdr-run/xdr/internal/forwarder"
	"github.com/xdr-run/xdr/internal/idgen"
	"github.com/xdr-run/xdr/internal/ledger"
	"github.com/xdr-run/xdr/internal/logging"
	"github.com/xdr-run/xdr/internal/metrics"
	"github.com/xdr-run/xdr/internal/minter"
	"github.com/xdr-run/xdr/internal/money"
	"github.com/xdr-run/xdr/internal/otelsetup"
	"github.com/xdr-run/xdr/internal/tracelog"
)

const l402Prefix = "L402 "

// StreamPublisher receives every trace entry as it's appended, for the
// optional live /_xdr/stream feed. Satisfied by *adminstream.Hub.
type StreamPublisher interface {
	Publish(*tracelog.Entry)
}

// Pipeline binds the four leaf components and implements the payment
// state machine described by the data-plane contract, plus the admin
// control plane under /_xdr/.
type Pipeline struct {
	Ledger    *ledger.Ledger
	Chaos     *chaos.Engine
	Minter    *minter.Minter
	Forwarder *forwarder.Forwarder
	Traces    *tracelog.Buffer
	Profile   NetworkProfile

	// Stream is optional; when set, every trace entry is also broadcast
	// to connected admin stream clients.
	Stream StreamPublisher
}

// New binds the pipeline's collaborators. None of them are optional: every
// data-plane request needs all four.
func New(l *ledger.Ledger, c *chaos.Engine, m *minter.Minter, f *forwarder.Forwarder, traces *tracelog.Buffer, profile NetworkProfile) *Pipeline {
	return &Pipeline{Ledger: l, Chaos: c, Minter: m, Forwarder: f, Traces: traces, Profile: profile}
}

// DataPlane is the gin handler for every path outside /_xdr/. It implements
// Arrive -> ChaosCheck -> PaymentCheck -> [Challenge|Debit] -> [Forward] -> Respond.
func (p *Pipeline) DataPlane(c *gin.Context) {
	start := time.Now()

	state, early := p.arrive(c)
	if early != nil {
		p.respond(c, state, early, start)
		return
	}

	if early := p.chaosCheck(c.Request.Context(), state); early != nil {
		p.respond(c, state, early, start)
		return
	}

	if state.simulatePayment {
		if early := p.paymentCheck(c); early != nil {
			p.respond(c, state, early, start)
			return
		}

		if early := p.debit(c.Request.Context(), state); early != nil {
			p.respond(c, state, early, start)
			return
		}
	}

	early = p.forward(c, state)
	p.respond(c, state, early, start)
}

// arrive extracts and validates the headers every data-plane request must
// carry.
func (p *Pipeline) arrive(c *gin.Context) (*reqState, *EarlyResponse) {
	agentID := c.GetHeader("X-Agent-ID")
	if agentID == "" {
		return nil, &EarlyResponse{Status: http.StatusBadRequest, Body: errBody("missing X-Agent-ID"), Annotation: "client:missing_agent_id"}
	}
	if len(agentID) > 128 || !isPrintable(agentID) {
		return nil, &EarlyResponse{Status: http.StatusBadRequest, Body: errBody("X-Agent-ID must be 1-128 printable bytes"), Annotation: "client:invalid_agent_id"}
	}

	upstreamHost := c.GetHeader("X-Upstream-Host")
	if upstreamHost == "" {
		return nil, &EarlyResponse{Status: http.StatusBadRequest, Body: errBody("missing X-Upstream-Host"), Annotation: "client:missing_upstream_host"}
	}

	simulate := true
	if raw := c.GetHeader("X-Simulate-Payment"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &EarlyResponse{Status: http.StatusBadRequest, Body: errBody("X-Simulate-Payment must be true or false"), Annotation: "client:invalid_simulate_payment"}
		}
		simulate = b
	}

	ctx := logging.WithAgentID(c.Request.Context(), agentID)
	c.Request = c.Request.WithContext(ctx)

	return &reqState{agentID: agentID, upstreamHost: upstreamHost, simulatePayment: simulate}, nil
}

// chaosCheck consults the chaos engine. InjectLatency sleeps inline;
// FailPrePayment terminates the request before any debit; FailPostPayment
// is remembered and applied after Forward.
func (p *Pipeline) chaosCheck(ctx context.Context, state *reqState) *EarlyResponse {
	ctx, span := otelsetup.StartSpan(ctx, "pipeline.chaos_check", otelsetup.AgentID(state.agentID))
	defer span.End()

	decision := p.Chaos.Decide(state.agentID)
	span.SetAttributes(otelsetup.ChaosDecision(decision.Kind.String()))
	metrics.ChaosDecisionsTotal.WithLabelValues(decision.Kind.String()).Inc()

	switch decision.Kind {
	case chaos.KindInjectLatency:
		select {
		case <-time.After(time.Duration(decision.LatencyMs) * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	case chaos.KindFailPrePayment:
		logging.L(ctx).Warn("chaos: pre-payment failure injected", "status", decision.Status)
		return &EarlyResponse{Status: decision.Status, Body: errBody("chaos: pre-payment failure"), Annotation: decision.Kind.String()}
	case chaos.KindFailPostPayment:
		state.postPaymentFail = true
		state.rugStatus = decision.Status
		return nil
	default:
		return nil
	}
}

// paymentCheck inspects Authorization for an L402 bearer invoice. The
// simulator does not cryptographically verify the token; any non-empty
// token after the prefix is accepted (spec.md §9's documented open
// question on invoice replay — preserved, not strengthened).
func (p *Pipeline) paymentCheck(c *gin.Context) *EarlyResponse {
	auth := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(auth, l402Prefix)
	if !ok || token == "" {
		agentID := c.GetHeader("X-Agent-ID")
		// A challenge references the agent, so it gets a zero-balance
		// account that /_xdr/status reports from then on.
		if _, err := p.Ledger.Ensure(c.Request.Context(), agentID); err != nil {
			return &EarlyResponse{Status: http.StatusInternalServerError, Body: errBody("ledger error")}
		}
		price, _ := money.Parse(p.Profile.PricePerRequest)
		invoice := p.Minter.MintInvoice(agentID, p.Profile.PricePerRequest)
		metrics.InvoicesMintedTotal.Inc()
		metrics.PaymentChallengesTotal.Inc()
		return &EarlyResponse{
			Status: http.StatusPaymentRequired,
			Body: gin.H{
				"x402_invoice": invoice.Token,
				"amount":       money.ToFloat(price),
				"currency":     p.Profile.CurrencyLabel,
				"recipient":    p.Profile.RecipientAddress,
				"chain_id":     p.Profile.ChainID,
			},
			Annotation:  "payment:required",
		}
	}
	return nil
}

// debit performs the atomic budget check-and-deduct.
func (p *Pipeline) debit(ctx context.Context, state *reqState) *EarlyResponse {
	ctx, span := otelsetup.StartSpan(ctx, "pipeline.debit",
		otelsetup.AgentID(state.agentID), otelsetup.Amount(p.Profile.PricePerRequest))
	defer span.End()

	price, _ := money.Parse(p.Profile.PricePerRequest)

	receipt, err := p.Ledger.TryDebit(ctx, state.agentID, price)
	if err != nil {
		var insufficient *ledger.InsufficientFundsError
		if errors.As(err, &insufficient) {
			metrics.LedgerDebitsTotal.WithLabelValues("insufficient_funds").Inc()
			logging.L(ctx).Info("debit rejected: insufficient funds",
				"balance", money.ToFloat(insufficient.Balance), "required", money.ToFloat(insufficient.Required))
			return &EarlyResponse{
				Status: http.StatusPaymentRequired,
				Body: gin.H{
					"error":    "Budget Exceeded",
					"balance":  money.ToFloat(insufficient.Balance),
					"required": money.ToFloat(insufficient.Required),
				},
				Annotation:  "budget:exceeded",
			}
		}
		return &EarlyResponse{Status: http.StatusInternalServerError, Body: errBody("ledger error")}
	}

	metrics.LedgerDebitsTotal.WithLabelValues("accepted").Inc()
	state.debited = true
	state.txHash = receipt.TxHash
	state.balanceAfter = money.Format(receipt.Account.BalanceCents)
	span.SetAttributes(otelsetup.TxHash(receipt.TxHash))
	return nil
}

// forward issues the upstream call. A remembered post-payment chaos
// decision overrides whatever the upstream actually returned — the debit
// is never rolled back, which is what makes it a rug pull rather than a
// refunded failure.
func (p *Pipeline) forward(c *gin.Context, state *reqState) *EarlyResponse {
	ctx, span := otelsetup.StartSpan(c.Request.Context(), "pipeline.forward",
		otelsetup.AgentID(state.agentID), otelsetup.UpstreamHost(state.upstreamHost))
	defer span.End()

	body, _ := readBody(c)

	resp, err := p.Forwarder.Forward(ctx, forwarder.Request{
		Method:       c.Request.Method,
		UpstreamHost: state.upstreamHost,
		Path:         c.Request.URL.RequestURI(),
		Header:       c.Request.Header.Clone(),
		Body:         body,
	})
	if err != nil {
		if errors.Is(err, forwarder.ErrUpstreamUnavailable) {
			logging.L(ctx).Warn("upstream unavailable", "upstream_host", state.upstreamHost, "err", err)
			return &EarlyResponse{Status: http.StatusGatewayTimeout, Body: errBody("upstream unavailable"), Annotation: "upstream:unavailable"}
		}
		logging.L(ctx).Warn("upstream error", "upstream_host", state.upstreamHost, "err", err)
		return &EarlyResponse{Status: http.StatusBadGateway, Body: errBody("upstream error"), Annotation: "upstream:error"}
	}
	metrics.UpstreamForwardDuration.Observe(float64(resp.LatencyMs) / 1000)

	status := resp.StatusCode
	annotation := ""
	if state.postPaymentFail {
		status = state.rugStatus
		annotation = chaos.KindFailPostPayment.String()
	}

	return &EarlyResponse{
		Status: status,
		Body:   rawBody{header: resp.Header, body: resp.Body},
		Annotation: annotation,
	}
}

// rawBody carries an upstream response through to respond() unmodified,
// as opposed to a gin.H that gets JSON-encoded.
type rawBody struct {
	header http.Header
	body   []byte
}

// respond is the single terminal adapter: every stage's EarlyResponse (or
// the successful-forward case) is translated to HTTP exactly here, and a
// TraceEntry is appended exactly once per request.
func (p *Pipeline) respond(c *gin.Context, state *reqState, early *EarlyResponse, start time.Time) {
	duration := time.Since(start)

	if raw, ok := early.Body.(rawBody); ok {
		for k, v := range raw.header {
			if k == "Content-Length" {
				continue
			}
			for _, vv := range v {
				c.Writer.Header().Add(k, vv)
			}
		}
		if state.debited {
			c.Header("X-XDR-Tx-Hash", state.txHash)
			c.Header("X-XDR-Chain-Id", strconv.FormatUint(uint64(p.Profile.ChainID), 10))
			c.Header("X-XDR-Balance-After", state.balanceAfter)
		}
		c.Data(early.Status, raw.header.Get("Content-Type"), raw.body)
	} else {
		c.JSON(early.Status, early.Body)
	}

	p.trace(state, c.Request, early, duration)
}

func (p *Pipeline) trace(state *reqState, req *http.Request, early *EarlyResponse, duration time.Duration) {
	entry := &tracelog.Entry{
		ID:         idgen.WithPrefix("trc_"),
		Timestamp:  time.Now().UTC(),
		Method:     req.Method,
		Path:       req.URL.RequestURI(),
		StatusCode: early.Status,
		DurationMs: duration.Milliseconds(),
	}
	if state != nil {
		entry.AgentID = state.agentID
		entry.UpstreamHost = state.upstreamHost
		if state.debited {
			entry.TxHash = state.txHash
		}
	}
	if early.Annotation != "" {
		entry.Annotations = append(entry.Annotations, early.Annotation)
	}
	p.Traces.Append(entry)
	metrics.TraceBufferSize.Set(float64(p.Traces.Len()))

	if p.Stream != nil {
		p.Stream.Publish(entry)
	}
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	buf := make([]byte, 0, c.Request.ContentLength)
	for {
		chunk := make([]byte, 32*1024)
		n, err := c.Request.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func errBody(msg string) gin.H {
	return gin.H{"error": msg}
}
