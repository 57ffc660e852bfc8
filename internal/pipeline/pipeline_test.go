package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdr-run/xdr/internal/chaos"
	"github.com/xdr-run/xdr/internal/forwarder"
	"github.com/xdr-run/xdr/internal/ledger"
	"github.com/xdr-run/xdr/internal/minter"
	"github.com/xdr-run/xdr/internal/tracelog"
)

func newTestRouter() (*gin.Engine, *Pipeline) {
	gin.SetMode(gin.TestMode)

	profile := NetworkProfile{
		ChainID:          338,
		PricePerRequest:  "0.01",
		CurrencyLabel:    "USDC",
		RecipientAddress: "0x0000000000000000000000000000000000000000",
	}

	p := New(
		ledger.New(ledger.NewMemoryStore(), minter.New(), profile.ChainID),
		chaos.New(),
		minter.New(),
		forwarder.New(0, true),
		tracelog.New(1000),
		profile,
	)

	r := gin.New()
	r.Any("/_xdr/budget/:agent_id", p.SetBudget)
	r.GET("/_xdr/status/:agent_id", p.Status)
	r.POST("/_xdr/chaos", p.SetChaos)
	r.GET("/_xdr/logs", p.Logs)
	r.NoRoute(p.DataPlane)

	return r, p
}

func dataPlaneRequest(r *gin.Engine, method, path, agentID, upstreamHost, authHeader string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if agentID != "" {
		req.Header.Set("X-Agent-ID", agentID)
	}
	if upstreamHost != "" {
		req.Header.Set("X-Upstream-Host", upstreamHost)
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// S1 — cold agent, no payment token.
func TestScenario_ColdAgentNoToken(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should not be reached"))
	}))
	defer upstream.Close()
	host := strings.TrimPrefix(upstream.URL, "http://")

	r, p := newTestRouter()

	w := dataPlaneRequest(r, "POST", "/v1/x", "a1", host, "", "")
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0.01, body["amount"])
	assert.Equal(t, "USDC", body["currency"])
	assert.Equal(t, float64(338), body["chain_id"])

	acct, err := p.Ledger.Status(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.BalanceCents.Int64())
	assert.Equal(t, uint64(0), acct.PaymentCount)
}

// S2 — fund then pay.
func TestScenario_FundThenPay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"echo":true}`))
	}))
	defer upstream.Close()
	host := strings.TrimPrefix(upstream.URL, "http://")

	r, _ := newTestRouter()

	budgetW := dataPlaneRequest(r, "POST", "/_xdr/budget/a1", "", "", "", `{"amount":1.00}`)
	require.Equal(t, http.StatusOK, budgetW.Code)

	w := dataPlaneRequest(r, "GET", "/v1/x", "a1", host, "L402 tok", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"echo":true}`, w.Body.String())
	assert.Equal(t, "0.99", w.Header().Get("X-XDR-Balance-After"))
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, w.Header().Get("X-XDR-Tx-Hash"))
}

// S3 — budget exceeded.
func TestScenario_BudgetExceeded(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	host := strings.TrimPrefix(upstream.URL, "http://")

	r, _ := newTestRouter()
	dataPlaneRequest(r, "POST", "/_xdr/budget/a1", "", "", "", `{"amount":0.01}`)

	w1 := dataPlaneRequest(r, "GET", "/v1/x", "a1", host, "L402 tok", "")
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := dataPlaneRequest(r, "GET", "/v1/x", "a1", host, "L402 tok", "")
	require.Equal(t, http.StatusPaymentRequired, w2.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &body))
	assert.Equal(t, "Budget Exceeded", body["error"])
	assert.Equal(t, 0.00, body["balance"])
	assert.Equal(t, 0.01, body["required"])
}

// S5 — rug pull: debit stands even though the response is 500.
func TestScenario_RugPull(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	host := strings.TrimPrefix(upstream.URL, "http://")

	r, p := newTestRouter()
	dataPlaneRequest(r, "POST", "/_xdr/budget/a2", "", "", "", `{"amount":1.00}`)

	dataPlaneRequest(r, "POST", "/_xdr/chaos", "", "", "", `{"enabled":true,"seed":7,"failure_rate":0.0,"rug_rate":1.0}`)

	w := dataPlaneRequest(r, "GET", "/v1/x", "a2", host, "L402 tok", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	acct, err := p.Ledger.Status(context.Background(), "a2")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acct.PaymentCount)
	assert.Equal(t, int64(99), acct.BalanceCents.Int64())
}

// S6 — admin isolation: status on an unknown agent never creates one.
func TestScenario_AdminIsolation(t *testing.T) {
	r, _ := newTestRouter()

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest("GET", "/_xdr/status/ghost", nil)
	r.ServeHTTP(w1, req1)
	assert.Equal(t, http.StatusNotFound, w1.Code)

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/_xdr/status/ghost", nil)
	r.ServeHTTP(w2, req2)
	assert.Equal(t, http.StatusNotFound, w2.Code)
}

func TestArrive_MissingAgentID(t *testing.T) {
	r, _ := newTestRouter()
	w := dataPlaneRequest(r, "GET", "/v1/x", "", "example.com", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArrive_MissingUpstreamHost(t *testing.T) {
	r, _ := newTestRouter()
	w := dataPlaneRequest(r, "GET", "/v1/x", "a1", "", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSimulatePaymentFalse_SkipsPaymentEntirely(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()
	host := strings.TrimPrefix(upstream.URL, "http://")

	r, p := newTestRouter()

	req := httptest.NewRequest("GET", "/v1/x", nil)
	req.Header.Set("X-Agent-ID", "a3")
	req.Header.Set("X-Upstream-Host", host)
	req.Header.Set("X-Simulate-Payment", "false")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	_, err := p.Ledger.Status(req.Context(), "a3")
	assert.Error(t, err)
}
