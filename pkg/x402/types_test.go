package x402

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs402Response(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       bool
	}{
		{"402 response", http.StatusPaymentRequired, true},
		{"200 response", http.StatusOK, false},
		{"401 response", http.StatusUnauthorized, false},
		{"403 response", http.StatusForbidden, false},
		{"500 response", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{StatusCode: tt.statusCode}
			assert.Equal(t, tt.want, Is402Response(resp))
		})
	}
}

func TestParsePaymentChallenge(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantErr    bool
		wantAmount float64
	}{
		{
			name:       "valid challenge",
			statusCode: http.StatusPaymentRequired,
			body:       `{"x402_invoice":"0001.abcdef","amount":0.01,"currency":"USDC","recipient":"0x1234","chain_id":338}`,
			wantErr:    false,
			wantAmount: 0.01,
		},
		{
			name:       "not a 402",
			statusCode: http.StatusOK,
			body:       `{"x402_invoice":"0001.abcdef"}`,
			wantErr:    true,
		},
		{
			name:       "invalid JSON",
			statusCode: http.StatusPaymentRequired,
			body:       `not-json`,
			wantErr:    true,
		},
		{
			name:       "missing invoice",
			statusCode: http.StatusPaymentRequired,
			body:       `{"amount":0.01}`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.statusCode,
				Body:       io.NopCloser(bytes.NewBufferString(tt.body)),
			}

			challenge, err := ParsePaymentChallenge(resp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, challenge.Amount)
		})
	}
}

func TestParseBudgetExceeded(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusPaymentRequired,
		Body:       io.NopCloser(bytes.NewBufferString(`{"error":"Budget Exceeded","balance":0,"required":0.01}`)),
	}

	exceeded, err := ParseBudgetExceeded(resp)
	require.NoError(t, err)
	assert.Equal(t, "Budget Exceeded", exceeded.Error)
	assert.Equal(t, 0.01, exceeded.Required)
}

func TestAuthorizationHeader(t *testing.T) {
	assert.Equal(t, "L402 0001.abcdef", AuthorizationHeader("0001.abcdef"))
}

func TestError(t *testing.T) {
	err := &Error{Message: "upstream unavailable"}
	assert.Equal(t, "upstream unavailable", err.Error())
}

// Integration-style tests with a mock server.

func TestClient_Get_NoPay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message":"success"}`))
	}))
	defer server.Close()

	client := NewClient()
	client.AutoPay = false

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_Get_402_NoPay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"x402_invoice":"0001.abc","amount":0.01,"currency":"USDC","recipient":"0x123","chain_id":338}`))
	}))
	defer server.Close()

	client := NewClient()
	client.AutoPay = false

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
}

func TestClient_Get_402_AutoPay(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if r.Header.Get("Authorization") == "L402 0001.abc" {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"message":"success"}`))
			return
		}
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"x402_invoice":"0001.abc","amount":0.01,"currency":"USDC","recipient":"0x123","chain_id":338}`))
	}))
	defer server.Close()

	var paidChallenge *PaymentChallenge
	client := NewClient()
	client.OnPayment = func(challenge *PaymentChallenge, invoiceToken string) {
		paidChallenge = challenge
		assert.Equal(t, "0001.abc", invoiceToken)
	}

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, attempts)
	require.NotNil(t, paidChallenge)
	assert.Equal(t, 0.01, paidChallenge.Amount)
}

func TestClient_Get_402_MaxPaymentExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"x402_invoice":"0001.abc","amount":1.00,"currency":"USDC","recipient":"0x123","chain_id":338}`))
	}))
	defer server.Close()

	client := NewClient()
	client.MaxPayment = 0.10

	_, err := client.Get(server.URL)
	assert.Error(t, err)
}

// Benchmark

func BenchmarkParsePaymentChallenge(b *testing.B) {
	body := `{"x402_invoice":"0001.abc","amount":0.01,"currency":"USDC","recipient":"0x1234567890123456789012345678901234567890","chain_id":338}`

	for i := 0; i < b.N; i++ {
		resp := &http.Response{
			StatusCode: http.StatusPaymentRequired,
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		}
		_, _ = ParsePaymentChallenge(resp)
	}
}
