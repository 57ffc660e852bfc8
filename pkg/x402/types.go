// Package x402 is a small client SDK for agents talking to an XDR proxy.
// It knows how to recognize a 402 payment challenge, hold onto the bearer
// invoice it hands back, and retry the original request with it attached.
// It does not sign anything or hold a real wallet: XDR's payment layer is
// a simulation, and this package mirrors that by treating "paying" an
// invoice as echoing its token back in an Authorization header.
package x402

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PaymentChallenge is the JSON body of a 402 response that is asking the
// caller to attach an invoice, as opposed to one reporting an exhausted
// budget (see BudgetExceeded).
type PaymentChallenge struct {
	Invoice   string  `json:"x402_invoice"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Recipient string  `json:"recipient"`
	ChainID   uint32  `json:"chain_id"`
}

// BudgetExceeded is the JSON body returned when an agent's budget can't
// cover the next debit. Retrying with the same invoice won't help; the
// caller needs to raise the budget out of band.
type BudgetExceeded struct {
	Error    string  `json:"error"`
	Balance  float64 `json:"balance"`
	Required float64 `json:"required"`
}

// Error is the generic {"error": "..."} body XDR uses for every other
// failure response.
type Error struct {
	Message string `json:"error"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is402Response reports whether resp is a payment-required response.
func Is402Response(resp *http.Response) bool {
	return resp.StatusCode == http.StatusPaymentRequired
}

// ParsePaymentChallenge reads and decodes a 402 response body as a
// PaymentChallenge. It does not close resp.Body; the caller owns that.
func ParsePaymentChallenge(resp *http.Response) (*PaymentChallenge, error) {
	if !Is402Response(resp) {
		return nil, fmt.Errorf("x402: response status %d is not 402", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("x402: reading 402 body: %w", err)
	}

	var challenge PaymentChallenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, fmt.Errorf("x402: decoding 402 body: %w", err)
	}
	if challenge.Invoice == "" {
		return nil, fmt.Errorf("x402: 402 body missing x402_invoice")
	}

	return &challenge, nil
}

// ParseBudgetExceeded reads and decodes a 402 response body as a
// BudgetExceeded. Both PaymentChallenge and BudgetExceeded are 402s; a
// caller distinguishes them by trying ParsePaymentChallenge first and
// falling back to this.
func ParseBudgetExceeded(resp *http.Response) (*BudgetExceeded, error) {
	if !Is402Response(resp) {
		return nil, fmt.Errorf("x402: response status %d is not 402", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("x402: reading 402 body: %w", err)
	}

	var exceeded BudgetExceeded
	if err := json.Unmarshal(body, &exceeded); err != nil {
		return nil, fmt.Errorf("x402: decoding 402 body: %w", err)
	}
	if exceeded.Error == "" {
		return nil, fmt.Errorf("x402: 402 body missing error")
	}

	return &exceeded, nil
}

// AuthorizationHeader formats the bearer value an agent attaches to its
// retried request: "L402 <invoice-token>".
func AuthorizationHeader(invoiceToken string) string {
	return "L402 " + invoiceToken
}
