package x402

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps http.Client with automatic 402 payment-challenge handling.
// It holds no wallet and signs nothing: resolving a challenge means
// reading the invoice token XDR handed back and attaching it to the
// retried request's Authorization header.
type Client struct {
	httpClient *http.Client

	MaxRetries int     // max challenge-and-retry cycles (default: 1)
	AutoPay    bool    // automatically attach the invoice and retry (default: true)
	MaxPayment float64 // reject challenges above this amount (0: unlimited)

	// OnPayment is called with the challenge and the invoice token right
	// before the retry is sent.
	OnPayment func(challenge *PaymentChallenge, invoiceToken string)
}

// NewClient creates a Client with XDR-appropriate defaults.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		MaxRetries: 1,
		AutoPay:    true,
	}
}

// Do performs an HTTP request, resolving at most MaxRetries payment
// challenges along the way.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoContext(req.Context(), req)
}

// DoContext performs an HTTP request with context and automatic 402
// handling.
func (c *Client) DoContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("x402: reading request body: %w", err)
		}
		_ = req.Body.Close()
	}
	req = req.WithContext(ctx)

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytesReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("x402: request failed: %w", err)
		}

		if !Is402Response(resp) {
			return resp, nil
		}
		if !c.AutoPay {
			return resp, nil
		}

		challenge, err := ParsePaymentChallenge(resp)
		_ = resp.Body.Close()
		if err != nil {
			// Not every 402 is a payment challenge; a budget-exceeded
			// response can't be resolved by retrying at all.
			return nil, fmt.Errorf("x402: unresolvable 402: %w", err)
		}

		if c.MaxPayment > 0 && challenge.Amount > c.MaxPayment {
			return nil, fmt.Errorf("x402: invoice amount %v exceeds max payment %v", challenge.Amount, c.MaxPayment)
		}

		if c.OnPayment != nil {
			c.OnPayment(challenge, challenge.Invoice)
		}

		req.Header.Set("Authorization", AuthorizationHeader(challenge.Invoice))
	}

	return nil, fmt.Errorf("x402: max retries exceeded")
}

// Get performs a GET request with automatic 402 handling.
func (c *Client) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

type bytesReaderWrapper struct {
	data []byte
	pos  int
}

func bytesReader(data []byte) io.Reader {
	return &bytesReaderWrapper{data: data}
}

func (r *bytesReaderWrapper) Read(p []byte) (n int, err error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n = copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
