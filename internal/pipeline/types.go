package pipeline

// EarlyResponse is returned by a stage that wants to short-circuit the rest
// of the state machine. No stage writes to an http.ResponseWriter directly;
// a single terminal adapter (respond) translates this into the HTTP
// response, which keeps the state machine testable without a live server.
type EarlyResponse struct {
	Status     int
	Body       interface{}
	Annotation string
}

// NetworkProfile is the immutable-at-startup chain-identifying metadata
// attached to every invoice and every successful response.
type NetworkProfile struct {
	ChainID          uint32
	PricePerRequest  string // decimal string, e.g. "0.01"
	CurrencyLabel    string
	RecipientAddress string
}

// reqState threads per-request data between pipeline stages. Nothing here
// escapes to HTTP directly; respond() is the only stage that renders it.
type reqState struct {
	agentID         string
	upstreamHost    string
	simulatePayment bool
	invoiceToken    string

	// set by the chaos stage; consumed (but not acted on) until Forward,
	// where it overrides whatever the upstream actually returned.
	postPaymentFail bool
	rugStatus       int

	// set once Debit succeeds.
	debited      bool
	txHash       string
	balanceAfter string
}
