// Package feed fetches exchange candles over REST and websocket.
package feed

import "errors"

var (
	// ErrCircuitOpen is returned while the breaker rejects requests.
	ErrCircuitOpen = errors.New("feed: circuit open")

	// ErrMalformedResponse is returned when a payload cannot be decoded.
	ErrMalformedResponse = errors.New("feed: malformed response")

	// ErrRequestRejected is returned for 4xx responses other than 429. Not retried.
	ErrRequestRejected = errors.New("feed: request rejected")
)
