package exchange

import (
	"errors"
	"fmt"
	"net/http"
)

// Binance error code returned when the request timestamp falls outside
// the server's recvWindow. Handled by resynchronizing the clock offset.
const codeTimestampOutOfWindow = -1021

var (
	// ErrOrderRejected is returned when the exchange refuses an order
	// outright (bad symbol, filter violation, insufficient balance).
	ErrOrderRejected = errors.New("order rejected")

	// ErrSymbolNotFound is returned when exchangeInfo has no entry for
	// the requested symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
)

// APIError is a structured error response from the exchange REST API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange API error: status=%d code=%d msg=%s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the error is transient: rate limits, IP bans
// and server-side failures. Validation and auth failures are not.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusTeapot: // Binance IP auto-ban
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRetryable reports whether err is worth retrying. Transport-level
// failures (no APIError in the chain) are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, ErrOrderRejected) || errors.Is(err, ErrSymbolNotFound) {
		return false
	}
	return true
}
