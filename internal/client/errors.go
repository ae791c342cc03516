package client

import (
	"encoding/json"
)

// ErrorKind classifies a backend failure
type ErrorKind int

const (
	// KindRejected means the backend answered a login with a non-2xx status
	KindRejected ErrorKind = iota + 1
	// KindStatus means the backend answered a data request with a non-2xx status
	KindStatus
	// KindNetwork means no usable response arrived
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindRejected:
		return "rejected"
	case KindStatus:
		return "status"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

const (
	loginFailedMessage  = "Login failed"
	loginNetworkMessage = "Network error. Please check if the backend is running."
)

// AuthError is returned by AuthClient.Login. Error yields the user-facing message.
type AuthError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// Resource names a market data endpoint; it doubles as the metrics label
type Resource string

const (
	ResourceQuote     Resource = "quote"
	ResourceWatchlist Resource = "watchlist"
	ResourceSearch    Resource = "search"
	ResourceSignals   Resource = "signals"
)

var resourceMessages = map[Resource]struct{ status, network string }{
	ResourceQuote:     {"Failed to fetch stock data", "Network error while fetching stock data"},
	ResourceWatchlist: {"Failed to fetch watchlist data", "Network error while fetching watchlist data"},
	ResourceSearch:    {"Failed to search stocks", "Network error while searching stocks"},
	ResourceSignals:   {"Failed to fetch trading signals", "Network error while fetching trading signals"},
}

// FetchError is returned by MarketClient. Error yields the user-facing message.
type FetchError struct {
	Resource Resource
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	msgs, ok := resourceMessages[e.Resource]
	if !ok {
		msgs = resourceMessages[ResourceQuote]
	}
	if e.Kind == KindNetwork {
		return msgs.network
	}
	return msgs.status
}

func (e *FetchError) Unwrap() error { return e.Err }

// detailMessage extracts a string "detail" (or "error") field from an error body
func detailMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	var detail string
	if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
		return detail
	}
	return payload.Error
}
