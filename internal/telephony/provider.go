package telephony

import (
	"context"
	"time"
)

// PlacementRequest identifies the call to place. One request per call_log
// row; providers must be safe to invoke once per row.
type PlacementRequest struct {
	CallLogID    string
	DialedNumber string
}

// Result captures the outcome of a placement attempt. ExternalCallID is the
// provider-assigned id recorded on the call log for audit.
type Result struct {
	Succeeded      bool
	ExternalCallID string
	Duration       time.Duration
	Error          string
}

// Provider abstracts the telephony integration. Implementations must emit a
// result eventually; callers impose the deadline via ctx and treat expiry as
// a place-failure.
type Provider interface {
	Place(ctx context.Context, req PlacementRequest) (Result, error)
}
