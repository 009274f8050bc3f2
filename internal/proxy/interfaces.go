package proxy

import (
	"context"
	"time"
)

// Strategy is one retrieval method in the fetch chain.
type Strategy interface {
	Stage() Stage
	Attempt(ctx context.Context, request FetchRequest) (Outcome, error)
}

// Admitter decides whether a client may issue another request.
type Admitter interface {
	Admit(clientID string) Decision
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// TextExtractor turns HTML into normalized visible text.
type TextExtractor interface {
	Extract(html string) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
