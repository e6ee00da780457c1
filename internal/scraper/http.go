package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UserAgent is sent on every outbound request.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error (%d): %s", e.Status, e.Body)
}

// Pacer enforces a minimum spacing between requests to the same host.
// Safe for concurrent use, though adapters are single-flight in practice.
type Pacer struct {
	mu      sync.Mutex
	spacing time.Duration
	last    time.Time
}

func NewPacer(spacing time.Duration) *Pacer {
	return &Pacer{spacing: spacing}
}

// Wait blocks until the spacing since the previous request has elapsed or the
// context is canceled.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	now := time.Now()
	wait := p.spacing - now.Sub(p.last)
	if wait < 0 {
		wait = 0
	}
	p.last = now.Add(wait)
	p.mu.Unlock()
	return Sleep(ctx, wait)
}
