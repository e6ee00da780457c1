package render

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when no render backend is configured. Callers
// treat it as a signal to fall back, not as a failure.
var ErrUnavailable = errors.New("render: no backend available")

// Renderer loads a page with scripts executed and returns the resulting
// document HTML. The GSA adapter uses it to read timezone markers that only
// appear in the rendered auction detail page.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Disabled is the default Renderer. It reports ErrUnavailable for every page.
type Disabled struct{}

func (Disabled) Render(ctx context.Context, url string) (string, error) {
	return "", ErrUnavailable
}
