package geocode

import (
	"context"

	"go.uber.org/zap"
)

// Provider represents a single geocoding backend.
type Provider interface {
	Client
	Name() string
	Available() bool
}

// CascadeClient tries geocode providers in order until one matches.
type CascadeClient struct {
	providers []Provider
}

// NewCascadeClient creates a CascadeClient that tries providers in order.
func NewCascadeClient(providers ...Provider) *CascadeClient {
	return &CascadeClient{providers: providers}
}

// Geocode implements Client. Provider errors are logged and the next
// provider is tried; if every provider errors, the last error is returned
// so callers can tell a failed lookup from a clean miss.
func (c *CascadeClient) Geocode(ctx context.Context, address string) (*Result, error) {
	var (
		lastErr  error
		attempts int
		misses   int
	)
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		attempts++
		result, err := p.Geocode(ctx, address)
		if err != nil {
			zap.L().Debug("cascade: provider error, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		if result != nil && result.Matched {
			return result, nil
		}
		misses++
	}

	if misses == 0 && attempts > 0 && lastErr != nil {
		return nil, lastErr
	}
	return &Result{Matched: false, Source: "cascade"}, nil
}
