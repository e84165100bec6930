package geocoder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/metrics"
)

// Chain tries providers in order until one answers.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a chain; the first provider is the primary.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: logger}
}

// Geocode returns the first successful answer. When every provider is exhausted
// it reports domain.ErrProviderServiceError if any of them failed transiently
// (the caller may retry later), and domain.ErrProviderNotFound otherwise.
func (c *Chain) Geocode(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.GeoResult, error) {
	var (
		serviceErr error
		notFound   bool
	)

	for _, p := range c.providers {
		if ctx.Err() != nil {
			serviceErr = errors.Join(serviceErr, ctx.Err())
			break
		}

		res, err := p.Geocode(ctx, kind, in)
		switch {
		case err == nil:
			metrics.ProviderCalls.WithLabelValues(p.Name(), "ok").Inc()
			return res, nil
		case errors.Is(err, domain.ErrUnsupportedKind):
			continue
		case errors.Is(err, domain.ErrProviderNotFound):
			metrics.ProviderCalls.WithLabelValues(p.Name(), "not_found").Inc()
			notFound = true
			c.logger.Debug("Provider has no result, trying next",
				zap.String("provider", p.Name()),
				zap.String("kind", string(kind)),
			)
		default:
			metrics.ProviderCalls.WithLabelValues(p.Name(), "error").Inc()
			serviceErr = errors.Join(serviceErr, err)
			c.logger.Warn("Provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}

	if serviceErr != nil {
		if errors.Is(serviceErr, domain.ErrProviderServiceError) {
			return nil, serviceErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderServiceError, serviceErr)
	}
	if notFound {
		return nil, domain.ErrProviderNotFound
	}
	return nil, fmt.Errorf("%w: no provider handles %s", domain.ErrUnsupportedKind, kind)
}
