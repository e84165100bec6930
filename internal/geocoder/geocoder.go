// Package geocoder talks to external geocoding services. Every provider reports
// "no such place" as domain.ErrProviderNotFound and every transient failure as
// domain.ErrProviderServiceError, so callers can decide whether to try another
// provider or give up.
package geocoder

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Harsh-BH/geocache/internal/domain"
)

// Geocoder resolves one lookup.
type Geocoder interface {
	Geocode(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.GeoResult, error)
}

// Provider is a named Geocoder backed by one external service.
type Provider interface {
	Geocoder
	Name() string
}

// classifyStatus maps a non-200 HTTP status to a typed provider error.
func classifyStatus(provider string, code int) error {
	if code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", provider, domain.ErrProviderNotFound)
	}
	return fmt.Errorf("%s: %w: status %d", provider, domain.ErrProviderServiceError, code)
}

func serviceError(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, domain.ErrProviderServiceError, err)
}

func notFound(provider string) error {
	return fmt.Errorf("%s: %w", provider, domain.ErrProviderNotFound)
}
