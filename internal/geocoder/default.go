package geocoder

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/config"
)

// NewDefaultChain builds the provider chain both binaries use: Nominatim first,
// Zippopotam as the pincode fallback, sharing one HTTP client.
func NewDefaultChain(cfg config.ProvidersConfig, logger *zap.Logger) *Chain {
	client := &http.Client{Timeout: cfg.HTTPTimeout}
	return NewChain(logger,
		NewNominatim(
			WithBaseURL(cfg.NominatimURL),
			WithHTTPClient(client),
			WithUserAgent(cfg.NominatimUserAgent),
			WithCountryCode(cfg.CountryCode),
			WithMinInterval(cfg.NominatimMinInterval),
		),
		NewZippopotam(cfg.ZippopotamURL, cfg.CountryCode, client),
	)
}
