package domain

import "errors"

var (
	// ErrInvalidInput is returned for a malformed pincode or out-of-range coordinates.
	// It is always surfaced to the caller.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedKind is returned for a lookup kind the component cannot serve.
	ErrUnsupportedKind = errors.New("unsupported lookup kind")

	// ErrBrokerUnavailable is returned when the broker probe or a publish fails.
	// It triggers the synchronous fallback and never reaches the end caller.
	ErrBrokerUnavailable = errors.New("message broker unavailable")

	// ErrJobTimedOut is returned when a job is still pending after the short poll window.
	ErrJobTimedOut = errors.New("geocode job did not complete in time")

	// ErrJobNotFound is returned when a job cannot be found by ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a job status update would regress.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrProviderNotFound is returned when a geocoding provider has no answer for valid input.
	ErrProviderNotFound = errors.New("no geocoding result for this location")

	// ErrProviderServiceError is returned when geocoding providers failed transiently.
	ErrProviderServiceError = errors.New("geocoding service temporarily unavailable")

	// ErrCacheUnavailable is returned when the result store cannot be reached.
	ErrCacheUnavailable = errors.New("result store unavailable")

	// ErrCacheMiss is returned by result stores when a key is absent.
	ErrCacheMiss = errors.New("cache miss")

	// ErrItemNotFound is returned when a map item cannot be found by ID.
	ErrItemNotFound = errors.New("map item not found")
)
