package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Harsh-BH/geocache/internal/domain"
)

const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// Nominatim geocodes against an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL     string
	httpClient  *http.Client
	userAgent   string
	countryCode string
	limiter     *rate.Limiter
}

type NominatimOption func(*Nominatim)

func WithBaseURL(baseURL string) NominatimOption {
	return func(n *Nominatim) {
		if strings.TrimSpace(baseURL) != "" {
			n.baseURL = baseURL
		}
	}
}

func WithHTTPClient(client *http.Client) NominatimOption {
	return func(n *Nominatim) {
		if client != nil {
			n.httpClient = client
		}
	}
}

func WithUserAgent(userAgent string) NominatimOption {
	return func(n *Nominatim) {
		n.userAgent = userAgent
	}
}

func WithCountryCode(code string) NominatimOption {
	return func(n *Nominatim) {
		n.countryCode = strings.ToLower(strings.TrimSpace(code))
	}
}

// WithMinInterval spaces requests at least interval apart. Zero disables limiting.
func WithMinInterval(interval time.Duration) NominatimOption {
	return func(n *Nominatim) {
		if interval <= 0 {
			n.limiter = nil
			return
		}
		n.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:     DefaultNominatimURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		userAgent:   "geocache/1.0",
		countryCode: "us",
		limiter:     rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Nominatim) Name() string { return "nominatim" }

type nominatimAddress struct {
	City     string `json:"city"`
	Town     string `json:"town"`
	Village  string `json:"village"`
	Hamlet   string `json:"hamlet"`
	Suburb   string `json:"suburb"`
	County   string `json:"county"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
}

func (a nominatimAddress) locality() string {
	for _, s := range []string{a.City, a.Town, a.Village, a.Hamlet, a.Suburb, a.County} {
		if s != "" {
			return s
		}
	}
	return ""
}

type nominatimPlace struct {
	Lat         string           `json:"lat"`
	Lon         string           `json:"lon"`
	DisplayName string           `json:"display_name"`
	Address     nominatimAddress `json:"address"`
	Error       string           `json:"error"`
}

func (n *Nominatim) Geocode(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.GeoResult, error) {
	switch kind {
	case domain.KindCoords, domain.KindCity:
		return n.forward(ctx, kind, in.Pincode)
	case domain.KindReverse, domain.KindReverseAddress:
		return n.reverse(ctx, kind, in.Lat, in.Lng)
	}
	return nil, fmt.Errorf("%s: %w: %s", n.Name(), domain.ErrUnsupportedKind, kind)
}

func (n *Nominatim) forward(ctx context.Context, kind domain.Kind, pincode string) (*domain.GeoResult, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")
	params.Set("postalcode", pincode)
	if n.countryCode != "" {
		params.Set("countrycodes", n.countryCode)
	}

	var places []nominatimPlace
	if err := n.get(ctx, "/search", params, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, notFound(n.Name())
	}
	place := places[0]

	if kind == domain.KindCity {
		city := place.Address.locality()
		if city == "" {
			return nil, notFound(n.Name())
		}
		return &domain.GeoResult{City: city, State: place.Address.State, Pincode: pincode, Provider: n.Name()}, nil
	}

	coords, err := parseCoords(place.Lat, place.Lon)
	if err != nil {
		return nil, serviceError(n.Name(), err)
	}
	return &domain.GeoResult{Coords: coords, Pincode: pincode, Provider: n.Name()}, nil
}

func (n *Nominatim) reverse(ctx context.Context, kind domain.Kind, lat, lng float64) (*domain.GeoResult, error) {
	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))

	var place nominatimPlace
	if err := n.get(ctx, "/reverse", params, &place); err != nil {
		return nil, err
	}
	// Nominatim answers 200 with an "error" field when nothing is there.
	if place.Error != "" {
		return nil, notFound(n.Name())
	}

	coords := &domain.Coordinates{Lat: lat, Lng: lng}
	if kind == domain.KindReverse {
		pin := strings.TrimSpace(place.Address.Postcode)
		if len(pin) > 5 {
			pin = pin[:5] // ZIP+4
		}
		if pin == "" {
			return nil, notFound(n.Name())
		}
		return &domain.GeoResult{Coords: coords, Pincode: pin, Provider: n.Name()}, nil
	}

	if place.DisplayName == "" {
		return nil, notFound(n.Name())
	}
	return &domain.GeoResult{
		Coords:   coords,
		Address:  place.DisplayName,
		City:     place.Address.locality(),
		State:    place.Address.State,
		Pincode:  place.Address.Postcode,
		Provider: n.Name(),
	}, nil
}

func (n *Nominatim) get(ctx context.Context, path string, params url.Values, out any) error {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return serviceError(n.Name(), err)
		}
	}

	endpoint := strings.TrimRight(n.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return serviceError(n.Name(), err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(n.userAgent) != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return serviceError(n.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(n.Name(), resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return serviceError(n.Name(), fmt.Errorf("decode: %w", err))
	}
	return nil
}

func parseCoords(latStr, lngStr string) (*domain.Coordinates, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lat %q: %w", latStr, err)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse lng %q: %w", lngStr, err)
	}
	return &domain.Coordinates{Lat: domain.RoundCoord(lat), Lng: domain.RoundCoord(lng)}, nil
}
