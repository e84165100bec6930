package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Harsh-BH/geocache/internal/domain"
)

const DefaultZippopotamURL = "https://api.zippopotam.us"

// Zippopotam resolves postal codes through the zippopotam.us API. It has no
// reverse lookup, so reverse kinds report domain.ErrUnsupportedKind.
type Zippopotam struct {
	baseURL    string
	country    string
	httpClient *http.Client
}

// NewZippopotam creates a client. Empty arguments fall back to defaults.
func NewZippopotam(baseURL, country string, client *http.Client) *Zippopotam {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultZippopotamURL
	}
	if strings.TrimSpace(country) == "" {
		country = "us"
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Zippopotam{
		baseURL:    strings.TrimRight(baseURL, "/"),
		country:    strings.ToLower(country),
		httpClient: client,
	}
}

func (z *Zippopotam) Name() string { return "zippopotam" }

type zippopotamResponse struct {
	PostCode string `json:"post code"`
	Places   []struct {
		PlaceName string `json:"place name"`
		State     string `json:"state"`
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"places"`
}

func (z *Zippopotam) Geocode(ctx context.Context, kind domain.Kind, in domain.Input) (*domain.GeoResult, error) {
	if !kind.NeedsPincode() {
		return nil, fmt.Errorf("%s: %w: %s", z.Name(), domain.ErrUnsupportedKind, kind)
	}

	endpoint := z.baseURL + "/" + url.PathEscape(z.country) + "/" + url.PathEscape(in.Pincode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, serviceError(z.Name(), err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return nil, serviceError(z.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(z.Name(), resp.StatusCode)
	}

	var body zippopotamResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, serviceError(z.Name(), fmt.Errorf("decode: %w", err))
	}
	if len(body.Places) == 0 {
		return nil, notFound(z.Name())
	}
	place := body.Places[0]

	if kind == domain.KindCity {
		return &domain.GeoResult{City: place.PlaceName, State: place.State, Pincode: in.Pincode, Provider: z.Name()}, nil
	}
	coords, err := parseCoords(place.Latitude, place.Longitude)
	if err != nil {
		return nil, serviceError(z.Name(), err)
	}
	return &domain.GeoResult{Coords: coords, Pincode: in.Pincode, Provider: z.Name()}, nil
}
