package domain

import (
	"fmt"
	"time"
)

// Category is the kind of neighborhood content shown on the map.
type Category string

const (
	CategoryIncident Category = "incident"
	CategoryEvent    Category = "event"
)

// IsValid checks if the category is supported.
func (c Category) IsValid() bool {
	return c == CategoryIncident || c == CategoryEvent
}

// MapItem is an incident or event pinned to a location.
type MapItem struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Pincode     string    `json:"pincode,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Bounds is a (minLat, maxLat, minLng, maxLng) rectangle used to scope spatial queries.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// Validate checks that the rectangle is well formed and in range, and returns it
// with every bound rounded to six decimal places.
func (b Bounds) Validate() (Bounds, error) {
	lo, err := Input{Lat: b.MinLat, Lng: b.MinLng}.Normalize(KindReverse)
	if err != nil {
		return Bounds{}, err
	}
	hi, err := Input{Lat: b.MaxLat, Lng: b.MaxLng}.Normalize(KindReverse)
	if err != nil {
		return Bounds{}, err
	}
	if lo.Lat > hi.Lat {
		return Bounds{}, fmt.Errorf("%w: min_lat must not exceed max_lat", ErrInvalidInput)
	}
	if lo.Lng > hi.Lng {
		return Bounds{}, fmt.Errorf("%w: min_lng must not exceed max_lng", ErrInvalidInput)
	}
	return Bounds{MinLat: lo.Lat, MaxLat: hi.Lat, MinLng: lo.Lng, MaxLng: hi.Lng}, nil
}

// Contains reports whether the point lies inside the rectangle, edges included.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}
