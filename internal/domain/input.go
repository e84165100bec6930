package domain

import (
	"fmt"
	"math"
	"strings"
)

// Input holds the identifying parameters of a lookup: a pincode for forward
// lookups, a coordinate pair for reverse lookups.
type Input struct {
	Pincode string  `json:"pincode,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}

// Normalize validates in for kind and returns its canonical form.
// Pincodes are trimmed; coordinates are rounded to six decimal places.
func (in Input) Normalize(kind Kind) (Input, error) {
	if !kind.IsValid() {
		return Input{}, fmt.Errorf("%w: unknown lookup kind %q", ErrInvalidInput, kind)
	}

	if kind.NeedsPincode() {
		pin := strings.TrimSpace(in.Pincode)
		if !isPincode(pin) {
			return Input{}, fmt.Errorf("%w: pincode must be exactly 5 digits", ErrInvalidInput)
		}
		return Input{Pincode: pin}, nil
	}

	lat, lng := in.Lat, in.Lng
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return Input{}, fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidInput)
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return Input{}, fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidInput)
	}
	return Input{Lat: RoundCoord(lat), Lng: RoundCoord(lng)}, nil
}

// RoundCoord rounds a coordinate to six decimal places (about 11cm) and folds
// negative zero into zero.
func RoundCoord(v float64) float64 {
	r := math.Round(v*1e6) / 1e6
	if r == 0 {
		return 0
	}
	return r
}

func isPincode(s string) bool {
	if len(s) != 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
