// Package cachekey builds the deterministic result-store keys shared by the
// dispatcher, the worker and the spatial cache.
package cachekey

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Harsh-BH/geocache/internal/domain"
)

const (
	jobPrefix     = "geo:job:"
	spatialPrefix = "spatial:"
)

// Build joins prefix and params into a key. Params are sorted by name so the
// result does not depend on map iteration order.
func Build(prefix string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(prefix)
	for i, name := range names {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte('|')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}

// FormatCoord renders a coordinate with a fixed six-decimal format. It does not
// round beyond that format; callers pass already-normalized numbers.
func FormatCoord(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	if s == "-0.000000" {
		return "0.000000"
	}
	return s
}

// Geocode returns the lookup key for kind and a normalized input,
// e.g. "coords:07307" or "reverse:40.748817,-74.030000".
func Geocode(kind domain.Kind, in domain.Input) string {
	if kind.NeedsPincode() {
		return string(kind) + ":" + in.Pincode
	}
	return string(kind) + ":" + FormatCoord(in.Lat) + "," + FormatCoord(in.Lng)
}

// Job returns the key of a job record.
func Job(jobID string) string {
	return jobPrefix + jobID
}

// SpatialNamespace returns the key prefix shared by all bounding-box keys of namespace.
func SpatialNamespace(namespace string) string {
	return spatialPrefix + namespace + ":"
}

// Bounds returns the key of a bounding-box query.
func Bounds(namespace string, b domain.Bounds, limit int) string {
	return SpatialNamespace(namespace) +
		FormatCoord(b.MinLat) + ":" + FormatCoord(b.MaxLat) + ":" +
		FormatCoord(b.MinLng) + ":" + FormatCoord(b.MaxLng) + ":" +
		strconv.Itoa(limit)
}

// ParseBounds is the inverse of Bounds.
func ParseBounds(key string) (namespace string, b domain.Bounds, limit int, err error) {
	rest, ok := strings.CutPrefix(key, spatialPrefix)
	if !ok {
		return "", domain.Bounds{}, 0, fmt.Errorf("cachekey: not a spatial key: %q", key)
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 6 || parts[0] == "" {
		return "", domain.Bounds{}, 0, fmt.Errorf("cachekey: malformed spatial key: %q", key)
	}

	var vals [4]float64
	for i := range vals {
		vals[i], err = strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return "", domain.Bounds{}, 0, fmt.Errorf("cachekey: bound %d of %q: %w", i, key, err)
		}
	}
	limit, err = strconv.Atoi(parts[5])
	if err != nil {
		return "", domain.Bounds{}, 0, fmt.Errorf("cachekey: limit of %q: %w", key, err)
	}

	b = domain.Bounds{MinLat: vals[0], MaxLat: vals[1], MinLng: vals[2], MaxLng: vals[3]}
	return parts[0], b, limit, nil
}
