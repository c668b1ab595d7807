// Package geo maps source identifiers to coordinates. Resolution is a
// pluggable capability; every failure degrades to the (0,0) "unlocated"
// sentinel so enrichment can never fail a batch.
package geo

import (
	"context"
	"errors"
	"net/netip"
)

// Location is a latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Unlocated is the sentinel meaning "no location". Downstream consumers must
// treat it as absence, never as a real equator/prime-meridian coordinate.
var Unlocated = Location{}

// IsUnlocated reports whether loc is the sentinel.
func (l Location) IsUnlocated() bool {
	return l == Unlocated
}

// ErrUnresolved signals that a resolver has no answer for an identifier.
// It is a normal miss, not a failure.
var ErrUnresolved = errors.New("identifier unresolved")

// Resolver is the pluggable lookup capability: a static table, a network
// service, or anything else that can answer for a source identifier.
type Resolver interface {
	Resolve(ctx context.Context, sourceID string) (Location, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, sourceID string) (Location, error)

func (f ResolverFunc) Resolve(ctx context.Context, sourceID string) (Location, error) {
	return f(ctx, sourceID)
}

// PrivateOrReserved reports whether the identifier parses as an address in a
// private or otherwise non-routable range. Such sources resolve straight to
// the sentinel; identifiers that are not addresses at all return false and
// fall through to the other resolvers.
func PrivateOrReserved(sourceID string) bool {
	addr, err := netip.ParseAddr(sourceID)
	if err != nil {
		return false
	}
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

// StaticResolver answers from a fixed identifier table.
type StaticResolver struct {
	table map[string]Location
}

// NewStaticResolver copies the supplied table. A nil table yields a resolver
// that always misses.
func NewStaticResolver(table map[string]Location) *StaticResolver {
	copied := make(map[string]Location, len(table))
	for k, v := range table {
		copied[k] = v
	}
	return &StaticResolver{table: copied}
}

// DefaultStaticTable is the demo fallback mapping of well-known identifiers.
func DefaultStaticTable() map[string]Location {
	return map[string]Location{
		"8.8.8.8":         {Lat: 37.386, Lon: -122.0838},
		"1.1.1.1":         {Lat: -33.8688, Lon: 151.2093},
		"203.0.113.9":     {Lat: 35.7, Lon: 139.7},
		"198.51.100.77":   {Lat: 55.7, Lon: 37.6},
		"77.88.55.77":     {Lat: 55.7512, Lon: 37.6184},
		"185.199.110.153": {Lat: 52.52, Lon: 13.405},
	}
}

// Resolve looks the identifier up in the table.
func (r *StaticResolver) Resolve(_ context.Context, sourceID string) (Location, error) {
	if loc, ok := r.table[sourceID]; ok {
		return loc, nil
	}
	return Unlocated, ErrUnresolved
}
