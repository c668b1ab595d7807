package geo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kratosops/warroom/internal/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     make(http.Header),
	}
}

func TestPrivateOrReserved(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"10.0.0.1", true},
		{"192.168.1.5", true},
		{"172.16.0.5", true},
		{"127.0.0.1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"203.0.113.9", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := PrivateOrReserved(tc.id); got != tc.want {
			t.Fatalf("PrivateOrReserved(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestEnricherResolutionOrder(t *testing.T) {
	externalCalls := 0
	external := ResolverFunc(func(_ context.Context, sourceID string) (Location, error) {
		externalCalls++
		if sourceID == "9.9.9.9" {
			return Location{Lat: 47.0, Lon: 8.0}, nil
		}
		return Unlocated, ErrUnresolved
	})
	enricher := NewEnricher(nil, NewStaticResolver(DefaultStaticTable()), external, time.Second)
	ctx := context.Background()

	// Private range short-circuits before any lookup.
	if loc := enricher.Resolve(ctx, "192.168.1.5"); !loc.IsUnlocated() {
		t.Fatalf("private identifier must resolve to the sentinel, got %+v", loc)
	}
	if externalCalls != 0 {
		t.Fatalf("private identifier must not reach the external resolver")
	}

	// Static table answers before the external resolver.
	loc := enricher.Resolve(ctx, "203.0.113.9")
	if loc.Lat != 35.7 || loc.Lon != 139.7 {
		t.Fatalf("expected static table hit, got %+v", loc)
	}
	if externalCalls != 0 {
		t.Fatalf("static hit must not reach the external resolver")
	}

	// Unknown identifiers fall through to the external resolver.
	loc = enricher.Resolve(ctx, "9.9.9.9")
	if loc.Lat != 47.0 || loc.Lon != 8.0 {
		t.Fatalf("expected external resolution, got %+v", loc)
	}
	if externalCalls != 1 {
		t.Fatalf("expected exactly one external call, got %d", externalCalls)
	}
}

func TestEnricherDegradesOnFailure(t *testing.T) {
	external := ResolverFunc(func(context.Context, string) (Location, error) {
		return Unlocated, errors.New("connection refused")
	})
	enricher := NewEnricher(nil, NewStaticResolver(nil), external, time.Second)

	loc := enricher.Resolve(context.Background(), "9.9.9.9")
	if !loc.IsUnlocated() {
		t.Fatalf("failed lookup must degrade to sentinel, got %+v", loc)
	}
}

func TestEnricherIsolatesFailuresPerIdentifier(t *testing.T) {
	external := ResolverFunc(func(_ context.Context, sourceID string) (Location, error) {
		if sourceID == "bad.example" {
			return Unlocated, errors.New("timeout")
		}
		return Location{Lat: 1.5, Lon: 2.5}, nil
	})
	enricher := NewEnricher(nil, NewStaticResolver(nil), external, time.Second)

	alerts := []models.Alert{
		{Event: models.Event{SourceID: "bad.example"}},
		{Event: models.Event{SourceID: "good.example"}},
	}
	enriched := enricher.Enrich(context.Background(), alerts)

	if enriched[0].Located() {
		t.Fatalf("failed identifier must stay unlocated")
	}
	if !enriched[1].Located() || enriched[1].Lat != 1.5 {
		t.Fatalf("one failing identifier must not poison the rest, got %+v", enriched[1])
	}
}

func TestEnricherMemoisesWithinBatch(t *testing.T) {
	calls := 0
	external := ResolverFunc(func(context.Context, string) (Location, error) {
		calls++
		return Location{Lat: 3, Lon: 4}, nil
	})
	enricher := NewEnricher(nil, NewStaticResolver(nil), external, time.Second)

	alerts := []models.Alert{
		{Event: models.Event{SourceID: "9.9.9.9"}},
		{Event: models.Event{SourceID: "9.9.9.9"}},
		{Event: models.Event{SourceID: "9.9.9.9"}},
	}
	enricher.Enrich(context.Background(), alerts)
	if calls != 1 {
		t.Fatalf("expected a single lookup for repeated identifiers, got %d", calls)
	}
}

func TestHTTPResolverParsesLoc(t *testing.T) {
	resolver := NewHTTPResolver("https://geo.example", "tok", time.Second)
	resolver.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/9.9.9.9" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		if req.URL.Query().Get("token") != "tok" {
			t.Fatalf("expected token query parameter")
		}
		return jsonResponse(http.StatusOK, `{"loc":"35.7,139.7"}`), nil
	})}

	loc, err := resolver.Resolve(context.Background(), "9.9.9.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.Lat != 35.7 || loc.Lon != 139.7 {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestHTTPResolverMalformedBody(t *testing.T) {
	resolver := NewHTTPResolver("https://geo.example", "", time.Second)
	resolver.httpClient = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"loc":"garbage"}`), nil
	})}

	if _, err := resolver.Resolve(context.Background(), "9.9.9.9"); err == nil {
		t.Fatalf("expected error for malformed loc field")
	}
}

func TestHTTPResolverBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	transportCalls := 0
	resolver := NewHTTPResolver("https://geo.example", "", time.Second)
	resolver.httpClient = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		transportCalls++
		return nil, errors.New("dial tcp: connection refused")
	})}

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if _, err := resolver.Resolve(ctx, "9.9.9.9"); err == nil {
			t.Fatalf("expected lookup failure")
		}
	}
	if transportCalls > 5 {
		t.Fatalf("breaker should stop hitting the transport after 5 consecutive failures, saw %d calls", transportCalls)
	}
}
