package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// HTTPResolver queries an ipinfo-style lookup service: GET {base}/{id} with
// an optional token, answering {"loc": "<lat>,<lon>"}. Calls run behind a
// circuit breaker so a flapping provider stops costing a timeout per
// identifier; an open breaker is just another unresolved lookup.
type HTTPResolver struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[Location]
}

// NewHTTPResolver constructs a resolver for the configured endpoint. The
// timeout bounds every lookup; it defaults to 5s.
func NewHTTPResolver(baseURL, token string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[Location](gobreaker.Settings{
		Name:    "geo-lookup",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPResolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// Resolve performs the external lookup. Every failure mode (timeout, network
// error, non-200, malformed body, open breaker) comes back as an error for
// the enricher to degrade; Resolve itself never panics or blocks past the
// client timeout.
func (r *HTTPResolver) Resolve(ctx context.Context, sourceID string) (Location, error) {
	if r == nil || r.baseURL == "" {
		return Unlocated, ErrUnresolved
	}

	return r.breaker.Execute(func() (Location, error) {
		endpoint := r.baseURL + "/" + url.PathEscape(sourceID)
		if r.token != "" {
			endpoint += "?token=" + url.QueryEscape(r.token)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return Unlocated, fmt.Errorf("build lookup request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return Unlocated, fmt.Errorf("geo lookup request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return Unlocated, fmt.Errorf("geo lookup returned status %d", resp.StatusCode)
		}

		var payload struct {
			Loc string `json:"loc"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return Unlocated, fmt.Errorf("decode geo lookup response: %w", err)
		}
		return parseLoc(payload.Loc)
	})
}

func parseLoc(loc string) (Location, error) {
	parts := strings.Split(loc, ",")
	if len(parts) != 2 {
		return Unlocated, fmt.Errorf("malformed loc field %q: %w", loc, ErrUnresolved)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Unlocated, fmt.Errorf("parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Unlocated, fmt.Errorf("parse longitude: %w", err)
	}
	return Location{Lat: lat, Lon: lon}, nil
}
