// Package location turns punch coordinates into a human readable label.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kozaktomas/punchclock/internal/config"
	"github.com/kozaktomas/punchclock/internal/logging"
)

// Unknown is stored when no label can be resolved.
const Unknown = "Unknown location"

// MaxLabelRunes is the longest label stored with a punch.
const MaxLabelRunes = 500

// DefaultTimeout bounds a single reverse geocoding call.
const DefaultTimeout = 5 * time.Second

// ErrNoAddress is returned when the provider answers without a usable address.
var ErrNoAddress = errors.New("no address for coordinates")

// Resolver reverse geocodes coordinates.
type Resolver interface {
	Resolve(ctx context.Context, lat, lng float64) (string, error)
}

// Coordinates is a WGS84 position reported by the punching device.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Label resolves coords with r, bounded by timeout. It never fails: a nil
// resolver, missing coordinates, errors and timeouts all yield Unknown.
func Label(ctx context.Context, r Resolver, coords *Coordinates, timeout time.Duration) string {
	if r == nil || coords == nil || !coords.Valid() {
		return Unknown
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	label, err := r.Resolve(ctx, coords.Latitude, coords.Longitude)
	if err != nil {
		logging.FromContext(ctx).Warn("reverse geocoding failed",
			"lat", coords.Latitude, "lng", coords.Longitude, "error", err)
		return Unknown
	}
	if label = strings.TrimSpace(label); label == "" {
		return Unknown
	}
	return truncateRunes(label, MaxLabelRunes)
}

// truncateRunes shortens s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}

// New builds the resolver selected by cfg. Returns nil for provider "none".
func New(cfg config.GeocoderConfig) (Resolver, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "nominatim":
		return NewNominatim(cfg.NominatimURL, cfg.UserAgent, client), nil
	case "google":
		if cfg.GoogleAPIKey == "" {
			return nil, errors.New("google geocoder requires an API key")
		}
		return NewGoogle(googleBaseURL, cfg.GoogleAPIKey, client), nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown geocoder %q", cfg.Provider)
}

// getJSON performs a GET request and unmarshals the JSON response into T.
func getJSON[T any](ctx context.Context, client *http.Client, url string, header http.Header) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}
	return &result, nil
}
