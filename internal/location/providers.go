package location

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const googleBaseURL = "https://maps.googleapis.com"

// Nominatim resolves coordinates with an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewNominatim creates a Nominatim resolver. Nominatim rejects requests
// without a User-Agent.
func NewNominatim(baseURL, userAgent string, client *http.Client) *Nominatim {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = "punchclock"
	}
	return &Nominatim{baseURL: strings.TrimSuffix(baseURL, "/"), userAgent: userAgent, client: client}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Building string `json:"building"`
		Road     string `json:"road"`
	} `json:"address"`
	Error string `json:"error"`
}

// Resolve prefers the building name, then the road, then the full display name.
func (n *Nominatim) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", formatCoord(lat))
	q.Set("lon", formatCoord(lng))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	resp, err := getJSON[nominatimResponse](ctx, n.client, n.baseURL+"/reverse?"+q.Encode(),
		http.Header{"User-Agent": {n.userAgent}})
	if err != nil {
		return "", fmt.Errorf("nominatim: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("nominatim: %s: %w", resp.Error, ErrNoAddress)
	}

	for _, label := range []string{resp.Address.Building, resp.Address.Road, resp.DisplayName} {
		if label != "" {
			return label, nil
		}
	}
	return "", ErrNoAddress
}

// Google resolves coordinates with the Google Geocoding API.
type Google struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewGoogle creates a Google geocoding resolver.
func NewGoogle(baseURL, apiKey string, client *http.Client) *Google {
	if client == nil {
		client = &http.Client{}
	}
	return &Google{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey, client: client}
}

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// Resolve returns the formatted address of the first result.
func (g *Google) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("latlng", formatCoord(lat)+","+formatCoord(lng))
	q.Set("key", g.apiKey)

	resp, err := getJSON[googleResponse](ctx, g.client, g.baseURL+"/maps/api/geocode/json?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("google geocoding: %w", err)
	}
	if resp.Status != "OK" || len(resp.Results) == 0 {
		return "", fmt.Errorf("google geocoding status %s: %w", resp.Status, ErrNoAddress)
	}
	return resp.Results[0].FormattedAddress, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
