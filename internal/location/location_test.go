package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kozaktomas/punchclock/internal/config"
)

func TestNominatim_Resolve(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "building wins",
			body: `{"display_name":"1 Main St, Springfield","address":{"building":"HQ Tower","road":"Main St"}}`,
			want: "HQ Tower",
		},
		{
			name: "road when no building",
			body: `{"display_name":"1 Main St, Springfield","address":{"road":"Main St"}}`,
			want: "Main St",
		},
		{
			name: "display name last",
			body: `{"display_name":"Springfield","address":{}}`,
			want: "Springfield",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/reverse" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if got := r.Header.Get("User-Agent"); got != "punchclock-test" {
					t.Errorf("expected User-Agent punchclock-test, got %q", got)
				}
				if got := r.URL.Query().Get("lat"); got != "50.087451" {
					t.Errorf("expected lat 50.087451, got %q", got)
				}
				if got := r.URL.Query().Get("lon"); got != "14.420671" {
					t.Errorf("expected lon 14.420671, got %q", got)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			n := NewNominatim(server.URL, "punchclock-test", server.Client())
			got, err := n.Resolve(context.Background(), 50.087451, 14.420671)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNominatim_NoAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer server.Close()

	_, err := NewNominatim(server.URL, "", server.Client()).Resolve(context.Background(), 0, 0)
	if !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
}

func TestNominatim_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewNominatim(server.URL, "", server.Client()).Resolve(context.Background(), 1, 1)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestGoogle_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/api/geocode/json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "secret" {
			t.Errorf("expected key secret, got %q", got)
		}
		if got := r.URL.Query().Get("latlng"); got != "12.971600,77.594600" {
			t.Errorf("unexpected latlng %q", got)
		}
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"MG Road, Bengaluru"},{"formatted_address":"Bengaluru"}]}`))
	}))
	defer server.Close()

	got, err := NewGoogle(server.URL, "secret", server.Client()).Resolve(context.Background(), 12.9716, 77.5946)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "MG Road, Bengaluru" {
		t.Errorf("expected first formatted address, got %q", got)
	}
}

func TestGoogle_ZeroResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer server.Close()

	_, err := NewGoogle(server.URL, "k", server.Client()).Resolve(context.Background(), 0, 0)
	if !errors.Is(err, ErrNoAddress) {
		t.Errorf("expected ErrNoAddress, got %v", err)
	}
}

type resolverFunc func(ctx context.Context, lat, lng float64) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, lat, lng float64) (string, error) {
	return f(ctx, lat, lng)
}

func TestLabel(t *testing.T) {
	coords := &Coordinates{Latitude: 10, Longitude: 20}
	ok := resolverFunc(func(ctx context.Context, lat, lng float64) (string, error) { return " Gate 3 ", nil })
	failing := resolverFunc(func(ctx context.Context, lat, lng float64) (string, error) { return "", errors.New("down") })
	empty := resolverFunc(func(ctx context.Context, lat, lng float64) (string, error) { return "", nil })

	tests := []struct {
		name     string
		resolver Resolver
		coords   *Coordinates
		want     string
	}{
		{name: "resolved", resolver: ok, coords: coords, want: "Gate 3"},
		{name: "resolver error", resolver: failing, coords: coords, want: Unknown},
		{name: "empty label", resolver: empty, coords: coords, want: Unknown},
		{name: "no resolver", resolver: nil, coords: coords, want: Unknown},
		{name: "no coordinates", resolver: ok, coords: nil, want: Unknown},
		{name: "out of range", resolver: ok, coords: &Coordinates{Latitude: 91}, want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(context.Background(), tt.resolver, tt.coords, time.Second); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLabel_LongAddressTruncated(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"fits", strings.Repeat("a", MaxLabelRunes), strings.Repeat("a", MaxLabelRunes)},
		{"ascii", strings.Repeat("a", 2000), strings.Repeat("a", MaxLabelRunes)},
		{"multibyte", strings.Repeat("ř", MaxLabelRunes+1), strings.Repeat("ř", MaxLabelRunes)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resolverFunc(func(ctx context.Context, lat, lng float64) (string, error) { return tt.label, nil })
			got := Label(context.Background(), r, &Coordinates{Latitude: 1, Longitude: 1}, time.Second)
			if got != tt.want {
				t.Errorf("expected %d runes, got %d", utf8.RuneCountInString(tt.want), utf8.RuneCountInString(got))
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncated label is not valid UTF-8")
			}
		})
	}
}

func TestLabel_Timeout(t *testing.T) {
	slow := resolverFunc(func(ctx context.Context, lat, lng float64) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	start := time.Now()
	got := Label(context.Background(), slow, &Coordinates{Latitude: 1, Longitude: 1}, 20*time.Millisecond)
	if got != Unknown {
		t.Errorf("expected %q, got %q", Unknown, got)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("label did not honour timeout, took %v", elapsed)
	}
}

func TestNew(t *testing.T) {
	r, err := New(config.GeocoderConfig{Provider: "none"})
	if err != nil || r != nil {
		t.Errorf("expected nil resolver for none, got %v, %v", r, err)
	}

	r, err = New(config.GeocoderConfig{Provider: "nominatim", NominatimURL: "http://localhost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.(*Nominatim); !ok {
		t.Errorf("expected *Nominatim, got %T", r)
	}

	if _, err := New(config.GeocoderConfig{Provider: "google"}); err == nil {
		t.Error("expected error for google without key")
	}
	if _, err := New(config.GeocoderConfig{Provider: "bing"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
