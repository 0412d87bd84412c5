package chart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/kundali-rag/internal/domain"
	"github.com/patrickmn/go-cache"
)

// NominatimGeocoder resolves places with the OpenStreetMap Nominatim API.
// Results, including misses, are cached because birth places repeat.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	http      *http.Client
	cache     *cache.Cache
}

// NewNominatimGeocoder creates a geocoder for baseURL
// (e.g. https://nominatim.openstreetmap.org).
func NewNominatimGeocoder(baseURL, userAgent string) *NominatimGeocoder {
	if userAgent == "" {
		userAgent = "kundali-rag"
	}
	return &NominatimGeocoder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
		cache:     cache.New(24*time.Hour, time.Hour),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode implements Geocoder.
func (g *NominatimGeocoder) Geocode(ctx context.Context, place string) (Coordinates, error) {
	key := strings.ToLower(strings.TrimSpace(place))
	if key == "" {
		return Coordinates{}, domain.ErrLocationNotFound
	}
	if v, ok := g.cache.Get(key); ok {
		if coords, ok := v.(Coordinates); ok {
			return coords, nil
		}
		return Coordinates{}, domain.ErrLocationNotFound
	}

	q := url.Values{}
	q.Set("q", place)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return Coordinates{}, fmt.Errorf("build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Coordinates{}, fmt.Errorf("geocode http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return Coordinates{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(places) == 0 {
		g.cache.Set(key, struct{}{}, time.Hour)
		return Coordinates{}, domain.ErrLocationNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse latitude %q: %w", places[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fmt.Errorf("parse longitude %q: %w", places[0].Lon, err)
	}

	coords := Coordinates{Latitude: lat, Longitude: lon, DisplayName: places[0].DisplayName}
	g.cache.SetDefault(key, coords)
	return coords, nil
}
