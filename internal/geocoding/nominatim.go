package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"magicbag/internal/common"
	"magicbag/internal/models"
)

// Resolver turns free text into a location.
type Resolver interface {
	Resolve(ctx context.Context, text string) (models.Location, error)
}

// NominatimClient resolves addresses through the OpenStreetMap Nominatim API.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewNominatimClient(baseURL, userAgent string, logger *slog.Logger) *NominatimClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NominatimClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the best match for text. The returned location has no ID.
func (c *NominatimClient) Resolve(ctx context.Context, text string) (models.Location, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Location{}, fmt.Errorf("empty address: %w", common.ErrNotFound)
	}

	q := url.Values{}
	q.Set("q", text)
	q.Set("format", "json")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return models.Location{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode %q: %w: %w", text, common.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("nominatim error", slog.Int("status", resp.StatusCode), slog.String("body", string(body)))
		return models.Location{}, fmt.Errorf("geocode %q returned status %d: %w", text, resp.StatusCode, classifyStatus(resp.StatusCode))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return models.Location{}, fmt.Errorf("geocode %q: %w: %w", text, common.ErrMalformedResponse, err)
	}
	if len(places) == 0 {
		return models.Location{}, fmt.Errorf("no match for %q: %w", text, common.ErrNotFound)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode %q latitude: %w: %w", text, common.ErrMalformedResponse, err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return models.Location{}, fmt.Errorf("geocode %q longitude: %w: %w", text, common.ErrMalformedResponse, err)
	}

	return models.Location{Latitude: lat, Longitude: lon, FullAddress: places[0].DisplayName}, nil
}

// classifyStatus maps a non-200 status: rate limiting and server errors are
// worth retrying, anything else means the request itself is refused.
func classifyStatus(status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return common.ErrTransient
	}
	return common.ErrMalformedResponse
}
