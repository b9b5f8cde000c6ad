// Package location resolves postal codes to city/state. Lookups are
// best-effort: callers treat failures as "city/state unknown", never as
// turn-level errors.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

const cacheTTL = 30 * 24 * time.Hour

// ErrNotFound is returned when the lookup service has no entry for the zip.
var ErrNotFound = errors.New("location: zip code not found")

// Place is a resolved postal code.
type Place struct {
	City  string
	State string
}

// Client looks up US postal codes against a zippopotam-style HTTP service,
// with a Redis read-through cache so repeated zips skip the network.
type Client struct {
	http    *http.Client
	baseURL string
	redis   *redis.Client
	logger  *logging.Logger
}

// NewClient creates a lookup client. redisClient may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, redisClient *redis.Client, logger *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		redis:   redisClient,
		logger:  logger,
	}
}

// lookupResponse is the wire shape of the zippopotam API.
type lookupResponse struct {
	Places []struct {
		PlaceName string `json:"place name"`
		StateAbbr string `json:"state abbreviation"`
	} `json:"places"`
}

// Lookup resolves a 5-digit zip to city/state.
func (c *Client) Lookup(ctx context.Context, zip string) (Place, error) {
	if cached, ok := c.fromCache(ctx, zip); ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s/us/%s", c.baseURL, zip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Place{}, fmt.Errorf("location: failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Place{}, fmt.Errorf("location: lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Place{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Place{}, fmt.Errorf("location: lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Place{}, fmt.Errorf("location: failed to decode response: %w", err)
	}
	if len(body.Places) == 0 {
		return Place{}, ErrNotFound
	}

	place := Place{
		City:  body.Places[0].PlaceName,
		State: body.Places[0].StateAbbr,
	}
	c.toCache(ctx, zip, place)
	return place, nil
}

func cacheKey(zip string) string {
	return fmt.Sprintf("zip:%s", zip)
}

func (c *Client) fromCache(ctx context.Context, zip string) (Place, bool) {
	if c.redis == nil {
		return Place{}, false
	}
	data, err := c.redis.Get(ctx, cacheKey(zip)).Bytes()
	if err != nil {
		return Place{}, false
	}
	var place Place
	if err := json.Unmarshal(data, &place); err != nil {
		return Place{}, false
	}
	return place, true
}

func (c *Client) toCache(ctx context.Context, zip string, place Place) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(place)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(zip), data, cacheTTL).Err(); err != nil {
		c.logger.Debug("location: cache write failed", "zip", zip, "error", err)
	}
}
