// Package pelias is a client of the Pelias geocoder.
package pelias

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/infra/auth"
	"github.com/kilianp07/predictivemovement/infra/logger"
)

// DefaultLayers restricts results to addresses and venues.
const DefaultLayers = "address,venue"

// ErrNotFound is returned when the geocoder has no usable result.
var ErrNotFound = errors.New("no place found")

// Config locates the geocoder.
type Config struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Auth    auth.Conf     `json:"auth"`
}

// Address is a geocoded place.
type Address struct {
	Name        string       `json:"name"`
	Street      string       `json:"street,omitempty"`
	HouseNumber string       `json:"housenumber,omitempty"`
	Label       string       `json:"label,omitempty"`
	LocalAdmin  string       `json:"localadmin,omitempty"`
	Position    geo.Position `json:"position"`
}

// Place converts the address to a booking place.
func (a Address) Place() booking.Place {
	name := a.Name
	if name == "" {
		name = a.Label
	}
	return booking.Place{Name: name, Position: a.Position}
}

// Client searches and reverse geocodes through the Pelias HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger

	mu    sync.Mutex
	cache map[string]Address
}

// NewClient creates a client for the geocoder at cfg.URL.
func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		http:    auth.NewHTTPClient(cfg.Auth, cfg.Timeout),
		log:     logger.OrNop(log),
		cache:   map[string]Address{},
	}
}

// Nearest returns the address or venue closest to pos.
func (c *Client) Nearest(ctx context.Context, pos geo.Position) (Address, error) {
	q := url.Values{}
	q.Set("point.lat", strconv.FormatFloat(pos.Lat, 'f', -1, 64))
	q.Set("point.lon", strconv.FormatFloat(pos.Lon, 'f', -1, 64))
	q.Set("size", "1")
	q.Set("layers", DefaultLayers)
	res, err := c.query(ctx, "/v1/reverse", q)
	if err != nil {
		return Address{}, fmt.Errorf("pelias nearest %s: %w", pos, err)
	}
	if len(res) == 0 {
		return Address{}, fmt.Errorf("pelias nearest %s: %w", pos, ErrNotFound)
	}
	return res[0], nil
}

// Search returns up to size places matching text, ranked by proximity to
// near when it is set.
func (c *Client) Search(ctx context.Context, text string, near *geo.Position, size int) ([]Address, error) {
	q := url.Values{}
	q.Set("text", text)
	if near != nil {
		q.Set("focus.point.lat", strconv.FormatFloat(near.Lat, 'f', -1, 64))
		q.Set("focus.point.lon", strconv.FormatFloat(near.Lon, 'f', -1, 64))
		q.Set("layers", DefaultLayers)
	}
	q.Set("size", strconv.Itoa(size))
	res, err := c.query(ctx, "/v1/search", q)
	if err != nil {
		return nil, fmt.Errorf("pelias search %q: %w", text, err)
	}
	return res, nil
}

// SearchOne returns the best match for text. Searches without a focus
// point are cached for the lifetime of the client.
func (c *Client) SearchOne(ctx context.Context, text string, near *geo.Position) (booking.Place, error) {
	if near == nil {
		c.mu.Lock()
		a, ok := c.cache[text]
		c.mu.Unlock()
		if ok {
			return a.Place(), nil
		}
	}
	res, err := c.Search(ctx, text, near, 1)
	if err != nil {
		return booking.Place{}, err
	}
	if len(res) == 0 {
		return booking.Place{}, fmt.Errorf("pelias search %q: %w", text, ErrNotFound)
	}
	if near == nil {
		c.mu.Lock()
		c.cache[text] = res[0]
		c.mu.Unlock()
	}
	return res[0].Place(), nil
}

func (c *Client) query(ctx context.Context, path string, q url.Values) ([]Address, error) {
	u := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	out := make([]Address, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		pos := geo.Pos(pt.Lon(), pt.Lat())
		if !pos.Valid() {
			c.log.Debugf("pelias skipped invalid position %s", pos)
			continue
		}
		out = append(out, Address{
			Name:        f.Properties.MustString("name", ""),
			Street:      f.Properties.MustString("street", ""),
			HouseNumber: f.Properties.MustString("housenumber", ""),
			Label:       f.Properties.MustString("label", ""),
			LocalAdmin:  f.Properties.MustString("localadmin", ""),
			Position:    pos,
		})
	}
	return out, nil
}
