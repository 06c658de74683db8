// Package osrm is a client of the OSRM road router.
package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/twpayne/go-polyline"

	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/infra/auth"
	"github.com/kilianp07/predictivemovement/infra/logger"
)

// Config locates the router.
type Config struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Auth    auth.Conf     `json:"auth"`
}

// Client implements vehicle.Router on top of the OSRM HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

// NewClient creates a client for the router at cfg.URL.
func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		http:    auth.NewHTTPClient(cfg.Auth, cfg.Timeout),
		log:     logger.OrNop(log),
	}
}

type annotation struct {
	Distance []float64 `json:"distance"`
	Duration []float64 `json:"duration"`
}

type leg struct {
	Distance   float64    `json:"distance"`
	Duration   float64    `json:"duration"`
	Annotation annotation `json:"annotation"`
}

type route struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry string  `json:"geometry"`
	Legs     []leg   `json:"legs"`
}

type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

// Waypoint is a position snapped to the road network.
type Waypoint struct {
	Name     string       `json:"name"`
	Distance float64      `json:"distance"`
	Position geo.Position `json:"position"`
}

type nearestResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Waypoints []struct {
		Name     string    `json:"name"`
		Distance float64   `json:"distance"`
		Location []float64 `json:"location"`
	} `json:"waypoints"`
}

// Route returns the fastest driving route from from to to. A request the
// router could not solve yields an empty route and no error.
func (c *Client) Route(ctx context.Context, from, to geo.Position) (geo.Route, error) {
	url := fmt.Sprintf("%s/route/v1/driving/%s;%s?steps=true&alternatives=false&overview=full&annotations=true",
		c.baseURL, from, to)
	var res routeResponse
	if err := c.get(ctx, url, &res); err != nil {
		return geo.Route{}, err
	}
	if len(res.Routes) == 0 {
		c.log.Debugf("no route from %s to %s: %s", from, to, res.Code)
		return geo.Route{}, nil
	}
	fastest := res.Routes[0]
	for _, r := range res.Routes[1:] {
		if r.Duration < fastest.Duration {
			fastest = r
		}
	}
	geometry, err := DecodePolyline(fastest.Geometry)
	if err != nil {
		return geo.Route{}, fmt.Errorf("decode geometry: %w", err)
	}
	out := geo.Route{
		Distance: fastest.Distance,
		Duration: fastest.Duration,
		Geometry: geometry,
		Legs:     make([]geo.Leg, len(fastest.Legs)),
	}
	for i, l := range fastest.Legs {
		out.Legs[i] = geo.Leg{
			Distance:   l.Distance,
			Duration:   l.Duration,
			Annotation: geo.Annotation{Distance: l.Annotation.Distance, Duration: l.Annotation.Duration},
		}
	}
	return out, nil
}

// Nearest snaps pos to the closest road.
func (c *Client) Nearest(ctx context.Context, pos geo.Position) (Waypoint, error) {
	var res nearestResponse
	if err := c.get(ctx, fmt.Sprintf("%s/nearest/v1/driving/%s", c.baseURL, pos), &res); err != nil {
		return Waypoint{}, err
	}
	if len(res.Waypoints) == 0 {
		return Waypoint{}, fmt.Errorf("no road near %s: %s", pos, res.Code)
	}
	w := res.Waypoints[0]
	p, err := geo.FromLonLat(w.Location)
	if err != nil {
		return Waypoint{}, err
	}
	return Waypoint{Name: w.Name, Distance: w.Distance, Position: p}, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	// OSRM answers 400 with a JSON code for unroutable requests.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// DecodePolyline decodes an encoded polyline of precision 5.
func DecodePolyline(s string) ([]geo.Position, error) {
	if s == "" {
		return nil, errors.New("empty polyline")
	}
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	out := make([]geo.Position, len(coords))
	for i, c := range coords {
		out[i] = geo.Pos(c[1], c[0])
	}
	return out, nil
}

// EncodePolyline encodes positions as a polyline of precision 5.
func EncodePolyline(ps []geo.Position) string {
	coords := make([][]float64, len(ps))
	for i, p := range ps {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}
