package geo

import (
	"math"
	"time"
)

// RoadSpeedFactor shortens every road annotation duration.
const RoadSpeedFactor = 1.4

// Annotation carries the per-segment distances (m) and durations (s) of a leg.
type Annotation struct {
	Distance []float64 `json:"distance"`
	Duration []float64 `json:"duration"`
}

// Leg is one leg of a route.
type Leg struct {
	Distance   float64    `json:"distance"`
	Duration   float64    `json:"duration"`
	Annotation Annotation `json:"annotation"`
}

// Route is a road route as returned by a router.
type Route struct {
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Geometry []Position `json:"geometry"`
	Legs     []Leg      `json:"legs"`
}

// Point is a geometry vertex annotated with the cost of the segment that
// starts at it and the cumulative values before it.
type Point struct {
	Position Position `json:"position"`
	Meters   float64  `json:"meters"`
	Duration float64  `json:"duration"`
	Passed   float64  `json:"passed"`
	Distance float64  `json:"distance"`
}

// ExtractPoints flattens a route into interpolation points. Durations are
// divided by speedFactor when it is positive.
func ExtractPoints(r Route, speedFactor float64) []Point {
	var dist, dur []float64
	for _, l := range r.Legs {
		dist = append(dist, l.Annotation.Distance...)
		dur = append(dur, l.Annotation.Duration...)
	}
	points := make([]Point, len(r.Geometry))
	var passed, distance float64
	for i, pos := range r.Geometry {
		p := Point{Position: pos, Passed: passed, Distance: distance}
		if i < len(dist) {
			p.Meters = dist[i]
		}
		if i < len(dur) {
			p.Duration = dur[i]
			if speedFactor > 0 {
				p.Duration /= speedFactor
			}
		}
		points[i] = p
		passed += p.Duration
		distance += p.Meters
	}
	return points
}

// TotalDuration returns the duration covered by points.
func TotalDuration(points []Point) time.Duration {
	if len(points) == 0 {
		return 0
	}
	last := points[len(points)-1]
	return time.Duration((last.Passed + last.Duration) * float64(time.Second))
}

// Progress is the state of a movement along a route at one instant.
type Progress struct {
	Position Position
	// Speed in km/h on the current segment.
	Speed float64
	// Skipped are the points fully passed since the previous call.
	Skipped []Point
	// Remaining are the points still ahead, current segment first.
	Remaining []Point
	Done      bool
}

// Interpolate returns the position along remaining at now for a route that
// started at started. Passing the Remaining of the previous result keeps
// progress across calls, whatever the clock speed in between.
func Interpolate(started, now time.Time, remaining []Point) Progress {
	if len(remaining) == 0 {
		return Progress{Done: true}
	}
	if now.Before(started) {
		return Progress{Position: remaining[0].Position, Remaining: remaining}
	}
	t := now.Sub(started).Seconds()
	i := 0
	for i < len(remaining) && remaining[i].Passed+remaining[i].Duration <= t {
		i++
	}
	skipped := remaining[:i]
	future := remaining[i:]
	if len(future) == 0 {
		return Progress{Position: remaining[len(remaining)-1].Position, Skipped: skipped, Done: true}
	}
	current := future[0]
	if len(future) == 1 {
		return Progress{Position: current.Position, Skipped: skipped, Remaining: future}
	}
	next := future[1]
	progress := 0.0
	if current.Duration > 0 {
		progress = (t - current.Passed) / current.Duration
	}
	speed := 0.0
	if current.Duration > 0 {
		speed = math.Round(current.Meters / 1000 / (current.Duration / 3600))
	}
	return Progress{
		Position: Position{
			Lon: current.Position.Lon + (next.Position.Lon-current.Position.Lon)*progress,
			Lat: current.Position.Lat + (next.Position.Lat-current.Position.Lat)*progress,
		},
		Speed:     speed,
		Skipped:   skipped,
		Remaining: future,
	}
}

// Finish returns the terminal progress of a route: every remaining point
// is skipped and the position is the last one.
func Finish(remaining []Point) Progress {
	if len(remaining) == 0 {
		return Progress{Done: true}
	}
	return Progress{Position: remaining[len(remaining)-1].Position, Skipped: remaining, Done: true}
}

// StraightRoute builds a direct route from from to to at speed km/h,
// followed by a dwell of dwell seconds at the destination.
func StraightRoute(from, to Position, speed float64, dwell float64) Route {
	distance := Haversine(from, to)
	duration := 0.0
	if speed > 0 {
		duration = distance / 1000 / speed * 3600
	}
	return Route{
		Distance: distance,
		Duration: duration,
		Geometry: []Position{from, to, to},
		Legs: []Leg{{
			Distance:   distance,
			Duration:   duration,
			Annotation: Annotation{Distance: []float64{distance, 0}, Duration: []float64{duration, dwell}},
		}},
	}
}
