package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/core/dispatch/logging"
	"github.com/kilianp07/predictivemovement/core/fleet"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/infra/osrm"
	"github.com/kilianp07/predictivemovement/infra/pelias"
	"github.com/kilianp07/predictivemovement/infra/vroom"
)

// ClockConfig controls the virtual clock.
type ClockConfig struct {
	// Multiplier is the speed of virtual time relative to wall time.
	Multiplier float64 `json:"multiplier"`
	// Teleport makes every movement jump to its end state.
	Teleport bool `json:"teleport"`
	// StartHour is the hour of the start day the simulation begins at.
	StartHour float64 `json:"start_hour"`
	// StartDate is the simulated day as YYYY-MM-DD; today when empty.
	StartDate string `json:"start_date"`
}

func (c *ClockConfig) SetDefaults() {
	if c.Multiplier == 0 {
		c.Multiplier = 60
	}
	if c.StartHour == 0 {
		c.StartHour = clock.DefaultStartHour
	}
}

func (c ClockConfig) Validate() error {
	if c.Multiplier < 0 {
		return errors.New("clock: multiplier must be positive")
	}
	if c.StartHour < 0 || c.StartHour >= 24 {
		return errors.New("clock: start_hour must be within [0,24)")
	}
	if c.StartDate != "" {
		if _, err := time.Parse(time.DateOnly, c.StartDate); err != nil {
			return fmt.Errorf("clock: start_date: %w", err)
		}
	}
	return nil
}

// Start returns the first virtual instant.
func (c ClockConfig) Start(now time.Time) time.Time {
	day := now
	if d, err := time.ParseInLocation(time.DateOnly, c.StartDate, now.Location()); err == nil && c.StartDate != "" {
		day = d
	}
	return clock.StartOfDay(day, c.StartHour)
}

// Speed returns the clock multiplier, infinite in teleport mode.
func (c ClockConfig) Speed() float64 {
	if c.Teleport {
		return clock.Teleport
	}
	return c.Multiplier
}

// ServicesConfig locates the routing, solver and geocoding services.
type ServicesConfig struct {
	OSRM   osrm.Config   `json:"osrm"`
	VROOM  vroom.Config  `json:"vroom"`
	Pelias pelias.Config `json:"pelias"`
}

func (c *ServicesConfig) SetDefaults() {
	if c.OSRM.URL == "" {
		c.OSRM.URL = "http://localhost:5000"
	}
	if c.VROOM.URL == "" {
		c.VROOM.URL = "http://localhost:3000"
	}
	c.VROOM.SetDefaults()
}

func (c ServicesConfig) Validate() error {
	if c.VROOM.Concurrency < 1 {
		return errors.New("services: vroom concurrency must be at least 1")
	}
	return nil
}

// PrometheusConfig exposes /metrics.
type PrometheusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

func (c *PrometheusConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":2112"
	}
}

// RegionConfig describes the simulated region.
type RegionConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// GeometryFile is a GeoJSON feature collection of kommun borders,
	// matched to kommuner by the "name" property.
	GeometryFile string `json:"geometry_file"`
	// StopsFile is a JSON array of bus stops.
	StopsFile string               `json:"stops_file"`
	Kommuner  []fleet.KommunConfig `json:"kommuner"`
	Options   fleet.Options        `json:"options"`
	// PrivateCars is the number of private cars per kommun.
	PrivateCars int `json:"private_cars"`
}

func (c *RegionConfig) SetDefaults() {
	if c.ID == "" {
		c.ID = "01"
	}
	if c.Name == "" {
		c.Name = "Stockholms län"
	}
	c.Options.SetDefaults()
}

func (c RegionConfig) Validate() error {
	if len(c.Kommuner) == 0 {
		return errors.New("region: at least one kommun is required")
	}
	seen := map[string]bool{}
	for _, k := range c.Kommuner {
		if err := k.Validate(); err != nil {
			return fmt.Errorf("region: %w", err)
		}
		if seen[k.Name] {
			return fmt.Errorf("region: duplicate kommun %s", k.Name)
		}
		seen[k.Name] = true
	}
	if c.PrivateCars < 0 {
		return errors.New("region: private_cars must be positive")
	}
	return nil
}

// DispatchConfig tunes dispatching and vehicle planning.
type DispatchConfig struct {
	Central dispatch.CentralConfig `json:"central"`
	// RetryDelay separates two routing attempts of a vehicle.
	RetryDelay time.Duration `json:"retry_delay"`
	// ReplanDelay debounces plan requests of taxis and trucks.
	ReplanDelay time.Duration `json:"replan_delay"`
	// DecisionLog keeps every solver call for later inspection.
	DecisionLog logging.Config `json:"decision_log"`
}

func (c DispatchConfig) Validate() error { return c.DecisionLog.Validate() }

func (c *DispatchConfig) SetDefaults() {
	c.Central.SetDefaults()
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.ReplanDelay <= 0 {
		c.ReplanDelay = 2 * time.Second
	}
}

// VehicleTypes maps a vehicle type name to its class and defaults.
type VehicleTypes map[string]vehicle.TypeConfig

// SetDefaults adds the built-in types that are not configured.
func (v *VehicleTypes) SetDefaults() {
	if *v == nil {
		*v = VehicleTypes{}
	}
	defaults := VehicleTypes{
		"car":   {Class: vehicle.ClassCar},
		"taxi":  {Class: vehicle.ClassTaxi},
		"truck": {Class: vehicle.ClassTruck},
		"bus":   {Class: vehicle.ClassBus},
		"drone": {Class: vehicle.ClassDrone},
	}
	for name, tc := range defaults {
		if _, ok := (*v)[name]; !ok {
			(*v)[name] = tc
		}
	}
}

// Validate rejects unknown classes.
func (v VehicleTypes) Validate() error {
	classes := vehicle.Classes()
	for name, tc := range v {
		if !classes.Has(tc.Class) {
			return fmt.Errorf("vehicle type %s: %w %q", name, vehicle.ErrUnknownClass, tc.Class)
		}
	}
	return nil
}
