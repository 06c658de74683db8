package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/predictivemovement/core/vehicle"
)

const sample = `clock:
  multiplier: 120
  start_date: "2024-05-06"
services:
  osrm:
    url: "http://osrm:5000"
  vroom:
    url: "http://vroom:3000"
    concurrency: 4
plan_cache:
  backend: "sqlite"
  path: "plans.db"
telemetry:
  sinks:
    - type: "nop"
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  topic_prefix: "pm"
  qos:
    vehicles: 1
status_api:
  addr: ":8080"
vehicle_types:
  lastbil:
    class_name: "Truck"
    params:
      parcel_capacity: 300
region:
  name: "Test län"
  kommuner:
    - name: "Stockholm"
      center: {lon: 18.06, lat: 59.33}
      fleets:
        - name: "Postnord"
          marketshare: 1
          vehicles:
            lastbil: 2
demand:
  bookings_per_hour: 4
dispatch:
  central:
    window: "2s"
`

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", sample))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"multiplier", cfg.Clock.Multiplier, 120.0},
		{"start hour default", cfg.Clock.StartHour, 4.8},
		{"osrm", cfg.Services.OSRM.URL, "http://osrm:5000"},
		{"vroom concurrency", cfg.Services.VROOM.Concurrency, int64(4)},
		{"vroom retry default", cfg.Services.VROOM.RetryDelay, 2 * time.Second},
		{"plan cache", cfg.PlanCache.Backend, "sqlite"},
		{"sinks", len(cfg.Telemetry.Sinks), 1},
		{"mqtt prefix", cfg.MQTT.TopicPrefix, "pm"},
		{"mqtt qos", cfg.MQTT.QoS["vehicles"], byte(1)},
		{"status addr", cfg.StatusAPI.Addr, ":8080"},
		{"prometheus addr", cfg.Prometheus.Addr, ":2112"},
		{"region", cfg.Region.Name, "Test län"},
		{"region id", cfg.Region.ID, "01"},
		{"kommun", cfg.Region.Kommuner[0].Center.Lon, 18.06},
		{"fleet vehicles", cfg.Region.Kommuner[0].Fleets[0].Vehicles["lastbil"], 2},
		{"demand", cfg.Demand.BookingsPerHour, 4.0},
		{"central window", cfg.Dispatch.Central.Window, 2 * time.Second},
		{"log level", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v got %v", c.name, c.want, c.got)
		}
	}
	if cfg.VehicleTypes["lastbil"].Class != vehicle.ClassTruck {
		t.Errorf("custom vehicle type not loaded")
	}
	if cfg.VehicleTypes["taxi"].Class != vehicle.ClassTaxi {
		t.Errorf("built-in vehicle types missing")
	}
	start := cfg.Clock.Start(time.Now())
	if start.Format("2006-01-02 15:04") != "2024-05-06 04:48" {
		t.Errorf("unexpected start %s", start)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_CLOCK__MULTIPLIER", "60")
	t.Setenv("K_SERVICES__OSRM__URL", "http://other:5000")
	t.Setenv("K_DISPATCH__DECISION_LOG__BACKEND", "jsonl")
	t.Setenv("K_DISPATCH__DECISION_LOG__PATH", "/tmp/decisions.jsonl")
	cfg, err := Load(writeConfig(t, "config.yaml", sample))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Clock.Multiplier != 60 {
		t.Errorf("multiplier override failed: %v", cfg.Clock.Multiplier)
	}
	if cfg.Services.OSRM.URL != "http://other:5000" {
		t.Errorf("osrm override failed: %v", cfg.Services.OSRM.URL)
	}
	if cfg.Dispatch.DecisionLog.Backend != "jsonl" || cfg.Dispatch.DecisionLog.Path != "/tmp/decisions.jsonl" {
		t.Errorf("decision log override failed: %+v", cfg.Dispatch.DecisionLog)
	}
}

func TestLoadJSON(t *testing.T) {
	data := `{"region":{"kommuner":[{"name":"Solna"}]},"logging":{"level":"debug"}}`
	cfg, err := Load(writeConfig(t, "config.json", data))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Region.Kommuner[0].Name != "Solna" {
		t.Fatalf("json config not loaded: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]struct {
		name string
		data string
		want string
	}{
		"format":       {"config.toml", "", "unsupported config format"},
		"no kommun":    {"config.yaml", "clock:\n  multiplier: 1\n", "at least one kommun"},
		"class":        {"config.yaml", "vehicle_types:\n  x:\n    class_name: Boat\nregion:\n  kommuner:\n    - name: A\n", "unknown vehicle class"},
		"log level":    {"config.yaml", "logging:\n  level: loud\nregion:\n  kommuner:\n    - name: A\n", "unknown log level"},
		"start date":   {"config.yaml", "clock:\n  start_date: tomorrow\nregion:\n  kommuner:\n    - name: A\n", "start_date"},
		"duplicate":    {"config.yaml", "region:\n  kommuner:\n    - name: A\n    - name: A\n", "duplicate kommun"},
		"mqtt broker":  {"config.yaml", "mqtt:\n  enabled: true\nregion:\n  kommuner:\n    - name: A\n", "broker is required"},
		"cache driver": {"config.yaml", "plan_cache:\n  backend: mongo\nregion:\n  kommuner:\n    - name: A\n", "plan_cache"},
		"decision log": {"config.yaml", "dispatch:\n  decision_log:\n    backend: sqlite\nregion:\n  kommuner:\n    - name: A\n", "path is required"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.name, c.data))
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("expected error containing %q got %v", c.want, err)
			}
		})
	}
}

func TestTeleportSpeed(t *testing.T) {
	c := ClockConfig{Multiplier: 10, Teleport: true}
	if c.Speed() <= 1e300 {
		t.Fatalf("teleport must be infinite, got %v", c.Speed())
	}
}
