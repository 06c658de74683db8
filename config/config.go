package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	statusapi "github.com/kilianp07/predictivemovement/api/status"
	"github.com/kilianp07/predictivemovement/core/demand"
	"github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/infra/monitoring"
	"github.com/kilianp07/predictivemovement/infra/mqtt"
	"github.com/kilianp07/predictivemovement/infra/plancache"
)

type Config struct {
	Clock        ClockConfig       `json:"clock"`
	Services     ServicesConfig    `json:"services"`
	PlanCache    plancache.Config  `json:"plan_cache"`
	Telemetry    metrics.Config    `json:"telemetry"`
	MQTT         mqtt.Config       `json:"mqtt"`
	Prometheus   PrometheusConfig  `json:"prometheus"`
	Sentry       monitoring.Config `json:"sentry"`
	Logging      LoggingConfig     `json:"logging"`
	StatusAPI    statusapi.Config  `json:"status_api"`
	VehicleTypes VehicleTypes      `json:"vehicle_types"`
	Region       RegionConfig      `json:"region"`
	Demand       demand.Config     `json:"demand"`
	Dispatch     DispatchConfig    `json:"dispatch"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Clock.SetDefaults()
	c.Services.SetDefaults()
	c.PlanCache.SetDefaults()
	c.Telemetry.SetDefaults()
	c.MQTT.SetDefaults()
	c.Prometheus.SetDefaults()
	c.Logging.SetDefaults()
	c.VehicleTypes.SetDefaults()
	c.Region.SetDefaults()
	c.Demand.SetDefaults()
	c.Dispatch.SetDefaults()
}

// Validate checks every section and reports the first failure.
func (c Config) Validate() error {
	for _, v := range []interface{ Validate() error }{
		c.Clock, c.Services, c.PlanCache, c.MQTT, c.Logging,
		c.VehicleTypes, c.Region, c.Demand, c.Dispatch,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
