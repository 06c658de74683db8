// Package app assembles the simulation from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	statusapi "github.com/kilianp07/predictivemovement/api/status"
	"github.com/kilianp07/predictivemovement/config"
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/demand"
	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/core/dispatch/logging"
	"github.com/kilianp07/predictivemovement/core/fleet"
	"github.com/kilianp07/predictivemovement/core/geo"
	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/core/metrics/eco"
	coremon "github.com/kilianp07/predictivemovement/core/monitoring"
	corestatus "github.com/kilianp07/predictivemovement/core/status"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/infra/logger"
	"github.com/kilianp07/predictivemovement/infra/metrics"
	"github.com/kilianp07/predictivemovement/infra/monitoring"
	"github.com/kilianp07/predictivemovement/infra/mqtt"
	"github.com/kilianp07/predictivemovement/infra/osrm"
	"github.com/kilianp07/predictivemovement/infra/pelias"
	"github.com/kilianp07/predictivemovement/infra/plancache"
	"github.com/kilianp07/predictivemovement/infra/vroom"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// Service runs one simulated region.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	monitor   coremon.Monitor
	clock     *clock.Clock
	bookings  *eventbus.TypedBus[booking.Event]
	vehicles  *eventbus.TypedBus[vehicle.Event]
	sink      coremetrics.TelemetrySink
	cache     plancache.Cache
	region    *fleet.Region
	intake    *Intake
	producer  *demand.Producer
	status    *corestatus.Store
	kpis      eco.Store
	decisions logging.LogStore
	mqtt      *mqtt.Client
}

// New creates a Service from the configuration. Hub addresses are
// geocoded during construction, bounded by ctx.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return nil, err
	}
	monitor, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(monitor)

	s := &Service{
		cfg:      cfg,
		log:      logg,
		monitor:  monitor,
		clock:    clock.New(cfg.Clock.Start(time.Now()), cfg.Clock.Speed()),
		bookings: eventbus.NewTyped[booking.Event](),
		vehicles: eventbus.NewTyped[vehicle.Event](),
		status:   corestatus.NewStore(),
	}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg
	sink, err := coremetrics.NewSink(cfg.Telemetry.Sinks)
	if err != nil {
		return fmt.Errorf("telemetry sinks: %w", err)
	}
	s.sink = sink
	if st, ok := metrics.FindEcoStore(sink); ok {
		s.kpis = st
	}

	cache, err := plancache.New(ctx, cfg.PlanCache)
	if err != nil {
		return fmt.Errorf("plan cache: %w", err)
	}
	if cache != nil {
		inst, err := plancache.NewInstrumented(cache, prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("plan cache metrics: %w", err)
		}
		s.cache = inst
	}

	router := osrm.NewClient(cfg.Services.OSRM, logger.New("osrm"))
	vroomCfg := cfg.Services.VROOM
	vroomCfg.CacheAfter = cfg.PlanCache.MinSolveTime
	solver := vroom.NewClient(vroomCfg, s.cache, logger.New("vroom"))
	var geocoder *pelias.Client
	if cfg.Services.Pelias.URL != "" {
		geocoder = pelias.NewClient(cfg.Services.Pelias, logger.New("pelias"))
	}

	catalog, err := vehicle.NewCatalog(vehicle.Classes(), cfg.VehicleTypes)
	if err != nil {
		return err
	}
	planner := dispatch.NewPlanner(solver, s.clock, logger.New("planner"))
	decisions, err := logging.Open(cfg.Dispatch.DecisionLog)
	if err != nil {
		return fmt.Errorf("decision log: %w", err)
	}
	if decisions != nil {
		s.decisions = decisions
		planner.WithDecisionLog(decisions)
	}
	riders := fleet.NewRiders()
	deps := vehicle.Deps{
		Clock:       s.clock,
		Router:      router,
		Planner:     planner,
		Riders:      riders,
		Events:      s.vehicles,
		Logger:      logger.New("vehicle"),
		RetryDelay:  cfg.Dispatch.RetryDelay,
		ReplanDelay: cfg.Dispatch.ReplanDelay,
	}

	kommunCfgs := cfg.Region.Kommuner
	if cfg.Region.GeometryFile != "" {
		geometries, err := LoadGeometries(cfg.Region.GeometryFile)
		if err != nil {
			return err
		}
		kommunCfgs = attachGeometries(kommunCfgs, geometries)
	}
	var stops []booking.Place
	if cfg.Region.StopsFile != "" {
		if stops, err = LoadStops(cfg.Region.StopsFile); err != nil {
			return err
		}
	}

	central := dispatch.NewCentral(cfg.Dispatch.Central, logger.New("central"))
	var kommunGeocoder fleet.Geocoder
	if geocoder != nil {
		kommunGeocoder = geocoder
	}
	kommuner := make([]*fleet.Kommun, 0, len(kommunCfgs))
	for _, kc := range kommunCfgs {
		k, err := fleet.NewKommun(ctx, kc, kommunGeocoder, catalog, deps, central, logger.Scoped("kommun", map[string]string{"kommun": kc.Name}))
		if err != nil {
			for _, built := range kommuner {
				built.Close()
			}
			return err
		}
		if err := addPrivateCars(k, cfg.Region.PrivateCars, catalog, deps); err != nil {
			k.Close()
			for _, built := range kommuner {
				built.Close()
			}
			return err
		}
		kommuner = append(kommuner, k)
	}
	s.region = fleet.NewRegion(cfg.Region.ID, cfg.Region.Name, kommuner, stops, riders, planner, cfg.Region.Options, logger.New("region"))
	s.intake = NewIntake(s.region, s.bookings, s.clock)

	if cfg.Demand.Enabled {
		areas := make([]demand.Area, 0, len(kommuner))
		for _, k := range kommuner {
			areas = append(areas, demand.Area{Name: k.Name, Center: k.Center, Population: k.Population, Geometry: k.Geometry})
		}
		var demandGeocoder demand.Geocoder
		if geocoder != nil {
			demandGeocoder = geocoder
		}
		p, err := demand.NewProducer(cfg.Demand, s.clock, areas, s.intake, demandGeocoder, logger.New("demand"))
		if err != nil {
			return err
		}
		s.producer = p
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(cfg.MQTT, map[string]mqtt.Handler{
			mqtt.TopicManual: s.manualBooking,
		}, logger.New("mqtt"))
		if err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
		s.mqtt = client
	}
	return nil
}

// addPrivateCars spreads n private cars around the kommun center.
func addPrivateCars(k *fleet.Kommun, n int, catalog *vehicle.Catalog, deps vehicle.Deps) error {
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pos := geo.AddMeters(k.Center, geo.Offset{X: 2000 * math.Cos(angle), Y: 2000 * math.Sin(angle)})
		v, err := catalog.Build("car", vehicle.Spec{Position: pos, Kommun: k.Name, PrivateCar: true}, deps)
		if err != nil {
			return fmt.Errorf("private car in %s: %w", k.Name, err)
		}
		k.AddPrivateCar(v)
	}
	return nil
}

func (s *Service) manualBooking(payload []byte) {
	b, err := mqtt.ParseManualBooking(payload)
	if err != nil {
		s.log.Warnf("manual booking rejected: %v", err)
		return
	}
	s.intake.Manual(b)
}

// Intake registers a booking on the event bus before handing it to the
// region.
func (s *Service) Intake() *Intake { return s.intake }

// Status returns the snapshot store served by the status API.
func (s *Service) Status() *corestatus.Store { return s.status }

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	wait := metrics.StartCollector(ctx, s.bookings, s.vehicles, s.sink, s.cfg.Telemetry.SnapshotInterval, logger.New("collector"))
	s.status.Follow(ctx, s.bookings, s.vehicles)
	if s.mqtt != nil {
		mqtt.StartFeed(ctx, s.mqtt, s.bookings, s.vehicles, s.cfg.MQTT, logger.New("feed"))
	}
	if s.cfg.Prometheus.Enabled {
		coremon.Go(func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Prometheus.Addr, s.log); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}
	if s.cfg.StatusAPI.Addr != "" {
		coremon.Go(func() {
			if err := statusapi.Serve(ctx, s.cfg.StatusAPI, s.status, s.kpis, s.decisions, s.log); err != nil {
				s.log.Errorf("status api: %v", err)
			}
		})
	}

	coremon.Go(func() { s.clock.Run(ctx) })
	s.region.Start(ctx)
	if s.producer != nil {
		coremon.Go(func() { s.producer.Run(ctx) })
	}
	s.log.Infof("simulating %s with %d kommuner from %s", s.region.Name, len(s.region.Kommuner()), s.clock.Now().Format(time.DateTime))

	<-ctx.Done()
	s.region.Close()
	wait()
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.region != nil {
		s.region.Close()
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	if c, ok := s.sink.(coremetrics.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.cache.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if s.decisions != nil {
		errs = append(errs, s.decisions.Close())
	}
	s.bookings.Close()
	s.vehicles.Close()
	if s.monitor != nil {
		s.monitor.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}
