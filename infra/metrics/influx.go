package metrics

import (
	"context"
	"maps"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/infra/logger"
)

// InfluxSink writes telemetry records to an InfluxDB instance using the
// official client. The collection becomes the measurement.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.TelemetrySink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Save writes r as one point.
func (s *InfluxSink) Save(ctx context.Context, collection string, r coremetrics.Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, Point(collection, r))
}

// Close releases the client.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// Point converts a record to a line protocol point. Keys are written in
// sorted order and empty tags are skipped.
func Point(collection string, r coremetrics.Record) *write.Point {
	p := write.NewPointWithMeasurement(collection).AddTag("id", r.ID)
	for _, k := range slices.Sorted(maps.Keys(r.Tags)) {
		if v := r.Tags[k]; v != "" {
			p.AddTag(k, v)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(r.Fields)) {
		p.AddField(k, round3(r.Fields[k]))
	}
	if r.Position != nil {
		p.AddField("lon", r.Position.Lon).AddField("lat", r.Position.Lat)
	}
	return p.SetTime(r.Time)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
