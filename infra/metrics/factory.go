package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/predictivemovement/core/factory"
	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/core/metrics/eco"
	"github.com/kilianp07/predictivemovement/infra/kpi"
)

// init registers built-in telemetry sinks.
func init() {
	_ = coremetrics.RegisterSink("nop", func(map[string]any) (coremetrics.TelemetrySink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterSink("prometheus", func(map[string]any) (coremetrics.TelemetrySink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterSink("influx", func(conf map[string]any) (coremetrics.TelemetrySink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})

	_ = coremetrics.RegisterSink("jsonl", func(conf map[string]any) (coremetrics.TelemetrySink, error) {
		var c JSONLConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLSink(c)
	})

	_ = coremetrics.RegisterSink("eco", func(conf map[string]any) (coremetrics.TelemetrySink, error) {
		var c struct {
			SQLitePath string `json:"sqlite_path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		var store eco.Store = eco.NewMemoryStore()
		if c.SQLitePath != "" {
			s, err := kpi.NewSQLiteStore(c.SQLitePath)
			if err != nil {
				return nil, err
			}
			store = s
		}
		return NewEcoSink(store, prometheus.DefaultRegisterer)
	})
}
