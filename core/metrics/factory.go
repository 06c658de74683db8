package metrics

import "github.com/kilianp07/predictivemovement/core/factory"

var sinkRegistry = factory.NewRegistry[TelemetrySink]()

// RegisterSink adds a telemetry sink factory identified by name.
func RegisterSink(name string, f factory.Factory[TelemetrySink]) error {
	return sinkRegistry.Register(name, f)
}

// NewSink creates a TelemetrySink from the provided configuration.
func NewSink(cfgs []factory.KindConfig) (TelemetrySink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]TelemetrySink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
