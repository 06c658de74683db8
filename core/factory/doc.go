// Package factory builds configured kinds by name. A kind is selected by a
// type string and carries a map of raw parameters that its constructor
// decodes into a typed struct.
//
// The vehicle class catalog and the telemetry sinks are both built on it:
//
//	reg := factory.NewRegistry[metrics.TelemetrySink]()
//	reg.Register("jsonl", func(conf map[string]any) (metrics.TelemetrySink, error) {
//	    var c struct{ Path string `json:"path"` }
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newJSONL(c.Path)
//	})
//	sink, err := reg.Create(factory.KindConfig{Type: "jsonl", Conf: map[string]any{"path": "stats.jsonl"}})
package factory
