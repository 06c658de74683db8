// Package ecokpi rebuilds emission KPIs from recorded statistics.
package ecokpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/core/metrics/eco"
)

type line struct {
	Collection string `json:"collection"`
	coremetrics.Record
}

// Backfill replays a statistics file written by the jsonl sink into store
// and returns the number of deliveries added.
func Backfill(store eco.Store, r io.Reader) (int, error) {
	dec := json.NewDecoder(r)
	n := 0
	for {
		var l line
		err := dec.Decode(&l)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("statistics line %d: %w", n+1, err)
		}
		rec, ok := eco.FromDelivery(l.Collection, l.Record)
		if !ok {
			continue
		}
		if err := store.Add(rec); err != nil {
			return n, err
		}
		n++
	}
}
