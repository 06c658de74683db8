package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/predictivemovement/core/metrics/eco"
)

func TestEmissionsRendersEveryFleet(t *testing.T) {
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	records := []eco.Record{
		{Fleet: "Postnord", Date: day, DistanceKm: 120, CO2Kg: 14.4, Deliveries: 40},
		{Fleet: "Postnord", Date: day.AddDate(0, 0, 1), DistanceKm: 80, CO2Kg: 9.6, Deliveries: 30},
		{Fleet: "DHL", Date: day.AddDate(0, 0, 1), DistanceKm: 50, CO2Kg: 6, Deliveries: 0},
	}
	var buf bytes.Buffer
	require.NoError(t, Emissions(&buf, records))

	html := buf.String()
	assert.Contains(t, html, "Fleet emissions")
	assert.Contains(t, html, "Postnord")
	assert.Contains(t, html, "DHL")
	assert.Contains(t, html, "2024-05-07")
}

func TestAxesSorted(t *testing.T) {
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	days, fleets := axes([]eco.Record{
		{Fleet: "b", Date: day.AddDate(0, 0, 1)},
		{Fleet: "a", Date: day},
	})
	assert.Equal(t, []string{"2024-05-06", "2024-05-07"}, days)
	assert.Equal(t, []string{"a", "b"}, fleets)
}
