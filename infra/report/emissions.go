// Package report renders emission KPIs as HTML charts.
package report

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/predictivemovement/core/metrics/eco"
)

const dayLayout = "2006-01-02"

// Emissions renders one page with the daily CO2 of every fleet and its CO2
// per delivery.
func Emissions(w io.Writer, records []eco.Record) error {
	days, fleets := axes(records)

	total := charts.NewBar()
	total.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Daily emissions"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Day"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "CO2 (kg)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	total.SetXAxis(days)

	perDelivery := charts.NewLine()
	perDelivery.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Emissions per delivery"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Day"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "CO2 (kg)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	perDelivery.SetXAxis(days)

	for _, fleet := range fleets {
		byDay := map[string]eco.Record{}
		for _, r := range records {
			if r.Fleet == fleet {
				byDay[r.Date.Format(dayLayout)] = r
			}
		}
		bars := make([]opts.BarData, 0, len(days))
		points := make([]opts.LineData, 0, len(days))
		for _, d := range days {
			r, ok := byDay[d]
			if !ok {
				bars = append(bars, opts.BarData{Value: 0})
				points = append(points, opts.LineData{Value: nil})
				continue
			}
			bars = append(bars, opts.BarData{Value: round(r.CO2Kg)})
			points = append(points, opts.LineData{Value: round(r.CO2PerDelivery())})
		}
		total.AddSeries(fleet, bars)
		perDelivery.AddSeries(fleet, points)
	}

	page := components.NewPage()
	page.PageTitle = "Fleet emissions"
	page.AddCharts(total, perDelivery)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func axes(records []eco.Record) (days, fleets []string) {
	d := map[string]struct{}{}
	f := map[string]struct{}{}
	for _, r := range records {
		d[r.Date.Format(dayLayout)] = struct{}{}
		f[r.Fleet] = struct{}{}
	}
	return slices.Sorted(maps.Keys(d)), slices.Sorted(maps.Keys(f))
}

func round(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}
