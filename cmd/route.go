package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/predictivemovement/config"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/infra/logger"
	"github.com/kilianp07/predictivemovement/infra/osrm"
)

var (
	routeFrom string
	routeTo   string
	routeURL  string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Print the route between two positions",
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().StringVar(&routeFrom, "from", "", "start as lon,lat")
	routeCmd.Flags().StringVar(&routeTo, "to", "", "destination as lon,lat")
	routeCmd.Flags().StringVar(&routeURL, "osrm", "", "OSRM url, overrides the configuration")
	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(routeCmd)
}

func parsePosition(s string) (geo.Position, error) {
	lon, lat, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Position{}, fmt.Errorf("position %q: expected lon,lat", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return geo.Position{}, fmt.Errorf("position %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geo.Position{}, fmt.Errorf("position %q: %w", s, err)
	}
	p := geo.Pos(x, y)
	if !p.Valid() {
		return geo.Position{}, fmt.Errorf("position %q out of range", s)
	}
	return p, nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	from, err := parsePosition(routeFrom)
	if err != nil {
		return err
	}
	to, err := parsePosition(routeTo)
	if err != nil {
		return err
	}
	osrmCfg := osrm.Config{URL: routeURL}
	if routeURL == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		osrmCfg = cfg.Services.OSRM
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	route, err := osrm.NewClient(osrmCfg, logger.New("osrm")).Route(ctx, from, to)
	if err != nil {
		return err
	}
	if len(route.Legs) == 0 {
		return fmt.Errorf("no route from %s to %s", from, to)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "distance: %.0f m\nduration: %s\npoints: %d\n",
		route.Distance, time.Duration(route.Duration*float64(time.Second)).Round(time.Second).String(), len(route.Geometry))
	return err
}
