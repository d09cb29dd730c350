package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"water-dispatch-backend/config"
	"water-dispatch-backend/internal/geo"
)

// catalogCmd prints the candidate locations with their road distances
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show candidate locations and which are within dispatch range",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
		return printCatalog(cmd, geo.NewCatalogFromConfig(cfg.Dispatch), cfg.Dispatch.MaxRoadDistanceKm)
	},
}

func printCatalog(cmd *cobra.Command, catalog *geo.Catalog, maxKm float64) error {
	ref := catalog.Reference()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "reference: %s (%.4f, %.4f), range %.0f km\n\n", ref.Label(), ref.Lat, ref.Lng, maxKm)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LOCATION\tROAD KM\tELIGIBLE")
	for _, loc := range catalog.Ranked() {
		fmt.Fprintf(w, "%s\t%.1f\t%t\n", loc.Label(), loc.RoadDistanceKm, loc.Eligible)
	}
	return w.Flush()
}
