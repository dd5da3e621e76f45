package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/foodfinderyyc/smsbot/internal/geocode"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/places"
	"github.com/spf13/cobra"
)

func newValidateDataCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-data",
		Short: "Check the place tables for duplicate keys and missing entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := places.Load(cfg.DataDir)
			if err != nil {
				return err
			}
			report := table.Validate()
			printReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return errors.New("place tables failed validation")
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r places.Report) {
	for _, file := range slices.Sorted(maps.Keys(r.DuplicateKeys)) {
		fmt.Fprintf(w, "%s: duplicate keys %v\n", file, r.DuplicateKeys[file])
	}
	for _, key := range r.MissingAddresses {
		fmt.Fprintf(w, "missing address: %s\n", key)
	}
	for _, key := range r.MissingGeocodings {
		fmt.Fprintf(w, "missing geocoding: %s\n", key)
	}
	if r.OK() {
		fmt.Fprintln(w, "OK")
	}
}

func newGeocodePlacesCmd(cfg *Config) *cobra.Command {
	var rate int
	cmd := &cobra.Command{
		Use:   "geocode-places",
		Short: "Geocode every address in the place tables and write " + places.GeocodingsFile,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := places.Load(cfg.DataDir)
			if err != nil {
				return err
			}
			g, err := geocode.NewGoogleGeocoder(cfg.GoogleAPIKey)
			if err != nil {
				return err
			}
			return geocodePlaces(cmd, cfg.DataDir, table, geocode.NewBatchGeocoder(g, rate))
		},
	}
	cmd.Flags().IntVar(&rate, "rate", geocode.DefaultBatchRate, "geocoding requests per second")
	return cmd
}

// geocodePlaces refreshes the coordinate table. Existing coordinates are kept for
// addresses that fail to geocode.
func geocodePlaces(cmd *cobra.Command, dir string, table *places.Table, batch *geocode.BatchGeocoder) error {
	res, err := batch.GeocodeAll(cmd.Context(), table.Addresses)
	if err != nil {
		return err
	}
	coords := make(map[string]models.Coordinate, len(table.Geocodings)+len(res.Coordinates))
	maps.Copy(coords, table.Geocodings)
	maps.Copy(coords, res.Coordinates)
	if err := places.WriteGeocodings(dir, coords); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, key := range slices.Sorted(maps.Keys(res.Failures)) {
		fmt.Fprintf(out, "failed: %s (%s): %v\n", key, table.Addresses[key], res.Failures[key])
	}
	fmt.Fprintf(out, "geocoded %d of %d addresses\n", len(res.Coordinates), len(table.Addresses))
	slog.Info("geocode-places finished", "geocoded", len(res.Coordinates), "failed", len(res.Failures))
	return nil
}
