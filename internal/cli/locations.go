package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-tracker/internal/common"
	"github.com/i474232898/weather-tracker/internal/store"
	"github.com/i474232898/weather-tracker/internal/weather"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			locs := rt.locations.List()
			if len(locs) == 0 {
				cmd.Println("no tracked locations")
				return nil
			}

			rows := make([][]string, 0, len(locs))
			for _, l := range locs {
				rows = append(rows, []string{l.ID, l.Name, coord(l.Latitude), coord(l.Longitude)})
			}
			cmd.Println(renderTable([]string{"ID", "NAME", "LAT", "LON"}, rows))
			return nil
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var (
		id       string
		lat, lon float64
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Track a location; coordinates are looked up by name when omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			in := store.AddInput{ID: id, Name: args[0]}
			if cmd.Flags().Changed("lat") {
				in.Latitude = &lat
			}
			if cmd.Flags().Changed("lon") {
				in.Longitude = &lon
			}

			loc, outcome, err := rt.locations.Add(in)
			if err != nil {
				return err
			}
			switch outcome {
			case store.AddIgnored:
				return errors.New("name must not be blank")
			case store.AddAppended:
				cmd.Printf("added %s (%s)\n", loc.Name, loc.ID)
			case store.AddMerged:
				cmd.Printf("updated coordinates of %s (%s)\n", loc.Name, loc.ID)
			default:
				cmd.Printf("%s is already tracked (%s)\n", loc.Name, loc.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "explicit id (generated when empty)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude")
	return cmd
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID|NAME",
		Aliases: []string{"rm"},
		Short:   "Stop tracking a location",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.locations.Remove(args[0])
			if err != nil {
				return err
			}
			rt.service.Forget(removed.ID)
			cmd.Printf("removed %s (%s)\n", removed.Name, removed.ID)
			return nil
		},
	}
}

// findLocation matches by id first, then by case-insensitive name.
func findLocation(rt *runtime, key string) (weather.TrackedLocation, error) {
	if loc, err := rt.locations.Get(key); err == nil {
		return loc, nil
	}
	for _, l := range rt.locations.List() {
		if common.NormalizeName(l.Name) == common.NormalizeName(key) {
			return l, nil
		}
	}
	return weather.TrackedLocation{}, fmt.Errorf("location %q: %w", key, store.ErrNotFound)
}

func coord(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
