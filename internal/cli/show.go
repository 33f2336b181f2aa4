package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-tracker/internal/weather"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		lang    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "show ID|NAME",
		Short: "Fetch and print the forecast card of a tracked location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			loc, err := findLocation(rt, args[0])
			if err != nil {
				return err
			}
			if lang == "" {
				lang = rt.cfg.Language
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			st, err := rt.service.Fetch(ctx, loc, lang)
			if st.Data == nil {
				if err == nil {
					err = fmt.Errorf("no data for %s", loc.Name)
				}
				return err
			}
			if err != nil {
				// last good data is still printed
				cmd.Println(errorStyle.Render(fmt.Sprintf("refresh failed (%s): %v", weather.KindOf(err), err)))
			}
			cmd.Println(renderCard(loc, st))
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "place name language")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for upstream")
	return cmd
}

func renderCard(loc weather.TrackedLocation, st weather.State) string {
	card := st.Data
	var b strings.Builder

	name := loc.Name
	if st.Place != nil && st.Place.Country != "" {
		name = fmt.Sprintf("%s, %s", st.Place.Name, st.Place.Country)
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", card.Icon, name)))
	b.WriteString("\n")

	tempUnit := unit(card.Units.Current, "temperature", "°C")
	windUnit := unit(card.Units.Current, "windspeed", "km/h")
	fmt.Fprintf(&b, "%s%s  %s\n", num(&card.Temperature), tempUnit, card.DescriptionKey)
	fmt.Fprintf(&b, "humidity %s%%  wind %s %s %s\n",
		num(card.Humidity), num(&card.WindSpeed), windUnit, card.WindDirectionCompass)
	if !st.FetchedAt.IsZero() {
		b.WriteString(mutedStyle.Render("updated " + st.FetchedAt.Local().Format(time.DateTime)))
		b.WriteString("\n")
	}

	rows := make([][]string, 0, len(card.DailyRows))
	for _, r := range card.DailyRows {
		rows = append(rows, []string{r.Date, num(r.Min), num(r.Max), num(r.Precipitation), num(r.HumidityAvg)})
	}
	b.WriteString(renderTable([]string{"DATE", "MIN", "MAX", "PRECIP", "HUMIDITY"}, rows))
	return b.String()
}

func unit(units map[string]string, key, fallback string) string {
	if u, ok := units[key]; ok && u != "" {
		return u
	}
	return fallback
}

// num formats a missing value as a dash.
func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
