package cli

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		lang  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search places by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if lang == "" {
				lang = rt.cfg.Language
			}
			if limit <= 0 {
				limit = rt.cfg.SuggestionLimit
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			places, err := rt.service.Suggest(ctx, strings.Join(args, " "), limit, lang)
			if err != nil {
				return err
			}
			if len(places) == 0 {
				cmd.Println("no places found")
				return nil
			}

			rows := make([][]string, 0, len(places))
			for _, p := range places {
				rows = append(rows, []string{
					p.Name,
					p.Admin1,
					p.Country,
					strconv.FormatFloat(p.Latitude, 'f', 4, 64),
					strconv.FormatFloat(p.Longitude, 'f', 4, 64),
				})
			}
			cmd.Println(renderTable([]string{"NAME", "REGION", "COUNTRY", "LAT", "LON"}, rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "result language")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	return cmd
}
