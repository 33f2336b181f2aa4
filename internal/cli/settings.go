package cli

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-tracker/internal/store"
)

func newSettingsCmd(a *app) *cobra.Command {
	var (
		reset bool

		refetchMs, staleMs, gcMs int64
		focus, reconnect         bool
		retry                    int
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the refresh policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.runtime()
			if err != nil {
				return err
			}
			defer rt.Close()

			flags := cmd.Flags()
			var patch store.SettingsPatch
			if flags.Changed("refetch-interval-ms") {
				patch.RefetchIntervalMs = &refetchMs
			}
			if flags.Changed("stale-time-ms") {
				patch.StaleTimeMs = &staleMs
			}
			if flags.Changed("gc-time-ms") {
				patch.GCTimeMs = &gcMs
			}
			if flags.Changed("refetch-on-focus") {
				patch.RefetchOnWindowFocus = &focus
			}
			if flags.Changed("refetch-on-reconnect") {
				patch.RefetchOnReconnect = &reconnect
			}
			if flags.Changed("retry") {
				r := store.Retry(retry)
				patch.Retry = &r
			}

			if reset && patch != (store.SettingsPatch{}) {
				return errors.New("--reset cannot be combined with other settings")
			}

			s := rt.settings.Get()
			switch {
			case reset:
				s, err = rt.settings.Reset()
			case patch != (store.SettingsPatch{}):
				s, err = rt.settings.Update(patch)
			}
			if err != nil {
				return err
			}

			cmd.Println(renderTable([]string{"SETTING", "VALUE"}, [][]string{
				{"refetchIntervalMs", strconv.FormatInt(s.RefetchIntervalMs, 10)},
				{"staleTimeMs", strconv.FormatInt(s.StaleTimeMs, 10)},
				{"gcTimeMs", strconv.FormatInt(s.GCTimeMs, 10)},
				{"refetchOnWindowFocus", strconv.FormatBool(s.RefetchOnWindowFocus)},
				{"refetchOnReconnect", strconv.FormatBool(s.RefetchOnReconnect)},
				{"retry", strconv.Itoa(int(s.Retry))},
			}))
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&reset, "reset", false, "restore the defaults")
	f.Int64Var(&refetchMs, "refetch-interval-ms", 0, "background refresh period, 0 disables")
	f.Int64Var(&staleMs, "stale-time-ms", 0, "how long data counts as fresh")
	f.Int64Var(&gcMs, "gc-time-ms", 0, "how long unused data is retained")
	f.BoolVar(&focus, "refetch-on-focus", true, "refetch stale data on focus")
	f.BoolVar(&reconnect, "refetch-on-reconnect", true, "refetch stale data on reconnect")
	f.IntVar(&retry, "retry", 1, "extra attempts after a transient failure")
	return cmd
}
