package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"termin-notifier/config"
	"termin-notifier/pkg/termin"
	"termin-notifier/poll"
	"termin-notifier/scraper"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check all locations once and print the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := newLogger("error") // keep stdout clean for the report

			baseURL := cfg.Poll.BaseURL
			if baseURL == "" {
				baseURL = scraper.DefaultBaseURL
			}
			checker := scraper.NewWithBaseURL(baseURL, logger)
			monitor := poll.NewMonitor(checker, nil, logger)

			agg := monitor.CheckAll(cmd.Context())
			printAggregate(agg)
			return nil
		},
	}
}

func printAggregate(agg *termin.AggregateResult) {
	for _, o := range agg.Outcomes {
		var status string
		switch o.Status {
		case termin.StatusAvailable:
			status = color.New(color.FgGreen).Sprintf("AVAILABLE (%d slots)", o.SlotCount)
		case termin.StatusNoSlots:
			status = "no slots"
		case termin.StatusNetworkError, termin.StatusHTTPError, termin.StatusParseError:
			status = color.New(color.FgRed).Sprintf("ERROR: %s", o.ErrorDetail)
		}
		fmt.Printf("%-70s %s\n", o.LocationName, status)
	}

	fmt.Println()
	if agg.Overall == termin.OverallSuccess {
		fmt.Printf("Overall: %s\n", color.New(color.FgGreen).Sprint("success"))
	} else {
		fmt.Printf("Overall: %s\n", color.New(color.FgYellow).Sprint("partial success"))
	}
}
