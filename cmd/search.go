package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/globalpass/standby-cli/internal/model"
)

var (
	searchCriteriaFile string
	searchFrom         string
	searchTo           string
	searchDate         string
	searchTime         string
	searchClass        string
	searchStatus       string
	searchAirline      string
	searchNonstop      bool
	searchFlights      []string
	searchJSONOut      bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one search and print the ranked candidates",
	Long:  "Dispatches all applicable collectors for the given criteria, waits for the run to finish, prints the ranked table, and writes the XLSX and JSON reports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		criteria, err := loadCriteria()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.Registry.CreateRun(ctx, criteria)
		if err != nil {
			return err
		}

		// Stream the run log to stderr while waiting.
		events, cancel, err := env.Registry.Subscribe(runID)
		if err != nil {
			return err
		}
		go func() {
			defer cancel()
			for ev := range events {
				switch ev.Type {
				case model.EventLog:
					fmt.Fprintln(os.Stderr, ev.Message)
				case model.EventProgress:
					fmt.Fprintf(os.Stderr, "[%s] %d%% %s\n", ev.Bot, ev.Percent, ev.Caption)
				}
			}
		}()

		if err := env.Registry.Dispatch(runID); err != nil {
			return err
		}

		run, err := env.Registry.Wait(ctx, runID)
		if err != nil {
			return err
		}

		if run.Status == model.RunStatusError {
			return eris.Errorf("run %s failed: %s", runID, run.Error)
		}

		if searchJSONOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(run.Results); err != nil {
				return eris.Wrap(err, "encode results")
			}
		} else {
			formatResults(os.Stdout, run.Results)
		}

		xlsxPath, err := env.Reports.BuildXLSX(run)
		if err != nil {
			return err
		}
		jsonPath, err := env.Reports.WriteJSON(run)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report: %s\nSnapshot: %s\n", xlsxPath, jsonPath)
		return nil
	},
}

// loadCriteria builds the search criteria from the JSON file when given,
// otherwise from flags.
func loadCriteria() (model.SearchCriteria, error) {
	var criteria model.SearchCriteria

	if searchCriteriaFile != "" {
		data, err := os.ReadFile(searchCriteriaFile)
		if err != nil {
			return criteria, eris.Wrap(err, "read criteria file")
		}
		if err := json.Unmarshal(data, &criteria); err != nil {
			return criteria, eris.Wrap(err, "parse criteria file")
		}
		return criteria, nil
	}

	criteria = model.SearchCriteria{
		FlightType:    model.FlightTypeOneWay,
		TravelStatus:  model.TravelStatus(searchStatus),
		Airline:       searchAirline,
		NonstopOnly:   searchNonstop,
		Trips:         []model.Trip{{Origin: searchFrom, Destination: searchTo}},
		Itinerary:     []model.ItineraryLeg{{Date: searchDate, Time: searchTime, Class: searchClass}},
		FlightNumbers: searchFlights,
	}
	return criteria, nil
}

// formatResults writes the ranked candidates as a table.
func formatResults(out io.Writer, results []model.ConsolidatedFlight) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No eligible flights found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tSCORE\tFLIGHT\tROUTE\tDEPARTS\tDURATION\tSTOPS\tCHANCE\tPRICE\tSOURCES")

	for _, f := range results {
		stops := "?"
		if f.Stops != nil {
			stops = fmt.Sprintf("%d", *f.Stops)
		}
		price := ""
		if f.Price != nil {
			price = fmt.Sprintf("%.2f %s", *f.Price, f.Currency)
		}
		_, _ = fmt.Fprintf(w, "%d\t%.1f\t%s\t%s-%s\t%s %s\t%s\t%s\t%s\t%s\t%s\n",
			f.Rank,
			f.Score,
			f.Key.FlightNumber,
			f.Key.Origin, f.Key.Destination,
			f.Key.DepartureDate, f.Key.DepartureTime,
			f.Duration,
			stops,
			f.Chance,
			price,
			strings.Join(f.Sources, ","),
		)
	}
	_ = w.Flush()
}

func init() {
	searchCmd.Flags().StringVar(&searchCriteriaFile, "criteria", "", "path to a JSON criteria file (overrides other flags)")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "origin airport code")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "destination airport code")
	searchCmd.Flags().StringVar(&searchDate, "date", "", "departure date (MM/DD/YYYY)")
	searchCmd.Flags().StringVar(&searchTime, "time", "09:00 AM", "preferred departure time")
	searchCmd.Flags().StringVar(&searchClass, "class", "Economy", "cabin class")
	searchCmd.Flags().StringVar(&searchStatus, "status", "standby", "travel status (standby or booked)")
	searchCmd.Flags().StringVar(&searchAirline, "airline", "", "restrict to one airline")
	searchCmd.Flags().BoolVar(&searchNonstop, "nonstop", false, "nonstop flights only")
	searchCmd.Flags().StringSliceVar(&searchFlights, "flight-numbers", nil, "known flight numbers (lookup run, skips the schedule source)")
	searchCmd.Flags().BoolVar(&searchJSONOut, "json", false, "print results as JSON instead of a table")
	rootCmd.AddCommand(searchCmd)
}
