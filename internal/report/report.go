// Package report renders a finished run into shareable artifacts: an
// XLSX workbook for people and a JSON document for machines.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/globalpass/standby-cli/internal/model"
)

// Builder renders run reports into an output directory.
type Builder struct {
	outputDir string
	printer   *message.Printer
}

// NewBuilder creates a report builder writing into outputDir.
func NewBuilder(outputDir string) *Builder {
	return &Builder{
		outputDir: outputDir,
		printer:   message.NewPrinter(language.English),
	}
}

// BuildXLSX writes the workbook for a run and returns its path. The
// first sheet is the ranked summary; each contributing source gets a
// sheet with its raw records so a skeptical traveller can check the
// consolidation's work.
func (b *Builder) BuildXLSX(run *model.Run) (string, error) {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "report: create output dir")
	}

	f := xlsx.NewFile()
	if err := b.addSummarySheet(f, run); err != nil {
		return "", err
	}
	for _, source := range model.Sources {
		task, ok := run.Bots[source]
		if !ok || task.State != model.BotStateDone {
			continue
		}
		if err := addSourceSheet(f, source, task.Records); err != nil {
			return "", err
		}
	}

	path := filepath.Join(b.outputDir, fmt.Sprintf("run_%s.xlsx", run.ID))
	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "report: save workbook")
	}
	return path, nil
}

func (b *Builder) addSummarySheet(f *xlsx.File, run *model.Run) error {
	sheet, err := f.AddSheet("Ranked Flights")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Rank", "Score", "Flight", "Route", "Date", "Departure", "Arrival",
		"Duration", "Stops", "Aircraft", "Chance", "Price", "Seats", "Sources",
	} {
		header.AddCell().SetString(h)
	}

	for _, flight := range run.Results {
		row := sheet.AddRow()
		row.AddCell().SetInt(flight.Rank)
		row.AddCell().SetFloatWithFormat(flight.Score, "0.0")
		row.AddCell().SetString(flight.Key.FlightNumber)
		row.AddCell().SetString(flight.Key.Origin + " - " + flight.Key.Destination)
		row.AddCell().SetString(flight.Key.DepartureDate)
		row.AddCell().SetString(flight.Key.DepartureTime)
		row.AddCell().SetString(flight.ArrivalTime)
		row.AddCell().SetString(flight.Duration)
		if flight.Stops != nil {
			row.AddCell().SetInt(*flight.Stops)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(flight.Aircraft)
		row.AddCell().SetString(flight.Chance)
		row.AddCell().SetString(b.formatPrice(flight.Price, flight.Currency))
		row.AddCell().SetString(formatSeats(flight.Seats))
		row.AddCell().SetString(strings.Join(flight.Sources, ", "))
	}
	return nil
}

func addSourceSheet(f *xlsx.File, source string, records []model.RawFlightRecord) error {
	sheet, err := f.AddSheet(sheetTitle(source))
	if err != nil {
		return eris.Wrapf(err, "report: add sheet for %s", source)
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Flight", "Origin", "Destination", "Date", "Departure", "Arrival",
		"Airline", "Aircraft", "Duration", "Detail",
	} {
		header.AddCell().SetString(h)
	}

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.FlightNumber)
		row.AddCell().SetString(r.Origin)
		row.AddCell().SetString(r.Destination)
		row.AddCell().SetString(r.DepartureDate)
		row.AddCell().SetString(r.DepartureTime)
		row.AddCell().SetString(r.ArrivalTime)
		row.AddCell().SetString(r.AirlineName)
		row.AddCell().SetString(r.Aircraft)
		row.AddCell().SetString(r.Duration)
		row.AddCell().SetString(recordDetail(r))
	}
	return nil
}

// recordDetail flattens the source-specific payload into one column.
func recordDetail(r model.RawFlightRecord) string {
	switch {
	case r.Schedule != nil:
		parts := []string{fmt.Sprintf("selectable=%t", r.Schedule.Selectable)}
		if r.Schedule.Chance != "" {
			parts = append(parts, "chance="+r.Schedule.Chance)
		}
		if r.Schedule.Cabin != "" {
			parts = append(parts, "cabin="+r.Schedule.Cabin)
		}
		return strings.Join(parts, " ")
	case r.Pricing != nil:
		var parts []string
		if r.Pricing.Price != nil {
			parts = append(parts, fmt.Sprintf("price=%.2f %s", *r.Pricing.Price, r.Pricing.Currency))
		}
		if r.Pricing.Stops != nil {
			parts = append(parts, fmt.Sprintf("stops=%d", *r.Pricing.Stops))
		}
		return strings.Join(parts, " ")
	case r.Loads != nil:
		return formatCabins(r.Loads.Seats)
	}
	return ""
}

func (b *Builder) formatPrice(price *float64, currency string) string {
	if price == nil {
		return ""
	}
	out := b.printer.Sprint(number.Decimal(*price, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	if currency != "" {
		out += " " + currency
	}
	return out
}

func formatSeats(seats map[string]map[string]string) string {
	var parts []string
	for _, source := range model.Sources {
		cabins, ok := seats[source]
		if !ok || len(cabins) == 0 {
			continue
		}
		parts = append(parts, source+": "+formatCabins(cabins))
	}
	return strings.Join(parts, "; ")
}

func formatCabins(cabins map[string]string) string {
	keys := make([]string, 0, len(cabins))
	for cabin, band := range cabins {
		if band != "" {
			keys = append(keys, cabin)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, cabin := range keys {
		parts = append(parts, cabin+"="+cabins[cabin])
	}
	return strings.Join(parts, " ")
}

// sheetTitle maps a source name onto a human sheet title.
func sheetTitle(source string) string {
	switch source {
	case model.SourceSchedule:
		return "Schedule"
	case model.SourcePricing:
		return "Pricing"
	case model.SourceLoads:
		return "Seat Loads"
	}
	return source
}

// WriteJSON writes the run snapshot as an indented JSON document and
// returns its path.
func (b *Builder) WriteJSON(run *model.Run) (string, error) {
	if err := os.MkdirAll(b.outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "report: create output dir")
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal run")
	}

	path := filepath.Join(b.outputDir, fmt.Sprintf("run_%s.json", run.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "report: write json")
	}
	return path, nil
}
