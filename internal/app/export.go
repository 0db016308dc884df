package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"price-threshold-alerts/internal/storage"
)

const defaultExportWindow = 30 * 24 * time.Hour

// Export renders notification history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	window := a.Config.Database.Retention
	if window <= 0 {
		window = defaultExportWindow
	}
	from := to.Add(-window)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListNotificationsBetween(ctx, opts.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no notifications found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting notifications")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.NotificationRecord, max int) []storage.NotificationRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.NotificationRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.NotificationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "alert_id", "symbol", "direction", "threshold", "observed_price", "delivered_channels", "failed_channels", "cooldown_advanced"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.AlertID,
			rec.Symbol,
			string(rec.Direction),
			formatFloat(rec.Threshold),
			formatFloat(rec.ObservedPrice),
			strings.Join(rec.DeliveredChannels, ";"),
			strings.Join(rec.FailedChannels, ";"),
			strconv.FormatBool(rec.CooldownAdvanced),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeRecordsPNG plots observed price per symbol; symbols with a single
// point cannot form a line and are left out.
func writeRecordsPNG(path string, records []storage.NotificationRecord) error {
	bySymbol := make(map[string][]storage.NotificationRecord)
	for _, rec := range records {
		bySymbol[rec.Symbol] = append(bySymbol[rec.Symbol], rec)
	}
	symbols := make([]string, 0, len(bySymbol))
	for sym, recs := range bySymbol {
		if len(recs) >= 2 {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return errors.New("chart needs at least two notifications for one symbol")
	}
	sort.Strings(symbols)

	if err := ensureDir(path); err != nil {
		return err
	}

	series := make([]chart.Series, 0, len(symbols))
	for _, sym := range symbols {
		recs := bySymbol[sym]
		x := make([]time.Time, len(recs))
		y := make([]float64, len(recs))
		for i, rec := range recs {
			x[i] = rec.CreatedAt
			y[i] = rec.ObservedPrice
		}
		series = append(series, chart.TimeSeries{
			Name:    sym,
			XValues: x,
			YValues: y,
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  "Triggered alerts",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Observed price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := graph.Render(chart.PNG, file); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64) string {
	return decimal.NewFromFloat(v).String()
}
