package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/audioscribe/config"
	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/observability"
)

var (
	metricName  string
	metricSince time.Duration
	metricLimit int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarise recorded service metrics",
	Long:  `Reads the observability database named by --config and prints count, mean and max per metric.`,
	Args:  cobra.NoArgs,
	RunE:  runMetrics,
}

func init() {
	metricsCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	metricsCmd.Flags().StringVar(&metricName, "name", "", "only this metric (default: all)")
	metricsCmd.Flags().DurationVar(&metricSince, "since", 24*time.Hour, "look-back window")
	metricsCmd.Flags().IntVar(&metricLimit, "limit", 10000, "maximum datapoints read")
	rootCmd.AddCommand(metricsCmd)
}

type metricSummary struct {
	name  string
	unit  string
	count int
	sum   float64
	max   float64
}

func runMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := dbopen.Open(cfg.ObsDBPath, dbopen.WithSchema(observability.Schema))
	if err != nil {
		return fmt.Errorf("open observability db: %w", err)
	}
	defer db.Close()

	mm := observability.NewMetricsManager(db, 1, time.Hour)
	defer mm.Close()

	since := time.Now().Add(-metricSince)
	points, err := mm.Query(cmd.Context(), metricName, &since, metricLimit)
	if err != nil {
		return err
	}

	var order []string
	byName := map[string]*metricSummary{}
	for _, p := range points {
		s, ok := byName[p.Name]
		if !ok {
			s = &metricSummary{name: p.Name, unit: p.Unit, max: p.Value}
			byName[p.Name] = s
			order = append(order, p.Name)
		}
		s.count++
		s.sum += p.Value
		s.max = max(s.max, p.Value)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tUNIT\tCOUNT\tMEAN\tMAX")
	for _, name := range order {
		s := byName[name]
		fmt.Fprintf(w, "%s\t%s\t%d\t%.1f\t%.1f\n", s.name, s.unit, s.count, s.sum/float64(s.count), s.max)
	}
	return w.Flush()
}
