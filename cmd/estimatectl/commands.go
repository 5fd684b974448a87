package main

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"exportestimator/internal/service"
	"exportestimator/pkg/aggregate"
	"exportestimator/pkg/geo"
	"exportestimator/pkg/stats"
)

func refreshCmd() *cobra.Command {
	var (
		all     bool
		enqueue bool
	)
	cmd := &cobra.Command{
		Use:   "refresh [grouping...]",
		Short: "Recompute cached statistics",
		Long: `Recompute the statistics of the named groupings (provider_name, provider_type),
or of every grouping with --all. With --queue the server's workers do the work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupings := args
			if all {
				groupings = aggregate.Groupings()
			}
			if len(groupings) == 0 {
				return fmt.Errorf("name a grouping or pass --all")
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx := cmd.Context()

			if enqueue {
				q, err := e.queue()
				if err != nil {
					return err
				}
				for _, g := range groupings {
					if !aggregate.IsGrouping(g) {
						return fmt.Errorf("%w: %s", service.ErrUnknownGrouping, g)
					}
					taskID, enqueued, err := q.EnqueueRefresh(ctx, g)
					if err != nil {
						return err
					}
					if enqueued {
						e.statistics.MarkQueued(ctx, g, taskID)
						fmt.Printf("%s: queued as %s\n", g, taskID)
					} else {
						fmt.Printf("%s: already queued as %s\n", g, taskID)
					}
				}
				return nil
			}

			for _, g := range groupings {
				start := time.Now()
				if err := e.statistics.Refresh(ctx, g); err != nil {
					return err
				}
				tree, err := e.statistics.GetStatistics(ctx, g, false)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s runs, %s export tasks in %s\n", g,
					humanize.Comma(int64(tree.RunCount)), humanize.Comma(int64(tree.ExportTaskCount)),
					time.Since(start).Round(time.Millisecond))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "refresh every grouping")
	cmd.Flags().BoolVar(&enqueue, "queue", false, "queue the refresh for the server instead of running it here")
	return cmd
}

func estimateCmd() *cobra.Command {
	var (
		bbox     string
		provider string
		grouping string
		kind     string
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the size or duration of one export",
		Example: `  estimatectl estimate --bbox 30.1,-1.9,30.2,-1.8 --provider osm
  estimatectl estimate --bbox 30.1,-1.9,30.2,-1.8 --provider imagery --type duration
  estimatectl estimate --bbox 30.1,-1.9,30.2,-1.8 --provider imagery --min-zoom 8 --max-zoom 14`,
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := parseBBox(bbox)
			if err != nil {
				return err
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.statistics.EstimateForProvider(cmd.Context(), service.EstimateRequest{
				BBox:     box,
				Provider: provider,
				Grouping: grouping,
				Type:     service.EstimateType(kind),
				MinZoom:  zoomFlag(cmd, "min-zoom"),
				MaxZoom:  zoomFlag(cmd, "max-zoom"),
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(res)
			}

			value := stats.FormatHMS(res.Value)
			if res.Type == service.EstimateSize {
				value = humanize.IBytes(uint64(math.Max(0, math.Round(res.Value))))
			}
			source := res.Method.Group
			if res.Method.Unknown() {
				source = "defaults"
			}
			fmt.Printf("%s (%s, %s): %s from %s statistics\n", res.Provider, res.Kind, res.Type, value, source)
			return nil
		},
	}
	cmd.Flags().StringVar(&bbox, "bbox", "", "west,south,east,north in degrees")
	cmd.Flags().StringVar(&provider, "provider", "", "data provider slug")
	cmd.Flags().StringVar(&grouping, "grouping", "", "statistics grouping (default from config)")
	cmd.Flags().StringVar(&kind, "type", string(service.EstimateSize), "size or duration")
	cmd.Flags().Int("min-zoom", 0, "lowest raster level to size (default provider's)")
	cmd.Flags().Int("max-zoom", 0, "highest raster level to size (default provider's)")
	_ = cmd.MarkFlagRequired("bbox")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func evaluateCmd() *cobra.Command {
	var (
		limit    int
		slugs    []string
		grouping string
		csvPath  string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Replay the size estimator against finished exports",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			opts := service.EvaluationOptions{Limit: limit, Slugs: slugs, Grouping: grouping}
			if csvPath != "" {
				f, err := os.Create(csvPath)
				if err != nil {
					return err
				}
				defer f.Close()
				opts.CSV = f
			}

			evaluator := service.NewEvaluationService(e.statistics, e.records, e.repo.JobGeometry)
			report, err := evaluator.Evaluate(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(report)
			}

			fmt.Printf("tests:                 %s\n", humanize.Comma(int64(report.TotalTests)))
			fmt.Printf("mean squared error:    %.4f MB²\n", report.MeanSquaredError)
			fmt.Printf("mean absolute error:   %.4f MB\n", report.MeanAbsoluteError)
			fmt.Printf("mean percentage error: %.2f%%\n", report.MeanPercentageError)
			fmt.Printf("underestimated:        %.2f%%\n", report.PercentLessThan)
			fmt.Printf("time per estimate:     %.6fs\n", report.TimePerEstimate)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "evaluate at most this many records (0 for all)")
	cmd.Flags().StringSliceVar(&slugs, "slug", nil, "only evaluate these provider slugs")
	cmd.Flags().StringVar(&grouping, "grouping", "", "statistics grouping (default from config)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write one row per evaluated task to this file")
	return cmd
}

// zoomFlag returns the value of an int flag, or nil when it was not set
func zoomFlag(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return nil
	}
	return &v
}

// parseBBox parses "west,south,east,north"
func parseBBox(s string) (geo.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BBox{}, fmt.Errorf("%w: want west,south,east,north, got %q", geo.ErrInvalidBBox, s)
	}
	var b geo.BBox
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BBox{}, fmt.Errorf("%w: %v", geo.ErrInvalidBBox, err)
		}
		b[i] = v
	}
	return b, b.Validate()
}
