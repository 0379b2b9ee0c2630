package main

import (
	"fmt"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vessel-morph/internal/config"
	"vessel-morph/internal/services"

	"github.com/spf13/cobra"
)

func runMeasure(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	applyMeasureFlags(cfg)

	reqs, err := measureRequests(measureFlags.images, measureFlags.box, measureFlags.point, measureFlags.save)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := services.NewMeasurementService(services.NewImageService(log), services.MeasurementOptions{
		Predictor:     cfg.PredictorOptions(),
		PixelSize:     cfg.Image.PixelSize,
		SizeUnit:      cfg.Image.SizeUnit,
		MaxResolution: cfg.Image.MaxInternalResolution,
		Settings:      cfg.AnalysisSettings(),
		Workers:       measureFlags.workers,
	}, log)

	results := svc.MeasureAll(ctx, reqs)
	for _, st := range svc.Timings() {
		log.Debug("Measure", "stage timing", map[string]interface{}{
			"stage": st.Stage,
			"count": st.Count,
			"mean":  st.Mean.String(),
			"max":   st.Max.String(),
		})
	}
	return printResults(cmd.OutOrStdout(), results)
}

// Flags left at their defaults keep the configured values.
func applyMeasureFlags(cfg *config.Config) {
	if measureFlags.angleStep > 0 {
		cfg.Measurement.AngleStep = measureFlags.angleStep
	}
	if measureFlags.greenThreshold >= 0 {
		cfg.Masking.GreenThreshold = measureFlags.greenThreshold
	}
	if measureFlags.redThreshold >= 0 {
		cfg.Masking.RedThreshold = measureFlags.redThreshold
	}
}

func measureRequests(images []string, box, point, save string) ([]services.MeasurementRequest, error) {
	var prompt services.MeasurementRequest
	switch {
	case box != "":
		v, err := parseInts(box, 4)
		if err != nil {
			return nil, fmt.Errorf("invalid --box: %w", err)
		}
		r := image.Rect(v[0], v[1], v[2], v[3])
		prompt.Box = &r
	case point != "":
		v, err := parseInts(point, 2)
		if err != nil {
			return nil, fmt.Errorf("invalid --point: %w", err)
		}
		pt := image.Pt(v[0], v[1])
		prompt.Point = &pt
	}

	reqs := make([]services.MeasurementRequest, len(images))
	for i, path := range images {
		req := prompt
		req.ImagePath = path
		req.SaveTo = savePath(save, path, len(images))
		reqs[i] = req
	}
	return reqs, nil
}

// With several images each result goes to its own archive inside save.
func savePath(save, imagePath string, n int) string {
	if save == "" || n == 1 {
		return save
	}
	base := filepath.Base(imagePath)
	return filepath.Join(save, strings.TrimSuffix(base, filepath.Ext(base))+"_result.zip")
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated integers, got %q", n, s)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		out[i] = v
	}
	return out, nil
}

func printResults(w io.Writer, results []services.MeasurementResult) error {
	failed := 0
	for _, res := range results {
		fmt.Fprintf(w, "%s\n", res.ImagePath)
		if res.Err != nil {
			failed++
			fmt.Fprintf(w, "  error: %v\n\n", res.Err)
			continue
		}
		for i, rows := range res.Layers {
			fmt.Fprintf(w, "  Cell layer %d\n", i+1)
			for _, row := range rows {
				fmt.Fprintf(w, "    %-14s %s\n", row.Key, row.Value)
			}
		}
		fmt.Fprintf(w, "  %s\n\n", res.TabSeparated)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(results))
	}
	return nil
}
