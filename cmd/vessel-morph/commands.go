package main

import (
	"fmt"
	"os"

	"vessel-morph/internal/config"
	"vessel-morph/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "vessel-morph",
		Short: "Measure the cell layers of blood vessel cross-sections",
		Long: `vessel-morph segments vessel cross-sections in microscopy images and
measures the thickness, lengths and areas of their green and red cell layers.
Without a subcommand the desktop application is started.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runGUI,
	}
	guiCmd = &cobra.Command{
		Use:   "gui",
		Short: "Start the desktop application",
		Args:  cobra.NoArgs,
		RunE:  runGUI,
	}
	measureCmd = &cobra.Command{
		Use:   "measure",
		Short: "Measure vessels without a user interface",
		Long: `Loads each image, segments the vessel at the given prompt (the image
centre by default), masks both channels and prints the cell layer report.`,
		Args: cobra.NoArgs,
		RunE: runMeasure,
	}

	measureFlags struct {
		images         []string
		box            string
		point          string
		angleStep      float64
		greenThreshold int
		redThreshold   int
		save           string
		workers        int
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration")

	rootCmd.AddCommand(guiCmd)
	rootCmd.AddCommand(measureCmd)

	f := measureCmd.Flags()
	f.StringArrayVarP(&measureFlags.images, "image", "i", nil, "Image to measure (repeatable)")
	f.StringVar(&measureFlags.box, "box", "", "Prompt box x1,y1,x2,y2 in image pixels")
	f.StringVar(&measureFlags.point, "point", "", "Prompt point x,y in image pixels")
	f.Float64Var(&measureFlags.angleStep, "angle-step", 0, "Angle between contour samples in degrees (default from config)")
	f.IntVar(&measureFlags.greenThreshold, "green-threshold", -1, "Green channel threshold (default from config)")
	f.IntVar(&measureFlags.redThreshold, "red-threshold", -1, "Red channel threshold (default from config)")
	f.StringVar(&measureFlags.save, "save", "", "Save each result to this directory or .zip archive")
	f.IntVar(&measureFlags.workers, "workers", 0, "Images measured in parallel (default: number of CPUs)")
	_ = measureCmd.MarkFlagRequired("image")
	measureCmd.MarkFlagsMutuallyExclusive("box", "point")
}

// loadConfig reads the configuration and builds the logger it asks for.
func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	level := logger.ResolveLevel(cfg.Log.Level)
	if cfg.Log.Console {
		return cfg, logger.NewConsoleLogger(level), nil
	}
	return cfg, logger.NewZerolog(os.Stderr, level), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
