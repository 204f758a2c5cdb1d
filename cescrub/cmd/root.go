// Package cmd provides the command-line interface of cescrub.
package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/copyengine/config"
)

var (
	configPath  string
	logLevel    string
	secure      bool
	numDevices  int
	numCEs      int
	fbSizeMB    uint64
	fragment    bool
	secret      string
	monitorPort int
	openMonitor bool
	traceDB     string
)

var cfg config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cescrub",
	Short: "cescrub runs memsets, copies and scrubs on simulated copy engines.",
	Long: `cescrub builds simulated GPUs and drives their copy engines, or ` +
		`SEC2 in confidential computing mode, through the channel ` +
		`submission path. Every command verifies the memory it touched.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if numDevices < 1 {
			return fmt.Errorf("at least one device is needed, got %d", numDevices)
		}

		var err error

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("secure") {
			cfg.Secure = secure
		}

		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}

		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}

		logrus.SetLevel(level)

		return cfg.Validate()
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "", "YAML configuration file")
	f.StringVar(&logLevel, "log-level", "info", "logrus level")
	f.BoolVar(&secure, "secure", false,
		"confidential computing mode, scrubbing goes through SEC2")
	f.IntVar(&numDevices, "devices", 1, "number of devices driven in parallel")
	f.IntVar(&numCEs, "ces", 4, "copy engines per device")
	f.Uint64Var(&fbSizeMB, "fb-size", 64, "video memory per device in MB")
	f.BoolVar(&fragment, "fragment", true,
		"never hand out adjacent pages for non-contiguous allocations")
	f.StringVar(&secret, "secret", "cescrub",
		"device secret of confidential computing mode")
	f.IntVar(&monitorPort, "monitor-port", -1,
		"serve the monitoring API on this port, 0 picks one, -1 disables")
	f.BoolVar(&openMonitor, "open-monitor", false,
		"open the monitoring API in a browser")
	f.StringVar(&traceDB, "trace-db", "",
		"record the submitted requests into this SQLite file")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
