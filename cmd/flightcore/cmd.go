package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flightcore/internal/config"
	"flightcore/internal/system"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flightcore",
		Short:         "attitude and navigation estimator",
		Long:          "flightcore fuses IMU, barometer, magnetometer and GNSS samples into attitude, velocity and position.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCheckConfigCmd())
	return root
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		duration   time.Duration
		debug      bool
		simulate   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the estimator until interrupted",
		Long: `run starts the master tick and every configured task.
Without --config the built-in defaults are used. --sim forces the simulated
sensor suite on, --duration stops the run after the given time.
`,
		Example: `  flightcore run --config=/etc/flightcore.yaml
  flightcore run --sim --duration=30s --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if simulate {
				cfg.Sim.Enable = true
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			if debug {
				level = log.DebugLevel
			}
			log.SetLevel(level)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			sys, err := system.New(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := sys.Close(); err != nil {
					log.Warnf("shutdown: %v", err)
				}
			}()

			log.Infof("flightcore starting")
			err = sys.Run(ctx)
			log.Infof("flightcore stopping")
			return err
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().BoolVar(&debug, "debug", false, "toggle debug logging")
	cmd.Flags().BoolVar(&simulate, "sim", false, "enable the simulated sensors")
	return cmd
}

func newCheckConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "check-config",
		Short:   "validate a config file and print the effective rates",
		Example: `  flightcore check-config --config=/etc/flightcore.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			r := cfg.Rates
			fmt.Fprintf(cmd.OutOrStdout(), "ok: master=%dHz sample=%dHz gnss=%dHz baro=%dHz magnetometer=%dHz telemetry=%dHz led=%dHz\n",
				r.Master, r.Sample, r.GNSS, r.Baro, r.Magnetometer, r.Telemetry, r.LED)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config")
	return cmd
}
