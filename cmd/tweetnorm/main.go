package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tweetnorm/internal/config"
	"tweetnorm/internal/logging"
	"tweetnorm/internal/metrics"
	"tweetnorm/internal/theme"
)

const defaultConfigPath = "./tweetnorm.yaml"

type globals struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	noColor     bool
	cfg         config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "tweetnorm",
		Short:         "Load archived tweets into a normalized relational schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			return g.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			theme.PrintBanner(cmd.OutOrStdout(), g.noColor)
			return cmd.Help()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", defaultConfigPath, "config path")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "log format (json, text)")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve /metrics on this address")
	pf.BoolVar(&g.noColor, "no-color", false, "plain banner output")

	root.AddCommand(
		newInitCmd(g),
		newMigrateCmd(g),
		newLoadCmd(g),
		newViewsCmd(g),
	)
	return root
}

// setup loads .env and the config file, then starts logging and metrics.
// A missing config file is fine unless --config was given explicitly.
func (g *globals) setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "load .env")
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if cmd.Flags().Changed("config") || !os.IsNotExist(errors.Cause(err)) {
			return err
		}
		cfg = config.Default()
		cfg.ResolveEnv()
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if g.metricsAddr != "" {
		cfg.Metrics.Addr = g.metricsAddr
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr()); err != nil {
		return err
	}
	metrics.StartServer(cfg.Metrics.Addr)
	g.cfg = cfg
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newInitCmd(g *globals) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			abs, _ := filepath.Abs(path)
			theme.PrintBanner(cmd.OutOrStdout(), g.noColor)
			fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", defaultConfigPath, "path to write config")
	return cmd
}
