package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"exportestimator/pkg/config"
	"exportestimator/pkg/logger"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "estimatectl",
	Short: "Operate the export estimator",
	Long: `estimatectl refreshes the cached export statistics, estimates single
exports and replays the size estimator against finished exports.

It reads the server's configuration file and talks to the same MySQL, Redis
and cache backend.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		config.GlobalConfig = cfg
		if err := logger.Init(); err != nil {
			return err
		}
		for _, w := range config.Warnings {
			logger.WarnCtx(cmd.Context(), "config: %s", w)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "configuration file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(estimateCmd())
	rootCmd.AddCommand(evaluateCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
