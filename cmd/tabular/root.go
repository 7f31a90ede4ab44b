package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tabulardb/tabular"
)

var rootCmd = &cobra.Command{
	Use:           "tabular",
	Short:         "Ingest spreadsheets into a queryable dataset store",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default searches ./tabular.yaml)")
	rootCmd.PersistentFlags().String("db", "tabular.db", "path to the SQLite database")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("db.path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("tabular")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("TABULAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("cache.query_ttl", 2*time.Minute)
	viper.SetDefault("cache.schema_ttl", 10*time.Minute)
	viper.SetDefault("cache.sweep_interval", 5*time.Minute)

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("loaded config file", "path", viper.ConfigFileUsed())
	}

	initLogger(viper.GetString("log.level"))
}

// initLogger installs the default slog logger at the configured level.
func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

// openService wires a store, cache, and service from configuration.
func openService() (*tabular.Service, *tabular.Store, error) {
	store, err := tabular.OpenStore(viper.GetString("db.path"))
	if err != nil {
		return nil, nil, err
	}
	cache := tabular.NewCache(tabular.CacheConfig{
		QueryTTL:      viper.GetDuration("cache.query_ttl"),
		SchemaTTL:     viper.GetDuration("cache.schema_ttl"),
		SweepInterval: viper.GetDuration("cache.sweep_interval"),
	})
	return tabular.NewService(store, cache), store, nil
}
