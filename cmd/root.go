package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/errmon/sentry-mcp/internal/cache"
	"github.com/errmon/sentry-mcp/internal/logger"
	"github.com/errmon/sentry-mcp/internal/output"
	"github.com/errmon/sentry-mcp/internal/sentry"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "sentry-mcp",
	Short: "Query Sentry error reports from the CLI or over MCP",
	Long: `sentry-mcp derives error reports from a Sentry project: project
statistics, error-trend rankings, and user/session impact analysis.
The same reports are available as CLI commands and as MCP tools for
AI assistants (see 'sentry-mcp mcp').`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/sentry-mcp/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "sentry-mcp")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SENTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "sentry-mcp")

	viper.SetDefault("auth_token", "")
	viper.SetDefault("org", "")
	viper.SetDefault("project", "")
	viper.SetDefault("base_url", sentry.DefaultBaseURL)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.path", filepath.Join(defaultConfigDir, "cache.db"))
	viper.SetDefault("cache.ttl_minutes", 15)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	logger.Init(logger.Options{
		Level:  level,
		Format: viper.GetString("log.format"),
	})

	ui = output.New()
	ui.Verbose = verbose
}

// requireCredentials verifies the Sentry connection settings are present.
func requireCredentials() error {
	var missing []string
	for _, key := range []string{"auth_token", "org", "project"} {
		if viper.GetString(key) == "" {
			missing = append(missing, "SENTRY_"+strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s (set env vars or run 'sentry-mcp config init')",
			strings.Join(missing, ", "))
	}
	return nil
}

// getFetcher builds the Sentry fetcher, wrapped in the snapshot cache
// when enabled.
func getFetcher() (sentry.Fetcher, error) {
	if err := requireCredentials(); err != nil {
		return nil, err
	}

	client := sentry.NewClient(
		viper.GetString("base_url"),
		viper.GetString("auth_token"),
		viper.GetString("org"),
	)

	if !viper.GetBool("cache.enabled") {
		return client, nil
	}

	ttl := time.Duration(viper.GetInt("cache.ttl_minutes")) * time.Minute
	store, err := cache.NewStore(viper.GetString("cache.path"), ttl, client)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := store.Migrate(rootCmd.Context()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate cache: %w", err)
	}
	return store, nil
}

// defaultProject returns the configured project slug.
func defaultProject() string {
	return viper.GetString("project")
}
