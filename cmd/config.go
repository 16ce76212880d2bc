package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = configDir

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "sentry-mcp"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage sentry-mcp configuration.

Running bare 'sentry-mcp config' is the same as 'sentry-mcp config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# sentry-mcp configuration
# See: sentry-mcp config show (for effective values and sources)

# Sentry API token with project:read scope (env: SENTRY_AUTH_TOKEN)
# auth_token: ""

# Organization and default project slugs
org: "{{ .Org }}"
project: "{{ .Project }}"

# Sentry API root, change for self-hosted instances
# base_url: {{ .BaseURL }}

# Logging (written to stderr, never stdout)
log:
  # Level: debug, info, warn, error (default: "info")
  level: "{{ .LogLevel }}"

  # Format: json or console (default: "json")
  format: "{{ .LogFormat }}"

# Local snapshot cache for fetched issue lists
cache:
  # Enable caching (default: false)
  enabled: {{ .CacheEnabled }}

  # SQLite database path (default: ~/.config/sentry-mcp/cache.db)
  # path: {{ .CachePath }}

  # Snapshot freshness in minutes (default: 15)
  ttl_minutes: {{ .CacheTTLMinutes }}

# LLM settings for 'sentry-mcp summarize'
anthropic:
  # API key (env: SENTRY_ANTHROPIC_API_KEY)
  # api_key: ""

  # Model for trend briefings
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	Org             string
	Project         string
	BaseURL         string
	LogLevel        string
	LogFormat       string
	CacheEnabled    bool
	CachePath       string
	CacheTTLMinutes int
	AnthropicModel  string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		Org:             viper.GetString("org"),
		Project:         viper.GetString("project"),
		BaseURL:         viper.GetString("base_url"),
		LogLevel:        viper.GetString("log.level"),
		LogFormat:       viper.GetString("log.format"),
		CacheEnabled:    viper.GetBool("cache.enabled"),
		CachePath:       viper.GetString("cache.path"),
		CacheTTLMinutes: viper.GetInt("cache.ttl_minutes"),
		AnthropicModel:  viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "auth_token", EnvVar: "SENTRY_AUTH_TOKEN", Secret: true},
	{Key: "org", EnvVar: "SENTRY_ORG"},
	{Key: "project", EnvVar: "SENTRY_PROJECT"},
	{Key: "base_url", EnvVar: "SENTRY_BASE_URL"},
	{Key: "log.level", EnvVar: "SENTRY_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "SENTRY_LOG_FORMAT"},
	{Key: "cache.enabled", EnvVar: "SENTRY_CACHE_ENABLED"},
	{Key: "cache.path", EnvVar: "SENTRY_CACHE_PATH"},
	{Key: "cache.ttl_minutes", EnvVar: "SENTRY_CACHE_TTL_MINUTES"},
	{Key: "anthropic.api_key", EnvVar: "SENTRY_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "SENTRY_ANTHROPIC_MODEL"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = redactValue(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// redactValue keeps a short prefix so tokens can be told apart.
func redactValue(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'sentry-mcp config init' first)", cfgPath)
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
