package cmd

import (
	"os"
	"time"

	"github.com/AzielCF/az-compare/core/config"
	"github.com/AzielCF/az-compare/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-compare",
	Short: "Compare vendor prices across two delivery platforms",
	Long: `az-compare watches a saved vendor listing page, decorates every vendor that
exists on both platforms and serves price comparisons and fuzzy search over http.`,
}

func init() {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	if _, err := config.LoadConfig(); err != nil {
		logrus.Fatalf("[CONFIG] Failed to load configuration: %v", err)
	}

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig, initApp)
}

func initFlags() {
	flags := rootCmd.PersistentFlags()

	flags.StringP("port", "p", config.Global.App.Port,
		"change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", config.Global.App.Debug,
		"hide or displaying log with --debug <true/false> | example: --debug=true")
	flags.String("provider", config.Global.Provider.Mode,
		`where vendor data comes from --provider <http|local> | example: --provider=local`)
	flags.String("provider-url", config.Global.Provider.BaseURL,
		`base url of the upstream data api --provider-url <string> | example: --provider-url="https://api.example.com"`)
	flags.Duration("provider-timeout", config.Global.Provider.Timeout,
		`deadline of one provider call --provider-timeout <duration> | example: --provider-timeout=5s`)
	flags.String("db-driver", config.Global.Database.Driver,
		`database driver for the local provider --db-driver <sqlite|postgres>`)
	flags.String("db-name", config.Global.Database.Name,
		`sqlite file or postgres database name --db-name <string> | example: --db-name="storages/compare.db"`)
	flags.Bool("valkey", config.Global.Valkey.Enabled,
		`publish events on valkey --valkey <true/false> | example: --valkey=true`)

	// Flags and their environment variables share one key.
	for key, flag := range map[string]string{
		"app_port":          "port",
		"app_debug":         "debug",
		"provider_mode":     "provider",
		"provider_base_url": "provider-url",
		"provider_timeout":  "provider-timeout",
		"db_driver":         "db-driver",
		"db_name":           "db-name",
		"valkey_enabled":    "valkey",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logrus.Fatalf("[CONFIG] Failed to bind flag %s: %v", flag, err)
		}
	}
	viper.AutomaticEnv()
}

// initEnvConfig copies the flag or environment values into the global config.
func initEnvConfig() {
	cfg := config.Global
	cfg.App.Port = viper.GetString("app_port")
	cfg.App.Debug = viper.GetBool("app_debug")
	cfg.Provider.Mode = viper.GetString("provider_mode")
	cfg.Provider.BaseURL = viper.GetString("provider_base_url")
	if d := viper.GetDuration("provider_timeout"); d > 0 {
		cfg.Provider.Timeout = d
	}
	cfg.Database.Driver = viper.GetString("db_driver")
	cfg.Database.Name = viper.GetString("db_name")
	cfg.Valkey.Enabled = viper.GetBool("valkey_enabled")
}

func initApp() {
	if config.Global.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.CreateFolder(config.Global.Paths.Storages); err != nil {
		logrus.Errorln(err)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
