package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	coreconfig "github.com/AzielCF/az-wacrm/core/config"
	"github.com/AzielCF/az-wacrm/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wacrm",
	Short: "WhatsApp connection and message ingestion for the CRM",
	Long: `Keeps a WhatsApp connection alive (through a hosted gateway or a local
multi-device socket) and turns its events into CRM leads and message history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()
}

func initFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	flags.BoolP("debug", "d", false, "displaying debug log with --debug <true/false> | example: --debug=true")
	flags.StringSliceP("basic-auth", "b", nil, "basic auth credential | -b=yourUsername:yourPassword")
	flags.String("gateway-url", "", `hosted gateway base url --gateway-url <string> | example: --gateway-url="https://gateway.example.com"`)
	flags.String("instance", "", `instance name on the gateway --instance <string> | example: --instance="sales"`)

	_ = viper.BindPFlag("flag_port", flags.Lookup("port"))
	_ = viper.BindPFlag("flag_debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("flag_basic_auth", flags.Lookup("basic-auth"))
	_ = viper.BindPFlag("flag_gateway_url", flags.Lookup("gateway-url"))
	_ = viper.BindPFlag("flag_instance", flags.Lookup("instance"))
}

// initConfig builds coreconfig.Global from the environment and lets explicit
// flags win over it.
func initConfig() error {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		return err
	}

	if v := viper.GetString("flag_port"); v != "" {
		cfg.App.Port = v
	}
	if viper.GetBool("flag_debug") {
		cfg.App.Debug = true
	}
	if v := viper.GetStringSlice("flag_basic_auth"); len(v) > 0 {
		cfg.App.BasicAuth = v
	}
	if v := viper.GetString("flag_gateway_url"); v != "" {
		cfg.Gateway.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v := viper.GetString("flag_instance"); v != "" {
		cfg.Gateway.Instance = v
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	for _, warning := range cfg.Warnings() {
		logrus.Warnf("[CONFIG] %s", warning)
	}
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
