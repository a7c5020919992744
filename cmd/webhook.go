package cmd

import (
	"context"
	"errors"
	"time"

	coreconfig "github.com/AzielCF/az-wacrm/core/config"
	"github.com/AzielCF/az-wacrm/infrastructure/gateway"
	"github.com/spf13/cobra"
)

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage the gateway webhook registration",
}

var webhookSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Point the gateway instance at this service's webhook url",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := coreconfig.Global
		if cfg.Gateway.SelfHosted() {
			return errors.New("webhook setup only applies to the hosted gateway mode")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		if err := gateway.NewFromConfig(*cfg).SetupWebhook(ctx, cfg.Gateway.Instance); err != nil {
			return err
		}
		cmd.Printf("webhook for %s now delivers to %s\n", cfg.Gateway.Instance, cfg.Webhook.TargetURL())
		return nil
	},
}

func init() {
	webhookCmd.AddCommand(webhookSetupCmd)
	rootCmd.AddCommand(webhookCmd)
}
