package cmd

import (
	"context"
	"sort"
	"strings"
	"time"

	coreconfig "github.com/AzielCF/az-wacrm/core/config"
	"github.com/AzielCF/az-wacrm/infrastructure/kvstore"
	"github.com/AzielCF/az-wacrm/infrastructure/session"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or wipe the persisted WhatsApp credentials",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the pairing metadata and a count of stored keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, closeStore := openAuthState(cmd)
		defer closeStore()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		meta, err := auth.Meta(ctx)
		if err != nil {
			return err
		}
		keys, err := auth.List(ctx)
		if err != nil {
			return err
		}

		cmd.Printf("backend: %s\nprefix:  %s\n", auth.Backend(), auth.Prefix())
		if len(meta) == 0 {
			cmd.Println("not paired")
		}
		fields := make([]string, 0, len(meta))
		for k := range meta {
			fields = append(fields, k)
		}
		sort.Strings(fields)
		for _, k := range fields {
			cmd.Printf("%-10s %s\n", k+":", meta[k])
		}

		categories := map[string]int{}
		for _, k := range keys {
			category, _, _ := strings.Cut(k, "-")
			categories[category]++
		}
		names := make([]string, 0, len(categories))
		for name := range categories {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cmd.Printf("  %-24s %d\n", name, categories[name])
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored credential; the next connect asks for a new QR scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		auth, closeStore := openAuthState(cmd)
		defer closeStore()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		n, err := auth.Clear(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("removed %d keys under %s\n", n, auth.Prefix())
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
	rootCmd.AddCommand(sessionCmd)
}

// openAuthState only needs the KV store, not the database.
func openAuthState(cmd *cobra.Command) (*session.AuthState, func()) {
	cfg := coreconfig.Global
	store, degraded := kvstore.Open(cmd.Context(), cfg.KV)
	if degraded {
		cmd.PrintErrln("warning: no persistent KV backend reachable, showing an empty in-memory store")
	}
	return authStateFor(store, cfg), func() { _ = store.Close() }
}
