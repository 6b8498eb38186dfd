package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"magicbag/internal/caching"
	"magicbag/internal/config"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create missing database tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll and print its report; nothing is sent to Discord",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.pollService(nil).PollOnce(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage watched locations",
}

var locationsAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Geocode an address and watch it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		loc, err := a.locations.Watch(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", loc.ID, loc)
		return nil
	},
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched locations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		locations, err := a.locations.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, loc := range locations {
			fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", loc.ID, loc)
		}
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect stored items",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.store.Items.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, item := range items {
			pickup := "-"
			if item.PickupInterval != nil {
				pickup = item.PickupInterval.String()
			}
			fmt.Fprintf(out, "%s\t%s\t%d\t%s\t%s\t%s\n", item.ID, item.Title(), item.Amount, item.Price, pickup, item.Store.Name)
		}
		return nil
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Log in to the marketplace by email and print the credentials",
	Long: "Sends a login email to TGTG_EMAIL and waits until the link is followed. " +
		"The printed variables can be added to .env; they are also stored in the cache.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		var cache caching.CacheService
		if cfg.RedisAddr != "" {
			cache = newRedisCache(cfg)
		}
		cfg.Credentials = config.MarketplaceCredentials{}
		client := newMarketplaceClient(cfg, cache)

		fmt.Fprintf(os.Stderr, "check the inbox of %s and follow the login link\n", cfg.MarketplaceEmail)
		creds, err := client.Authenticate(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "TGTG_ACCESS_TOKEN=%s\n", creds.AccessToken)
		fmt.Fprintf(out, "TGTG_REFRESH_TOKEN=%s\n", creds.RefreshToken)
		fmt.Fprintf(out, "TGTG_USER_ID=%s\n", creds.UserID)
		if creds.Cookie != "" {
			fmt.Fprintf(out, "TGTG_COOKIE=%s\n", creds.Cookie)
		}
		return nil
	},
}

func init() {
	locationsCmd.AddCommand(locationsAddCmd, locationsListCmd)
	itemsCmd.AddCommand(itemsListCmd)
	rootCmd.AddCommand(initDBCmd, pollCmd, locationsCmd, itemsCmd, authCmd)
}
