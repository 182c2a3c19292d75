// Package main provides the analytics CLI.
//
// Usage:
//
//	analytics-cli site-create --name "Shop" --domain shop.example.com
//	analytics-cli status --addr http://localhost:8080
//	analytics-cli get-event 0b4c...
//	analytics-cli retention-sweep --config config.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/analytics/internal/app"
	"example.com/analytics/internal/client"
	"example.com/analytics/internal/config"
	"example.com/analytics/internal/privacy"
	"example.com/analytics/internal/retention"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type apiFlags struct {
	addr   string
	apiKey string
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "analytics-cli",
		Short:         "Manage the analytics service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	api := &apiFlags{}
	rootCmd.PersistentFlags().StringVar(&api.addr, "addr", client.DefaultEndpoint, "Base URL of the analytics API")
	rootCmd.PersistentFlags().StringVar(&api.apiKey, "api-key", os.Getenv("ANALYTICS_API_KEY"), "API key sent as X-API-Key")

	rootCmd.AddCommand(
		newSiteCreateCmd(),
		newStatusCmd(api),
		newGetEventCmd(api),
		newRetentionSweepCmd(),
		newNotAvailableCmd("report", "Generate a report"),
		newNotAvailableCmd("backup", "Back up stored events"),
	)
	return rootCmd
}

// newMeasurementID returns "G-" followed by ten upper-case hex digits.
func newMeasurementID() string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "G-" + hex[:10]
}

func newSiteCreateCmd() *cobra.Command {
	var name, domain string
	cmd := &cobra.Command{
		Use:   "site-create",
		Short: "Create a site and print its measurement id",
		RunE: func(cmd *cobra.Command, args []string) error {
			mid := newMeasurementID()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Site created")
			fmt.Fprintf(out, "  Name:           %s\n", name)
			fmt.Fprintf(out, "  Domain:         %s\n", domain)
			fmt.Fprintf(out, "  Measurement ID: %s\n", mid)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Site name (required)")
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "Site domain (required)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("domain")
	return cmd
}

func (a *apiFlags) client() *client.Client {
	return client.New(client.WithEndpoint(a.addr), client.WithAPIKey(a.apiKey))
}

func newStatusCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server readiness and collector metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c := api.client()

			status := "ready"
			if err := c.Ready(ctx); err != nil {
				var apiErr *client.APIError
				if !errors.As(err, &apiErr) {
					return fmt.Errorf("server unreachable: %w", err)
				}
				status = "not ready"
			}

			s, err := c.Metrics(ctx)
			if err != nil {
				return fmt.Errorf("metrics: %w", err)
			}

			fmt.Fprintf(out, "Status:            %s\n", status)
			fmt.Fprintf(out, "Events collected:  %d\n", s.EventsCollected)
			fmt.Fprintf(out, "Batches collected: %d\n", s.BatchesCollected)
			fmt.Fprintf(out, "Errors:            %d\n", s.Errors)
			fmt.Fprintf(out, "Suppressed (DNT):  %d\n", s.EventsSuppressed)
			fmt.Fprintf(out, "Abandoned:         %d\n", s.EventsAbandoned)
			return nil
		},
	}
}

func newGetEventCmd(api *apiFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get-event <event-id>",
		Short: "Print one stored event as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id: %w", err)
			}
			env, err := api.client().GetEvent(cmd.Context(), id)
			if err != nil {
				return err
			}
			if env == nil {
				return fmt.Errorf("event %s not found", id)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(env)
		},
	}
}

func newRetentionSweepCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "retention-sweep",
		Short: "Delete stored events older than privacy.data_retention_days",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			log := zap.NewNop()

			store, closeStore, err := app.OpenStore(ctx, cfg.Storage, log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore(context.Background()) }()

			filter, err := privacy.New(cfg.Privacy)
			if err != nil {
				return err
			}
			s, err := retention.New(store, filter, time.Hour, log)
			if err != nil {
				return err
			}
			n, err := s.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events older than %d days\n", n, cfg.Privacy.DataRetentionDays)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (defaults to $CONFIG_FILE)")
	return cmd
}

func newNotAvailableCmd(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short + " (not yet available)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not yet available\n", use)
			return nil
		},
	}
}
