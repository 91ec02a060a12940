package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"finsight/internal/cli"
	"finsight/internal/core"
	"finsight/internal/log"

	"github.com/spf13/cobra"
)

var (
	flagUser string
	flagAsOf string

	app    *cli.App
	appCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:           "finsight",
	Short:         "Spending analytics over a transaction ledger",
	Long:          "Detect unusual expenses, forecast spend, recommend budgets and summarize the month.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		a, ctx, err := cli.Bootstrap(cmd.Context(), log.ComponentCLI)
		if err != nil {
			return err
		}
		app, appCtx = a, ctx
		return nil
	},
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, cancel := cli.ShutdownContext(context.Background())
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "User to analyse")
	rootCmd.PersistentFlags().StringVar(&flagAsOf, "as-of", "", "Reference day (YYYY-MM-DD), default today")
}

func requireUser() error {
	if flagUser == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

// asOf parses --as-of; the zero time means today.
func asOf() (time.Time, error) {
	if flagAsOf == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", flagAsOf)
	if err != nil {
		return time.Time{}, fmt.Errorf("--as-of %q: %w", flagAsOf, core.ErrInvalidDate)
	}
	return t, nil
}

func asOfDay() (core.Date, error) {
	t, err := asOf()
	if err != nil || t.IsZero() {
		return core.Date{}, err
	}
	return core.DateOf(t), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
