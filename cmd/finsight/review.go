package main

import (
	"time"

	"finsight/internal/core"
	"finsight/internal/ledger"

	"github.com/spf13/cobra"
)

var findingsCmd = &cobra.Command{
	Use:   "findings",
	Short: "List persisted anomaly findings",
	RunE:  runFindings,
}

var budgetsCmd = &cobra.Command{
	Use:   "budgets",
	Short: "List persisted budget recommendations",
	RunE:  runBudgets,
}

var investigateCmd = &cobra.Command{
	Use:   "investigate <finding-id>",
	Short: "Mark a finding as investigated",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvestigate,
}

var acceptCmd = &cobra.Command{
	Use:   "accept <category>",
	Short: "Accept the latest budget recommendation of a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccept,
}

var cadenceCmd = &cobra.Command{
	Use:       "cadence <daily|weekly|monthly>",
	Short:     "Set how often the worker analyses a user",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"daily", "weekly", "monthly"},
	RunE:      runCadence,
}

func init() {
	rootCmd.AddCommand(findingsCmd, budgetsCmd, investigateCmd, acceptCmd, cadenceCmd)
}

func runFindings(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	recs, err := app.Backend.Store.ListFindings(appCtx, flagUser)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []ledger.FindingRecord{}
	}
	return printJSON(recs)
}

func runBudgets(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	recs, err := app.Backend.Store.ListRecommendations(appCtx, flagUser)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []ledger.RecommendationRecord{}
	}
	return printJSON(recs)
}

func runInvestigate(_ *cobra.Command, args []string) error {
	return app.Backend.Store.MarkInvestigated(appCtx, args[0])
}

func runAccept(_ *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	return app.Backend.Store.AcceptRecommendation(appCtx, flagUser, args[0], time.Now())
}

func runCadence(_ *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	cadence, err := core.ParseCadence(args[0])
	if err != nil {
		return err
	}
	return app.Backend.Store.SetCadence(appCtx, flagUser, cadence)
}
