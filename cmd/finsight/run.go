package main

import (
	"fmt"
	"os"
	"time"

	"finsight/internal/amqp"
	"finsight/internal/cli"
	"finsight/internal/services"

	"github.com/spf13/cobra"
)

var (
	flagOps     string
	flagRequest bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run and persist a full analysis for a user",
	RunE:  runRun,
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Queue an analysis for the worker",
	RunE:  runRequest,
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Append transactions from a CSV file to the ledger",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every user whose scheduled analysis is due",
	RunE:  runSweep,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, requestCmd} {
		c.Flags().StringVar(&flagOps, "ops", "", "Comma separated operations: anomalies,forecasts,recommendations,insight (default all)")
	}
	importCmd.Flags().BoolVar(&flagRequest, "request", false, "Queue an analysis for each imported user")

	rootCmd.AddCommand(runCmd, requestCmd, importCmd, sweepCmd)
}

func runRun(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	at, err := asOf()
	if err != nil {
		return err
	}
	ops, err := services.ParseOperations(cli.SplitList(flagOps))
	if err != nil {
		return err
	}
	report, err := app.NewAnalysisService(nil).RunForUser(appCtx, flagUser, at, ops...)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runRequest(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	day, err := asOfDay()
	if err != nil {
		return err
	}
	names := cli.SplitList(flagOps)
	if _, err := services.ParseOperations(names); err != nil {
		return err
	}
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	msg := amqp.NewAnalysisRequest(flagUser, day, names...)
	if err := client.PublishAnalysisRequest(appCtx, msg); err != nil {
		return err
	}
	return printJSON(msg)
}

func runImport(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	svc := services.NewLedgerService(app.Backend.Store, nil, nil)
	if flagRequest {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()
		svc = services.NewLedgerService(app.Backend.Store, nil, client)
	}

	res, err := svc.ImportCSV(appCtx, f)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runSweep(_ *cobra.Command, _ []string) error {
	at, err := asOf()
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}
	proc := services.NewDueUserProcessor(app.Backend.Store, app.NewAnalysisService(nil), services.DueProcessorConfig{
		PollInterval: app.Config.PollInterval,
		Concurrency:  app.Config.Concurrency,
	})
	res, err := proc.ProcessDueUsers(appCtx, at)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func connect() (*amqp.Client, error) {
	client, err := app.ConnectAMQP(appCtx)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("AMQP_URL is not set")
	}
	return client, nil
}
