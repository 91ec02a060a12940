package main

import (
	"fmt"

	"finsight/internal/analytics"
	"finsight/internal/core"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	flagCategory  string
	flagWindow    int
	flagHorizon   int
	flagThreshold float64
	flagBuffer    float64
	flagAll       bool
	flagSave      bool
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "List expenses that are unusually large for their category",
	RunE:  runAnomalies,
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Project spend over the coming days",
	RunE:  runForecast,
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Recommend a budget from the spend forecast",
	RunE:  runRecommend,
}

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Month-to-date summary compared with the previous month",
	RunE:  runInsight,
}

func init() {
	anomaliesCmd.Flags().IntVar(&flagWindow, "window", 0, "Trailing window in days (default from config)")
	anomaliesCmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "Z-score threshold (default from config)")
	anomaliesCmd.Flags().BoolVar(&flagSave, "save", false, "Persist findings")

	for _, c := range []*cobra.Command{forecastCmd, recommendCmd} {
		c.Flags().StringVarP(&flagCategory, "category", "c", "", "Category to analyse")
		c.Flags().BoolVar(&flagAll, "all", false, "Analyse every category")
		c.Flags().IntVar(&flagWindow, "window", 0, "History window in days (default from config)")
		c.Flags().IntVar(&flagHorizon, "horizon", 0, "Forecast horizon in days (default from config)")
		c.Flags().BoolVar(&flagSave, "save", false, "Persist results")
		c.MarkFlagsMutuallyExclusive("category", "all")
	}
	recommendCmd.Flags().Float64Var(&flagBuffer, "buffer", 0, "Headroom fraction added to the forecast (default from config)")

	rootCmd.AddCommand(anomaliesCmd, forecastCmd, recommendCmd, insightCmd)
}

func runAnomalies(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	at, err := asOf()
	if err != nil {
		return err
	}
	findings, err := app.Engine.DetectAnomalies(appCtx, analytics.AnomalyRequest{
		UserID:     flagUser,
		WindowDays: flagWindow,
		ZThreshold: flagThreshold,
		AsOf:       at,
	})
	if err != nil {
		return err
	}
	if flagSave && len(findings) > 0 {
		if err := app.Backend.Store.SaveFindings(appCtx, findings); err != nil {
			return err
		}
	}
	if findings == nil {
		findings = []core.AnomalyFinding{}
	}
	return printJSON(findings)
}

func runForecast(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	at, err := asOf()
	if err != nil {
		return err
	}
	req := analytics.ForecastRequest{
		UserID:      flagUser,
		Category:    flagCategory,
		WindowDays:  flagWindow,
		HorizonDays: flagHorizon,
		AsOf:        at,
	}

	if !flagAll {
		if flagCategory == "" {
			return fmt.Errorf("one of --category or --all is required")
		}
		f, err := app.Engine.ForecastSpend(appCtx, req)
		if err != nil {
			return err
		}
		if flagSave {
			if err := app.Backend.Store.SaveForecasts(appCtx, []core.SpendForecast{f}); err != nil {
				return err
			}
		}
		return printJSON(f)
	}

	forecasts, total, err := app.Engine.ForecastAll(appCtx, req)
	if err != nil {
		return err
	}
	if flagSave && len(forecasts) > 0 {
		if err := app.Backend.Store.SaveForecasts(appCtx, forecasts); err != nil {
			return err
		}
	}
	if forecasts == nil {
		forecasts = []core.SpendForecast{}
	}
	return printJSON(struct {
		Forecasts []core.SpendForecast `json:"forecasts"`
		Total     decimal.Decimal      `json:"total"`
	}{forecasts, total})
}

func runRecommend(cmd *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	at, err := asOf()
	if err != nil {
		return err
	}
	req := analytics.RecommendRequest{
		UserID:      flagUser,
		Category:    flagCategory,
		WindowDays:  flagWindow,
		HorizonDays: flagHorizon,
		AsOf:        at,
	}
	if cmd.Flags().Changed("buffer") {
		req.Buffer = analytics.Buffer(flagBuffer)
	}

	var recs []core.BudgetRecommendation
	if flagAll {
		recs, err = app.Engine.RecommendAll(appCtx, req)
	} else {
		if flagCategory == "" {
			return fmt.Errorf("one of --category or --all is required")
		}
		var rec core.BudgetRecommendation
		rec, err = app.Engine.RecommendBudget(appCtx, req)
		recs = []core.BudgetRecommendation{rec}
	}
	if err != nil {
		return err
	}
	if flagSave && len(recs) > 0 {
		if err := app.Backend.Store.SaveRecommendations(appCtx, recs); err != nil {
			return err
		}
	}
	if !flagAll {
		return printJSON(recs[0])
	}
	if recs == nil {
		recs = []core.BudgetRecommendation{}
	}
	return printJSON(recs)
}

func runInsight(_ *cobra.Command, _ []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	at, err := asOf()
	if err != nil {
		return err
	}
	in, err := app.Engine.ComputeDashboardInsight(appCtx, flagUser, at)
	if err != nil {
		return err
	}
	return printJSON(in)
}
