// Command demeterctl is a thin CLI over the same core the HTTP API
// serves, for ad-hoc farm scans and trend lookups from an operator's
// shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/demeterfield/pipeline/internal/alerts"
	"github.com/demeterfield/pipeline/internal/analysis"
	"github.com/demeterfield/pipeline/internal/cache"
	"github.com/demeterfield/pipeline/internal/config"
	"github.com/demeterfield/pipeline/internal/httpapi"
	"github.com/demeterfield/pipeline/internal/logging"
	"github.com/demeterfield/pipeline/internal/notify"
	"github.com/demeterfield/pipeline/internal/orchestrator"
	"github.com/demeterfield/pipeline/internal/planner"
	"github.com/demeterfield/pipeline/internal/providers"
	"github.com/demeterfield/pipeline/internal/scheduler"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Must()
	log := logging.New("demeterctl")

	var mongoURI, mongoDB string
	root := &cobra.Command{
		Use:   "demeterctl",
		Short: "operate the field analysis pipeline from the command line",
	}
	root.PersistentFlags().StringVar(&mongoURI, "mongo-uri", cfg.Mongo.URI, "MongoDB connection URI")
	root.PersistentFlags().StringVar(&mongoDB, "mongo-db", cfg.Mongo.Database, "MongoDB database name")

	newPersistence := func(ctx context.Context) (store.PersistenceStore, error) {
		return store.NewMongoStore(ctx, mongoURI, mongoDB)
	}

	type stack struct {
		engine   *analysis.Engine
		alertEng *alerts.Engine
		plan     *planner.Planner
		runner   *orchestrator.Orchestrator
	}
	newStack := func(persistence store.PersistenceStore) stack {
		memo := cache.NewMemoryCache()
		imagery := providers.NewHTTPImageryClient(cfg.Imagery.BaseURL, cfg.Imagery.Retry, cfg.Imagery.BreakerThreshold, log)
		weather := providers.NewCachingWeatherProvider(
			providers.NewHTTPWeatherClient(cfg.Weather.BaseURL, cfg.Weather.Retry, cfg.Weather.BreakerThreshold, log),
			memo, cfg.Cache, log,
		)
		engine := analysis.New(imagery, persistence, cfg.Imagery, cfg.Analysis, log)
		sink := notify.NewWebhookSink(os.Getenv("ALERTS_WEBHOOK_URL"), log)
		alertEng := alerts.New(persistence, sink, cfg.Alerts, cfg.Weather.Thresholds, log)
		plan := planner.New(cfg.Planner)
		runner := orchestrator.New(engine, alertEng, plan, weather, persistence, cfg.Analysis, log)
		return stack{engine: engine, alertEng: alertEng, plan: plan, runner: runner}
	}

	var analysisDate, cropType, season string
	analyzeFarmCmd := &cobra.Command{
		Use:   "analyze-farm <farmId>",
		Short: "run a full analysis pass over a farm's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			persistence, err := newPersistence(ctx)
			if err != nil {
				return err
			}
			date := time.Now().UTC()
			if analysisDate != "" {
				date, err = time.Parse("2006-01-02", analysisDate)
				if err != nil {
					return err
				}
			}
			bundle, err := newStack(persistence).runner.RunFarmAnalysis(ctx, args[0], orchestrator.Options{
				AnalysisDate: date,
				CropType:     cropType,
				Season:       season,
			})
			if err != nil {
				return err
			}
			return printJSON(bundle)
		},
	}
	analyzeFarmCmd.Flags().StringVar(&analysisDate, "date", "", "analysis date (YYYY-MM-DD), default today")
	analyzeFarmCmd.Flags().StringVar(&cropType, "crop", "", "crop type, passed through to the planner")
	analyzeFarmCmd.Flags().StringVar(&season, "season", "", "season label, passed through to the planner")

	var startDate, endDate string
	trendsCmd := &cobra.Command{
		Use:   "trends <fieldId>",
		Short: "print the NDVI/health trend series for a field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			persistence, err := newPersistence(ctx)
			if err != nil {
				return err
			}
			engine := newStack(persistence).engine

			start := time.Now().AddDate(0, -6, 0)
			end := time.Now()
			if startDate != "" {
				if start, err = time.Parse("2006-01-02", startDate); err != nil {
					return err
				}
			}
			if endDate != "" {
				if end, err = time.Parse("2006-01-02", endDate); err != nil {
					return err
				}
			}
			series, err := engine.GetAnalysisTrends(ctx, args[0], start, end)
			if err != nil {
				return err
			}
			return printJSON(series)
		},
	}
	trendsCmd.Flags().StringVar(&startDate, "start", "", "trend window start (YYYY-MM-DD)")
	trendsCmd.Flags().StringVar(&endDate, "end", "", "trend window end (YYYY-MM-DD)")

	var port string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and the periodic farm-scan scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			persistence, err := newPersistence(ctx)
			if err != nil {
				return err
			}
			st := newStack(persistence)
			sched := scheduler.New(st.runner, persistence, cfg.Scheduler, log)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			api := httpapi.New(st.runner, st.engine, st.alertEng, st.plan, persistence, log)
			srv := &http.Server{Addr: ":" + port, Handler: api.Routes(), ReadHeaderTimeout: 5 * time.Second}
			log.Info().Str("port", port).Msg("demeterctl serve listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	serveCmd.Flags().StringVar(&port, "port", cfg.HTTPPort, "HTTP listen port")

	root.AddCommand(analyzeFarmCmd, trendsCmd, serveCmd)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
