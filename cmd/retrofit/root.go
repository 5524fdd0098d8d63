package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ja7ad/retrofit/pkg/artifact"
	"github.com/ja7ad/retrofit/pkg/config"
	"github.com/ja7ad/retrofit/pkg/metrics"
	"github.com/ja7ad/retrofit/pkg/predict"
)

var version = "dev"

// app is the state shared by the subcommands. It is filled in by the root
// command's pre-run hook; open loads the artifacts on first use.
type app struct {
	cfg *config.Config
	log *slog.Logger

	reg   *prometheus.Registry
	rec   *metrics.Recorder
	store *artifact.Store
	mgr   *predict.Manager
}

func newRootCommand() *cobra.Command {
	var (
		cfgPath string
		debug   bool
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:   "retrofit",
		Short: "Retrofit energy-saving prediction",
		Long: `The retrofit tool estimates the energy saving a building retrofit can
achieve and derives annual savings, cost, payback period and a recommendation.

Predictions come from model A, model B, their weighted ensemble (variant C,
the default) or a single fallback model, loaded from the data directory:

  ./data/model_A.pkl  ./data/model_B.pkl  ./data/model.pkl  ./data/manifest.json

Files still found under the deprecated ./app/data directory are used with a
warning. With no model at all every prediction is a zero saving.

Examples:
  retrofit predict --type school --floor-area 1200 --energy 250000
  retrofit batch --in buildings.jsonl --out results.jsonl --csv results.csv
  retrofit status -o json`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			a.cfg = cfg
			a.log = cfg.Log.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(a.log)
			a.log.Debug("configuration loaded",
				"primary", cfg.Data.Primary,
				"deprecated", cfg.Data.Deprecated,
				"policy", fmt.Sprintf("%+v", cfg.Policy))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "config file (default ./retrofit.{yaml,json,toml} if present)")
	pf.String("data-dir", "", "primary artifact directory (default ./data)")
	pf.String("deprecated-dir", "", `deprecated artifact directory (default ./app/data, "" disables)`)
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newPredictCommand(a))
	cmd.AddCommand(newBatchCommand(a))
	cmd.AddCommand(newStatusCommand(a))

	return cmd
}

// open loads the artifacts once and returns the prediction manager.
func (a *app) open() *predict.Manager {
	if a.mgr != nil {
		return a.mgr
	}
	a.reg = prometheus.NewRegistry()
	a.rec = metrics.New(a.reg)

	a.store = artifact.Open(&artifact.Config{
		Resolver: artifact.NewResolver(a.cfg.Data.Primary, a.cfg.Data.Deprecated, a.log),
		Names:    a.cfg.Artifacts,
		Logger:   a.log,
		Metrics:  a.rec,
	})
	a.mgr = predict.New(a.store, &predict.Config{
		Policy:  &a.cfg.Policy,
		Logger:  a.log,
		Metrics: a.rec,
	})
	return a.mgr
}
