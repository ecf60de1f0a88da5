package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"HoopsCast/internal/di"
	"HoopsCast/internal/usecase"
	"HoopsCast/pkg/config"
	"HoopsCast/pkg/util"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dataDir    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "hoopscast",
		Short:         "Run the score prediction pipeline stages locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config/config.yaml", "config file path")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "store tables and the model in this directory instead of the configured store")

	root.AddCommand(newETLCmd(opts), newTrainCmd(opts), newPredictCmd(opts))
	return root
}

func newETLCmd(opts *rootOptions) *cobra.Command {
	var start, end, today string
	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Extract games, build features and write the train and predict tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := etlParams(start, end, today)
			if err != nil {
				return err
			}
			return withPipeline(cmd, opts, func(ctx context.Context, p *di.Pipeline) (interface{}, error) {
				return p.ETL.Run(ctx, params)
			})
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first game date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last game date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&today, "today", "", "run date used to partition the tables (YYYY-MM-DD)")
	return cmd
}

func newTrainCmd(opts *rootOptions) *cobra.Command {
	var search bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the regressor on the training table and store the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := usecase.TrainParams{}
			if cmd.Flags().Changed("search") {
				params.Search = &search
			}
			return withPipeline(cmd, opts, func(ctx context.Context, p *di.Pipeline) (interface{}, error) {
				return p.Trainer.Run(ctx, params)
			})
		},
	}
	cmd.Flags().BoolVar(&search, "search", false, "run the hyperparameter search before the final fit")
	return cmd
}

func newPredictCmd(opts *rootOptions) *cobra.Command {
	var noValidate bool
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score the prediction table with the stored model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := usecase.PredictParams{Refresh: true}
			if noValidate {
				v := false
				params.Validate = &v
			}
			return withPipeline(cmd, opts, func(ctx context.Context, p *di.Pipeline) (interface{}, error) {
				return p.Predictor.Predict(ctx, params)
			})
		},
	}
	cmd.Flags().BoolVar(&noValidate, "no-validate", false, "skip the held-out validation estimate")
	return cmd
}

// etlParams parses the date flags. Empty flags keep the configured values.
func etlParams(start, end, today string) (usecase.ETLParams, error) {
	p := usecase.ETLParams{StartDate: start, EndDate: end}
	for _, f := range []struct {
		name, value string
	}{{"start", start}, {"end", end}, {"today", today}} {
		if f.value == "" {
			continue
		}
		t, err := time.Parse(util.DateLayout, f.value)
		if err != nil {
			return usecase.ETLParams{}, fmt.Errorf("invalid --%s %q: want YYYY-MM-DD", f.name, f.value)
		}
		if f.name == "today" {
			p.Today = t
		}
	}
	return p, nil
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(opts.configPath); errors.Is(statErr, os.ErrNotExist) {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.LoadWithEnv(opts.configPath)
	}
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.Storage.Type = "local"
		cfg.Storage.Dir = opts.dataDir
	}
	return cfg, nil
}

// withPipeline builds the stages, runs fn under a signal-aware context and
// prints its result as JSON.
func withPipeline(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *di.Pipeline) (interface{}, error)) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	p, err := di.InitializePipeline(cfg)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := fn(ctx, p)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s finished in %s\n", cmd.Name(), time.Since(start).Round(time.Millisecond))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
