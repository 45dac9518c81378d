// Package cli wires configuration, data loading and the projection engine
// into the gdpsim command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/asharahmed/us-econ-growth/internal/config"
	"github.com/asharahmed/us-econ-growth/internal/dataio"
	"github.com/asharahmed/us-econ-growth/internal/logging"
	"github.com/asharahmed/us-econ-growth/internal/metrics"
	"github.com/asharahmed/us-econ-growth/internal/projection"
)

// CLI represents the command-line interface
type CLI struct {
	configFile string
	out        io.Writer
	errOut     io.Writer
	provider   func(cfg *config.Config) (dataio.Provider, error)
	rootCmd    *cobra.Command
}

// Options configure the CLI. Nil writers default to stdout and stderr; a nil
// Provider reads CSV files from data.dir.
type Options struct {
	Output   io.Writer
	ErrOut   io.Writer
	Provider func(cfg *config.Config) (dataio.Provider, error)
}

func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}
	if opts.Provider == nil {
		opts.Provider = csvProvider
	}

	cli := &CLI{
		out:      opts.Output,
		errOut:   opts.ErrOut,
		provider: opts.Provider,
	}
	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cli.rootCmd.ExecuteContext(ctx)
}

// SetArgs overrides os.Args, for tests.
func (cli *CLI) SetArgs(args []string) { cli.rootCmd.SetArgs(args) }

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gdpsim",
		Short:         "Long-horizon GDP growth projections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(cli.out)
	cmd.SetErr(cli.errOut)
	cmd.PersistentFlags().StringVar(&cli.configFile, "config", "", "Path to the configuration file (default ./gdpsim.yaml)")

	cmd.AddCommand(cli.newProjectCmd())
	cmd.AddCommand(cli.newEnsembleCmd())
	cmd.AddCommand(cli.newSelectOrderCmd())
	cmd.AddCommand(cli.newDecodeCmd())
	cmd.AddCommand(cli.newSignificanceCmd())

	return cmd
}

func csvProvider(cfg *config.Config) (dataio.Provider, error) {
	freq, err := cfg.Frequency()
	if err != nil {
		return nil, err
	}
	return dataio.NewCSVProvider(cfg.Data.Dir, freq), nil
}

// run is the state shared by every command: configuration, logger, metrics,
// the engine and the loaded inputs.
type run struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Recorder
	engine  *projection.Engine
	inputs  projection.Inputs
}

func (cli *CLI) setup(ctx context.Context) (*run, error) {
	cfg, err := config.Load(cli.configFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, cli.errOut)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}

	rec := metrics.New()
	engine, err := projection.NewEngine(settings, log, rec)
	if err != nil {
		return nil, err
	}

	provider, err := cli.provider(cfg)
	if err != nil {
		return nil, err
	}
	inputs, err := loadInputs(ctx, provider, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("target", cfg.Data.Target).
		Strs("covariates", cfg.Data.Covariates).
		Int("observations", inputs.Level.Len()).
		Msg("inputs loaded")

	return &run{cfg: cfg, log: log, metrics: rec, engine: engine, inputs: inputs}, nil
}

func loadInputs(ctx context.Context, provider dataio.Provider, cfg *config.Config) (projection.Inputs, error) {
	level, err := provider.FetchSeries(ctx, cfg.Data.Target)
	if err != nil {
		return projection.Inputs{}, fmt.Errorf("load target: %w", err)
	}
	in := projection.Inputs{Level: level}
	for _, id := range cfg.Data.Covariates {
		cov, err := provider.FetchSeries(ctx, id)
		if err != nil {
			return projection.Inputs{}, fmt.Errorf("load covariate: %w", err)
		}
		in.Covariates = append(in.Covariates, cov)
	}
	return in, nil
}

// outputPath creates output.dir if needed and joins name onto it.
func (r *run) outputPath(name string) (string, error) {
	if err := os.MkdirAll(r.cfg.Output.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(r.cfg.Output.Dir, name), nil
}

// finish writes the metrics textfile, if configured.
func (r *run) finish() error {
	if err := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
