package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asharahmed/us-econ-growth/internal/dataio"
	"github.com/asharahmed/us-econ-growth/internal/ensemble"
	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/series"
	"github.com/asharahmed/us-econ-growth/internal/trajectory"
)

func (cli *CLI) newProjectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project",
		Short: "Fit the configured model and project one trajectory",
		Long: `Fits the target model, forecasts its covariates and splices one projected
path onto history. Writes trajectory.csv and report.yaml into output.dir.`,
		Args: cobra.NoArgs,
		RunE: cli.runProject,
	}
}

func (cli *CLI) runProject(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := cli.setup(ctx)
	if err != nil {
		return err
	}

	res, err := r.engine.Project(ctx, r.inputs)
	if err != nil {
		return err
	}
	t := res.Trajectory

	csvPath, err := r.outputPath("trajectory.csv")
	if err != nil {
		return err
	}
	if err := dataio.WriteTrajectoryCSV(csvPath, t); err != nil {
		return err
	}

	settings := r.engine.Settings()
	report := dataio.NewReport(t, settings.Seed, settings.Stochastic, res.CovariateModels).WithInterval(res.Interval)
	reportPath, err := r.outputPath("report.yaml")
	if err != nil {
		return err
	}
	if err := dataio.WriteReportYAML(reportPath, report); err != nil {
		return err
	}

	printTrajectory(cmd, t, res.Interval)
	r.log.Info().Str("trajectory", csvPath).Str("report", reportPath).Msg("outputs written")
	return r.finish()
}

func printTrajectory(cmd *cobra.Command, t *trajectory.Trajectory, iv *model.Interval) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  run %s, projected from %s\n", t.Model, t.RunID, t.Frequency.Format(t.Splice))
	growth := t.ProjectedGrowth.Values()
	levels := t.ProjectedLevel.Values()
	if iv == nil {
		fmt.Fprintf(out, "%-10s %10s %14s\n", "period", "growth", "level")
		for i, tp := range t.ProjectedGrowth.Times() {
			fmt.Fprintf(out, "%-10s %10.3f %14.3f\n", t.Frequency.Format(tp), growth[i], levels[i])
		}
	} else {
		band := fmt.Sprintf("%g%% band", iv.Level*100)
		fmt.Fprintf(out, "%-10s %10s %14s %21s\n", "period", "growth", "level", band)
		lower, upper := iv.Lower.Values(), iv.Upper.Values()
		for i, tp := range t.ProjectedGrowth.Times() {
			fmt.Fprintf(out, "%-10s %10.3f %14.3f %10.3f %10.3f\n",
				t.Frequency.Format(tp), growth[i], levels[i], lower[i], upper[i])
		}
	}
	for _, q := range t.Quality {
		fmt.Fprintf(out, "warning: %s\n", q)
	}
}

func (cli *CLI) newEnsembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensemble",
		Short: "Simulate many trajectories and summarize them as bands",
		Long: `Fits once, simulates ensemble.paths trajectories in parallel and writes the
per-period quantile bands to bands.csv and a report to report.yaml.`,
		Args: cobra.NoArgs,
		RunE: cli.runEnsemble,
	}
}

func (cli *CLI) runEnsemble(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := cli.setup(ctx)
	if err != nil {
		return err
	}

	opts := ensemble.Options{
		Paths:   r.cfg.Ensemble.Paths,
		Workers: r.cfg.Ensemble.Workers,
		Seed:    r.cfg.Seed,
		Alpha:   r.cfg.Ensemble.Alpha,
	}
	bands, res, err := r.engine.Ensemble(ctx, r.inputs, opts)
	if err != nil {
		return err
	}

	bandsPath, err := r.outputPath("bands.csv")
	if err != nil {
		return err
	}
	if err := dataio.WriteBandsCSV(bandsPath, bands); err != nil {
		return err
	}

	// The report carries the median growth path as the projection.
	g := bands.Growth
	medianGrowth, err := series.New(g.Name, bands.Frequency, g.Times, g.Median)
	if err != nil {
		return err
	}
	median, err := trajectory.Compose(res.Prepared.History, medianGrowth,
		trajectory.WithRunID(bands.RunID), trajectory.WithModel(bands.Model))
	if err != nil {
		return err
	}
	report := dataio.NewReport(median, bands.Seed, true, res.CovariateModels).WithEnsemble(bands)
	reportPath, err := r.outputPath("report.yaml")
	if err != nil {
		return err
	}
	if err := dataio.WriteReportYAML(reportPath, report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  run %s, %d paths, seed %d\n", bands.Model, bands.RunID, bands.Paths, bands.Seed)
	fmt.Fprintf(out, "%-10s %10s %10s %10s\n", "period", "lower", "median", "upper")
	for h, tp := range g.Times {
		fmt.Fprintf(out, "%-10s %10.3f %10.3f %10.3f\n", bands.Frequency.Format(tp), g.Lower[h], g.Median[h], g.Upper[h])
	}

	r.log.Info().Str("bands", bandsPath).Str("report", reportPath).Msg("outputs written")
	return r.finish()
}
