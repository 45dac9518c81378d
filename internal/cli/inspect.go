package cli

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/asharahmed/us-econ-growth/internal/model"
	"github.com/asharahmed/us-econ-growth/internal/regime"
)

type selectOrderCmd struct {
	cli        *CLI
	maxP, maxQ int
}

func (cli *CLI) newSelectOrderCmd() *cobra.Command {
	sc := &selectOrderCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "select-order",
		Short: "Search ARIMA (p,q) orders by AIC on the prepared target",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}
	cmd.Flags().IntVar(&sc.maxP, "max-p", 3, "Largest AR order to try")
	cmd.Flags().IntVar(&sc.maxQ, "max-q", 3, "Largest MA order to try")
	return cmd
}

func (sc *selectOrderCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := sc.cli.setup(ctx)
	if err != nil {
		return err
	}
	p, err := r.engine.Prepare(r.inputs)
	if err != nil {
		return err
	}

	spec := r.engine.Settings().Model
	sel, err := model.SelectOrders(r.log.WithContext(ctx), p.Target, p.Covariates, model.Search{
		MaxP:            sc.maxP,
		MaxQ:            sc.maxQ,
		D:               spec.Orders.D,
		Seasonal:        spec.Orders.Seasonal,
		IncludeConstant: spec.IncludeConstant,
		MaxIterations:   spec.MaxIterations,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-24s %12s\n", "orders", "aic")
	for _, c := range sel.Candidates {
		if c.Err != nil {
			fmt.Fprintf(out, "%-24s %12s  (%v)\n", c.Orders, "-", c.Err)
			continue
		}
		fmt.Fprintf(out, "%-24s %12.4f\n", c.Orders, c.AIC)
	}
	fmt.Fprintf(out, "\nbest: %s", sel.Best.Describe())
	return r.finish()
}

func (cli *CLI) newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode",
		Short: "Fit the regime model and print the most likely historical states",
		Long: `Fits the configured regime-switching model (model.kind RegimeSwitching) and
prints its parameters and the Viterbi state of every training period.`,
		Args: cobra.NoArgs,
		RunE: cli.runDecode,
	}
}

func (cli *CLI) runDecode(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := cli.setup(ctx)
	if err != nil {
		return err
	}
	if kind := r.engine.Settings().Model.Kind; kind != model.KindRegime {
		return fmt.Errorf("decode needs a regime model, model.kind is %s", kind)
	}
	p, err := r.engine.Prepare(r.inputs)
	if err != nil {
		return err
	}
	m, err := r.engine.Fit(ctx, p)
	if err != nil {
		return err
	}
	fitted, ok := m.(*regime.Fitted)
	if !ok {
		return fmt.Errorf("unexpected model type %T", m)
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, fitted.Describe())
	fmt.Fprintf(out, "\n%-10s %10s %6s\n", "period", "growth", "state")
	states := fitted.HistoricalStates()
	values := p.Target.Values()
	freq := p.Target.Frequency()
	for i, tp := range p.Target.Times() {
		fmt.Fprintf(out, "%-10s %10.3f %6d\n", freq.Format(tp), values[i], states[i])
	}
	return r.finish()
}

type significanceCmd struct {
	cli   *CLI
	lags  int
	alpha float64
}

func (cli *CLI) newSignificanceCmd() *cobra.Command {
	sc := &significanceCmd{cli: cli}
	cmd := &cobra.Command{
		Use:   "significance",
		Short: "F-test whether each covariate helps explain the target",
		Args:  cobra.NoArgs,
		RunE:  sc.run,
	}
	cmd.Flags().IntVar(&sc.lags, "lags", 2, "Number of lags in the test regressions")
	cmd.Flags().Float64Var(&sc.alpha, "alpha", 0.05, "Significance level")
	return cmd
}

func (sc *significanceCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	r, err := sc.cli.setup(ctx)
	if err != nil {
		return err
	}
	p, err := r.engine.Prepare(r.inputs)
	if err != nil {
		return err
	}
	results, err := model.CovariateSignificance(p.Target, p.Covariates, sc.lags)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s %10s %10s %s\n", "covariate", "F", "p-value", "significant")
	for _, s := range results {
		significant := !math.IsNaN(s.PValue) && s.PValue < sc.alpha
		fmt.Fprintf(out, "%-16s %10.4f %10.4f %v\n", s.Covariate, s.FStatistic, s.PValue, significant)
	}
	return r.finish()
}
