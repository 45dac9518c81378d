package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/asharahmed/us-econ-growth/internal/series"
)

// Search bounds an order search. D and the seasonal part are fixed; p and q
// range over [0, MaxP] x [0, MaxQ].
type Search struct {
	MaxP, MaxQ      int
	D               int
	Seasonal        SeasonalOrders
	IncludeConstant bool
	MaxIterations   int
}

// Candidate is one evaluated order.
type Candidate struct {
	Orders Orders
	AIC    float64
	Err    error
}

// Selection is the outcome of SelectOrders, candidates sorted by AIC.
type Selection struct {
	Best       *ARIMA
	Candidates []Candidate
}

// SelectOrders fits every (p, q) in the grid and keeps the lowest AIC.
// Orders that fail to fit are recorded with their error and skipped. The
// search stops when ctx is done.
func SelectOrders(ctx context.Context, y *series.Series, exog *series.MultiSeries, s Search) (*Selection, error) {
	if s.MaxP < 0 || s.MaxQ < 0 {
		return nil, fmt.Errorf("search bounds must be >= 0")
	}
	log := zerolog.Ctx(ctx)

	kind := KindARIMA
	if s.Seasonal.active() || (exog != nil && len(exog.Names()) > 0) {
		kind = KindSARIMAX
	}

	sel := &Selection{}
	bestAIC := math.Inf(1)
	for p := 0; p <= s.MaxP; p++ {
		for q := 0; q <= s.MaxQ; q++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: order search: %w", ErrFitDidNotConverge, err)
			}
			spec := Spec{
				Kind:            kind,
				Orders:          Orders{P: p, D: s.D, Q: q, Seasonal: s.Seasonal},
				IncludeConstant: s.IncludeConstant,
				MaxIterations:   s.MaxIterations,
			}
			m, err := FitARIMA(ctx, y, exog, spec)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				log.Debug().Err(err).Str("orders", spec.Orders.String()).Msg("order skipped")
				sel.Candidates = append(sel.Candidates, Candidate{Orders: spec.Orders, AIC: math.Inf(1), Err: err})
				continue
			}
			sel.Candidates = append(sel.Candidates, Candidate{Orders: spec.Orders, AIC: m.AIC()})
			if m.AIC() < bestAIC {
				bestAIC = m.AIC()
				sel.Best = m
			}
		}
	}

	sort.SliceStable(sel.Candidates, func(i, j int) bool {
		return sel.Candidates[i].AIC < sel.Candidates[j].AIC
	})

	if sel.Best == nil {
		return sel, fmt.Errorf("%w: no order in p<=%d, q<=%d could be fit to %q",
			ErrFitDidNotConverge, s.MaxP, s.MaxQ, y.Name())
	}
	log.Info().
		Str("series", y.Name()).
		Str("best", sel.Best.Summary()).
		Float64("aic", bestAIC).
		Int("candidates", len(sel.Candidates)).
		Msg("order search done")
	return sel, nil
}
