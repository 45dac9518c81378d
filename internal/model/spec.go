package model

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/asharahmed/us-econ-growth/internal/regime"
	"github.com/asharahmed/us-econ-growth/internal/series"
)

var (
	// ErrNonStationarity is reported when estimation hits its iteration cap
	// with the autoregressive polynomial sitting on the unit circle. It is a
	// heuristic that usually means the differencing order is too low, not the
	// outcome of a unit-root test.
	ErrNonStationarity      = errors.New("non-stationary series")
	ErrFitDidNotConverge    = errors.New("fit did not converge")
	ErrMissingExogenousData = errors.New("missing exogenous data")
)

// DefaultMaxIterations bounds the optimizer when a Spec does not set one.
const DefaultMaxIterations = 2000

// Kind of model to fit
type Kind string

const (
	KindARIMA   Kind = "arima"
	KindSARIMAX Kind = "sarimax"
	KindRegime  Kind = "regime"
	// Independent normal draws from the historical mean and standard deviation
	KindIID Kind = "iid"
)

// TakesCovariates is false for the regime kinds, which model growth alone.
func (k Kind) TakesCovariates() bool { return k == KindARIMA || k == KindSARIMAX }

// ParseKind accepts the configuration spellings ARIMA, SARIMAX, RegimeSwitching and IID.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "arima":
		return KindARIMA, nil
	case "sarimax", "sarima":
		return KindSARIMAX, nil
	case "regime", "regimeswitching", "hmm", "markov":
		return KindRegime, nil
	case "iid", "baseline":
		return KindIID, nil
	}
	return "", fmt.Errorf("unknown model kind %q", s)
}

// SeasonalOrders are the (P,D,Q)[s] orders of a seasonal ARIMA.
type SeasonalOrders struct {
	P, D, Q int
	Period  int
}

func (s SeasonalOrders) active() bool {
	return s.Period > 1 && (s.P > 0 || s.D > 0 || s.Q > 0)
}

// Orders are the (p,d,q) orders plus optional seasonal orders.
type Orders struct {
	P, D, Q  int
	Seasonal SeasonalOrders
}

func (o Orders) String() string {
	s := fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
	if o.Seasonal.active() {
		s += fmt.Sprintf("(%d,%d,%d)[%d]", o.Seasonal.P, o.Seasonal.D, o.Seasonal.Q, o.Seasonal.Period)
	}
	return s
}

// Spec describes what to fit.
type Spec struct {
	Kind   Kind
	Orders Orders

	// Include an intercept (drift when d > 0)
	IncludeConstant bool

	// Regime-switching only
	NumStates int
	Emission  regime.Family
	DoF       float64

	// Optimizer / EM iteration cap; 0 means DefaultMaxIterations
	MaxIterations int
}

// Validate checks the orders against the kind.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindARIMA, KindSARIMAX:
		o := s.Orders
		if o.P < 0 || o.D < 0 || o.Q < 0 {
			return fmt.Errorf("orders must be >= 0, got %s", o)
		}
		if o.D > 2 {
			return fmt.Errorf("differencing order d=%d is not supported (max 2)", o.D)
		}
		so := o.Seasonal
		if so.P < 0 || so.D < 0 || so.Q < 0 || so.Period < 0 {
			return fmt.Errorf("seasonal orders must be >= 0, got %s", o)
		}
		if (so.P > 0 || so.D > 0 || so.Q > 0) && so.Period < 2 {
			return fmt.Errorf("seasonal orders need a period >= 2")
		}
		if s.Kind == KindARIMA && so.active() {
			return fmt.Errorf("arima does not take seasonal orders, use sarimax")
		}
	case KindRegime:
		if s.NumStates < 1 {
			return fmt.Errorf("regime model needs numStates >= 1, got %d", s.NumStates)
		}
	case KindIID:
	default:
		return fmt.Errorf("unknown model kind %q", s.Kind)
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("max iterations must be >= 0")
	}
	return nil
}

func (s Spec) maxIterations() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return DefaultMaxIterations
}

// FittedModel is an immutable fitted model behind a uniform forecasting
// interface. Forecast is deterministic; Simulate is the explicit stochastic
// variant and draws only from the rng it is given.
type FittedModel interface {
	// Human readable description, e.g. ARIMA(1,1,0)
	Summary() string
	// Covariates the model was fit with, in column order
	Covariates() []string
	// Last training timepoint
	LastPeriod() series.TimePoint
	// Point forecast for the horizon periods after LastPeriod
	Forecast(horizon int, exog *series.MultiSeries) (*series.Series, error)
	// One sample path for the horizon periods after LastPeriod
	Simulate(horizon int, exog *series.MultiSeries, rng *rand.Rand) (*series.Series, error)
}
