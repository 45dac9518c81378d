package model

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/asharahmed/us-econ-growth/internal/regime"
	"github.com/asharahmed/us-econ-growth/internal/series"
)

// Fit estimates spec on y. exog, when given, supplies covariates that must
// cover every timepoint of y; regime models take no covariates.
// Fitting is bounded by spec.MaxIterations and stops early when ctx is done,
// in which case the error wraps ErrFitDidNotConverge.
func Fit(ctx context.Context, y *series.Series, exog *series.MultiSeries, spec Spec) (FittedModel, error) {
	if y == nil {
		return nil, fmt.Errorf("%w: no series to fit", series.ErrInsufficientData)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if !spec.Kind.TakesCovariates() && exog != nil && len(exog.Names()) > 0 {
		return nil, fmt.Errorf("%s model on %q does not take covariates (got %s)",
			spec.Kind, y.Name(), strings.Join(exog.Names(), ", "))
	}

	switch spec.Kind {
	case KindIID:
		fitted, err := regime.IID(y)
		if err != nil {
			return nil, err
		}
		return fitted, nil
	case KindRegime:
		fitted, err := regime.Fit(ctx, y, regime.FitConfig{
			NumStates:     spec.NumStates,
			Family:        spec.Emission,
			DoF:           spec.DoF,
			MaxIterations: spec.maxIterations(),
		})
		if err != nil {
			if errors.Is(err, regime.ErrFitDidNotConverge) {
				return nil, fmt.Errorf("%w: %w", ErrFitDidNotConverge, err)
			}
			return nil, err
		}
		return fitted, nil
	default:
		m, err := fitARIMA(ctx, spec, y, exog)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// FitARIMA is Fit for the ARIMA family, returning the concrete model so
// callers can reach intervals and coefficients.
func FitARIMA(ctx context.Context, y *series.Series, exog *series.MultiSeries, spec Spec) (*ARIMA, error) {
	if y == nil {
		return nil, fmt.Errorf("%w: no series to fit", series.ErrInsufficientData)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !spec.Kind.TakesCovariates() {
		return nil, fmt.Errorf("FitARIMA called with a %s spec", spec.Kind)
	}
	return fitARIMA(ctx, spec, y, exog)
}
