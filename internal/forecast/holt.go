// internal/forecast/holt.go
package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
)

const (
	minHoltObservations = 30

	holtAlpha = 0.3
	holtBeta  = 0.1
)

// ForecastHolt fits double exponential smoothing (level plus trend) and
// projects horizonDays values. It needs a longer history than the
// regression model and is only selected when a caller asks for it
// explicitly.
func ForecastHolt(series []domain.SalesPoint, horizonDays int, startDate time.Time) ([]Point, error) {
	if len(series) < minHoltObservations {
		return nil, &domain.InsufficientDataError{
			Points:  len(series),
			Minimum: minHoltObservations,
		}
	}
	if horizonDays < 1 {
		return nil, &domain.ModelFitError{
			Model:  ModelHolt,
			Reason: "horizon must be at least one day",
		}
	}

	n := len(series)
	level := series[0].Quantity
	trend := series[1].Quantity - series[0].Quantity

	fitted := make([]float64, n)
	fitted[0] = level
	for i := 1; i < n; i++ {
		fitted[i] = level + trend
		prevLevel := level
		level = holtAlpha*series[i].Quantity + (1-holtAlpha)*(level+trend)
		trend = holtBeta*(level-prevLevel) + (1-holtBeta)*trend
	}

	residuals := make([]float64, n)
	var absSum, sqSum float64
	for i := range fitted {
		residuals[i] = series[i].Quantity - fitted[i]
		absSum += math.Abs(residuals[i])
		sqSum += residuals[i] * residuals[i]
	}
	mae := round2(absSum / float64(n))
	rmse := round2(math.Sqrt(sqSum / float64(n)))
	residualStd := populationStd(residuals)

	lastDate := domain.Day(series[n-1].Date)
	if startDate.IsZero() {
		startDate = lastDate.AddDate(0, 0, 1)
	}
	startDate = domain.Day(startDate)
	daysFromLast := int(startDate.Sub(lastDate).Hours() / 24)

	points := make([]Point, 0, horizonDays)
	for step := 0; step < horizonDays; step++ {
		ahead := float64(daysFromLast + step)
		raw := level + trend*ahead
		margin := confidenceZ * residualStd * (1 + horizonWidenPc*float64(step))

		points = append(points, Point{
			Date:            startDate.AddDate(0, 0, step),
			Prediction:      clampRound(raw),
			ConfidenceLower: clampRound(raw - margin),
			ConfidenceUpper: clampRound(raw + margin),
			Model:           ModelHolt,
			MAE:             mae,
			RMSE:            rmse,
		})
	}

	return points, nil
}
