// internal/forecast/regression.go
package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
)

// Model names stamped on forecast output.
const (
	ModelEnhancedLinearRegression = "ENHANCED_LINEAR_REGRESSION"
	ModelHolt                     = "HOLT"
)

const (
	minRegressionObservations = 5

	// Exponential recency weighting: weight(i) = exp(recencyDecay * i).
	recencyDecay = 0.01

	// 80% interval z-score and per-step widening of the confidence margin.
	confidenceZ    = 1.28
	horizonWidenPc = 0.15

	// Recent volatility adjustment is capped at doubling the margin.
	maxVolatilityFactor = 2.0

	recentTrendWindow = 7
	yoyLookbackDays   = 365

	ridgeEpsilon = 1e-6
)

// Point is a single forecasted day with its uncertainty bounds and the
// in-sample fit metrics of the model that produced it.
type Point struct {
	Date            time.Time `json:"date"`
	Prediction      int       `json:"prediction"`
	ConfidenceLower int       `json:"confidence_lower"`
	ConfidenceUpper int       `json:"confidence_upper"`
	Model           string    `json:"model"`
	MAE             float64   `json:"mae"`
	RMSE            float64   `json:"rmse"`
}

// Forecast fits a seasonal/trend regression on a date-ordered daily series
// and predicts horizonDays values starting at startDate. A zero startDate
// defaults to the day after the last observation. The series is expected to
// be capped at the training cutoff by the caller; the math here never
// touches a store.
//
// Minimum 5 observations; shorter series return InsufficientDataError.
// Numerical failures come back as ModelFitError, never as a panic.
func Forecast(series []domain.SalesPoint, horizonDays int, startDate time.Time) ([]Point, error) {
	if len(series) < minRegressionObservations {
		return nil, &domain.InsufficientDataError{
			Points:  len(series),
			Minimum: minRegressionObservations,
		}
	}
	if horizonDays < 1 {
		return nil, &domain.ModelFitError{
			Model:  ModelEnhancedLinearRegression,
			Reason: "horizon must be at least one day",
		}
	}

	n := len(series)
	quantities := make([]float64, n)
	for i, p := range series {
		quantities[i] = p.Quantity
	}
	seriesMean := meanOf(quantities)
	lastDate := domain.Day(series[n-1].Date)

	yoyTable := buildYoYTable(series)

	// Trailing moving average, shorter at the head of the series.
	recentTrend := make([]float64, n)
	for i := range quantities {
		lo := i - recentTrendWindow + 1
		if lo < 0 {
			lo = 0
		}
		recentTrend[i] = meanOf(quantities[lo : i+1])
	}

	x := make([][]float64, n)
	weights := make([]float64, n)
	for i, p := range series {
		x[i] = featureVector(float64(i), p.Date, yoyTable, seriesMean, recentTrend[i])
		weights[i] = math.Exp(recencyDecay * float64(i))
	}

	beta, err := solveWeightedOLS(x, quantities, weights, ridgeEpsilon)
	if err != nil {
		return nil, &domain.ModelFitError{
			Model:  ModelEnhancedLinearRegression,
			Reason: "weighted least squares fit failed",
			Err:    err,
		}
	}

	// In-sample fit quality and residual spread for the intervals.
	residuals := make([]float64, n)
	var absSum, sqSum float64
	for i := range x {
		fitted := dot(x[i], beta)
		residuals[i] = quantities[i] - fitted
		absSum += math.Abs(residuals[i])
		sqSum += residuals[i] * residuals[i]
	}
	mae := round2(absSum / float64(n))
	rmse := round2(math.Sqrt(sqSum / float64(n)))
	residualStd := populationStd(residuals)

	recentVolatility := residualStd
	if n > recentTrendWindow {
		recentVolatility = sampleStd(quantities[n-recentTrendWindow:])
	}
	volatilityFactor := math.Min(recentVolatility/(residualStd+ridgeEpsilon), maxVolatilityFactor)

	if startDate.IsZero() {
		startDate = lastDate.AddDate(0, 0, 1)
	}
	startDate = domain.Day(startDate)
	daysFromLast := int(startDate.Sub(lastDate).Hours() / 24)

	lastTrendValue := recentTrend[n-1]
	points := make([]Point, 0, horizonDays)
	for step := 0; step < horizonDays; step++ {
		date := startDate.AddDate(0, 0, step)
		trendIndex := float64(n - 1 + daysFromLast + step)
		features := featureVector(trendIndex, date, yoyTable, seriesMean, lastTrendValue)
		raw := dot(features, beta)

		margin := confidenceZ * residualStd * (1 + horizonWidenPc*float64(step)) * volatilityFactor

		points = append(points, Point{
			Date:            date,
			Prediction:      clampRound(raw),
			ConfidenceLower: clampRound(raw - margin),
			ConfidenceUpper: clampRound(raw + margin),
			Model:           ModelEnhancedLinearRegression,
			MAE:             mae,
			RMSE:            rmse,
		})
	}

	return points, nil
}

// featureVector builds the 12-feature row: trend index, calendar month,
// day-of-month, YoY seasonal factor, recent trend, then seven day-of-week
// indicators (Monday first). The indicator block doubles as the intercept.
func featureVector(trendIndex float64, date time.Time, yoy map[int]float64, seriesMean, recentTrend float64) []float64 {
	features := make([]float64, 12)
	features[0] = trendIndex
	features[1] = float64(date.Month())
	features[2] = float64(date.Day())
	features[3] = yoyFactor(yoy, date, seriesMean)
	features[4] = recentTrend
	features[5+mondayIndexedWeekday(date)] = 1
	return features
}

// buildYoYTable computes the mean quantity per day-of-year using only data
// older than a year before the series end. Series spanning a year or less
// get no table; callers fall back to the series mean.
func buildYoYTable(series []domain.SalesPoint) map[int]float64 {
	if len(series) <= yoyLookbackDays {
		return nil
	}
	cutoff := domain.Day(series[len(series)-1].Date).AddDate(0, 0, -yoyLookbackDays)

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, p := range series {
		if !p.Date.Before(cutoff) {
			continue
		}
		doy := p.Date.YearDay()
		sums[doy] += p.Quantity
		counts[doy]++
	}
	if len(counts) == 0 {
		return nil
	}

	table := make(map[int]float64, len(counts))
	for doy, sum := range sums {
		table[doy] = sum / float64(counts[doy])
	}
	return table
}

func yoyFactor(table map[int]float64, date time.Time, seriesMean float64) float64 {
	if table == nil {
		return seriesMean
	}
	if v, ok := table[date.YearDay()]; ok {
		return v
	}
	return seriesMean
}

// mondayIndexedWeekday maps Monday to 0 and Sunday to 6.
func mondayIndexedWeekday(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

func clampRound(v float64) int {
	if v < 0 {
		return 0
	}
	return int(math.Round(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
