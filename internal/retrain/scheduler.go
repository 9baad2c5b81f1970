// internal/retrain/scheduler.go
package retrain

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/forecast"
	"github.com/andresuchdata/restockcast/internal/repository"
	"github.com/andresuchdata/restockcast/internal/snapshot"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

// Options tunes a rolling retrain walk.
type Options struct {
	// FoundationDaysLarge is the initial training window used when the
	// walk's date range covers at least that many days; shorter ranges
	// fall back to FoundationDaysSmall.
	FoundationDaysLarge int
	FoundationDaysSmall int

	// HorizonDays is how far each training run predicts ahead.
	HorizonDays int

	// StepDays is the distance between consecutive generation cutoffs.
	StepDays int

	// UpTo sets the last generation cutoff, even past the last sale date;
	// nil walks to min(today, last sale date).
	UpTo *time.Time
}

func (o Options) withDefaults() Options {
	if o.FoundationDaysLarge <= 0 {
		o.FoundationDaysLarge = 365
	}
	if o.FoundationDaysSmall <= 0 {
		o.FoundationDaysSmall = 90
	}
	if o.HorizonDays <= 0 {
		o.HorizonDays = 30
	}
	if o.StepDays <= 0 {
		o.StepDays = 1
	}
	return o
}

// Result summarizes one product's walk.
type Result struct {
	ProductID        int64 `json:"product_id"`
	StepsRun         int   `json:"steps_run"`
	StepsSkipped     int   `json:"steps_skipped"`
	ForecastsWritten int   `json:"forecasts_written"`
	SnapshotsWritten int   `json:"snapshots_written"`
}

// Scheduler walks a product's sales history forward, retraining at each
// cutoff and persisting the forecasts and snapshots each run produces.
// Every persisted forecast is stamped with its generation cutoff, so the
// walk can resume from where the previous run stopped and re-runs are
// idempotent.
type Scheduler struct {
	sales     repository.SalesRepository
	forecasts repository.ForecastRepository
	recorder  *snapshot.Recorder
	now       func() time.Time
}

func NewScheduler(sales repository.SalesRepository, forecasts repository.ForecastRepository, recorder *snapshot.Recorder) *Scheduler {
	return &Scheduler{
		sales:     sales,
		forecasts: forecasts,
		recorder:  recorder,
		now:       time.Now,
	}
}

// RollingRetrain walks one product. Products whose history is shorter than
// the applicable foundation window produce no forecasts and no error; the
// walk simply has nowhere to start yet.
func (s *Scheduler) RollingRetrain(ctx context.Context, productID int64, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	result := &Result{ProductID: productID}

	first, last, ok, err := s.sales.SaleDateRange(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("sale date range for product %d: %w", productID, err)
	}
	if !ok {
		return result, nil
	}
	first = domain.Day(first)
	last = domain.Day(last)

	// Resolve the walk end before sizing the foundation. An explicit UpTo
	// is honored as given, even past the last sale date; without one the
	// walk stops at min(today, last sale date).
	var end time.Time
	if opts.UpTo != nil {
		end = domain.Day(*opts.UpTo)
	} else {
		end = last
		if today := domain.Day(s.now().UTC()); today.Before(end) {
			end = today
		}
	}

	totalDays := int(end.Sub(first).Hours()/24) + 1
	foundation := opts.FoundationDaysSmall
	if totalDays >= opts.FoundationDaysLarge {
		foundation = opts.FoundationDaysLarge
	}

	cutoff := first.AddDate(0, 0, foundation-1)
	if cutoff.After(end) {
		return result, nil
	}

	// Resume after the last recorded generation cutoff.
	lastGen, err := s.forecasts.LastGeneratedAt(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("last generation cutoff for product %d: %w", productID, err)
	}
	if lastGen != nil {
		resumed := domain.Day(*lastGen).AddDate(0, 0, opts.StepDays)
		if resumed.After(cutoff) {
			cutoff = resumed
		}
	}

	for ; !cutoff.After(end); cutoff = cutoff.AddDate(0, 0, opts.StepDays) {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := s.runStep(ctx, productID, cutoff, opts, result); err != nil {
			if domain.IsInsufficientData(err) {
				result.StepsSkipped++
				continue
			}
			logger.Log.Warn().Err(err).
				Int64("product_id", productID).
				Str("cutoff", cutoff.Format("2006-01-02")).
				Msg("retrain step failed, skipping")
			result.StepsSkipped++
			continue
		}
		result.StepsRun++
	}

	logger.Log.Info().
		Int64("product_id", productID).
		Int("steps_run", result.StepsRun).
		Int("steps_skipped", result.StepsSkipped).
		Int("forecasts_written", result.ForecastsWritten).
		Msg("rolling retrain finished")
	return result, nil
}

// runStep trains on sales up to cutoff and persists the horizon of
// forecasts that run produces, each paired with a snapshot.
func (s *Scheduler) runStep(ctx context.Context, productID int64, cutoff time.Time, opts Options, result *Result) error {
	series, err := s.sales.DailySeries(ctx, productID, &cutoff)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}

	startDate := cutoff.AddDate(0, 0, 1)
	points, err := forecast.Forecast(series, opts.HorizonDays, startDate)
	if err != nil {
		return err
	}

	generatedAt := cutoff
	batch := make([]*domain.Forecast, 0, len(points))
	staged := make([]forecast.Point, 0, len(points))
	for _, p := range points {
		exists, err := s.forecasts.Exists(ctx, productID, p.Date, generatedAt, domain.AggregationDaily)
		if err != nil {
			return fmt.Errorf("check forecast existence: %w", err)
		}
		if exists {
			continue
		}

		batch = append(batch, &domain.Forecast{
			ProductID:         productID,
			ForecastDate:      p.Date,
			PredictedQuantity: p.Prediction,
			ConfidenceLower:   float64(p.ConfidenceLower),
			ConfidenceUpper:   float64(p.ConfidenceUpper),
			ModelUsed:         p.Model,
			MAE:               p.MAE,
			RMSE:              p.RMSE,
			AggregationLevel:  domain.AggregationDaily,
			PeriodKey:         p.Date.Format("2006-01-02"),
			GeneratedAt:       &generatedAt,
			CreatedAt:         s.now().UTC(),
		})
		staged = append(staged, p)
	}

	// The step's rows commit as one unit; a failed step leaves no rows
	// under its generation cutoff, so the resume checkpoint never points
	// past a half-written step.
	written, err := s.forecasts.InsertBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("insert step forecasts: %w", err)
	}
	result.ForecastsWritten += written

	for _, p := range staged {
		gapDays := int(p.Date.Sub(generatedAt).Hours() / 24)
		snap := &domain.ForecastSnapshot{
			ProductID:         productID,
			ForecastDate:      p.Date,
			PredictedQuantity: float64(p.Prediction),
			SnapshotCreatedAt: generatedAt,
			ModelUsed:         p.Model,
			ForecastHorizon:   domain.HorizonLabel(gapDays),
			ConfidenceLower:   float64(p.ConfidenceLower),
			ConfidenceUpper:   float64(p.ConfidenceUpper),
			MAE:               p.MAE,
			RMSE:              p.RMSE,
		}
		if err := s.recorder.Record(ctx, snap); err != nil {
			logger.Log.Warn().Err(err).
				Int64("product_id", productID).
				Str("forecast_date", p.Date.Format("2006-01-02")).
				Msg("snapshot write failed")
			continue
		}
		result.SnapshotsWritten++
	}

	return nil
}

const aggregatedDailyModel = "AGGREGATED_DAILY"

// GenerateMultiHorizon refreshes a product's live forecast set: daily
// predictions for the horizon starting from Monday of the current week,
// plus weekly aggregates summing each week's daily predictions. The
// previous live set is replaced in the same transaction. Unlike backtest
// rows, live rows carry no generation cutoff, so they never move the
// retrain resume checkpoint. Returns the number of forecast rows written.
func (s *Scheduler) GenerateMultiHorizon(ctx context.Context, productID int64, horizonDays int) (int, error) {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	today := domain.Day(s.now().UTC())
	weekStart := mondayOf(today)

	series, err := s.sales.DailySeries(ctx, productID, nil)
	if err != nil {
		return 0, fmt.Errorf("load series for product %d: %w", productID, err)
	}
	points, err := forecast.Forecast(series, horizonDays, weekStart)
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	rows := make([]*domain.Forecast, 0, len(points)+len(points)/7+1)
	for _, p := range points {
		rows = append(rows, &domain.Forecast{
			ProductID:         productID,
			ForecastDate:      p.Date,
			PredictedQuantity: p.Prediction,
			ConfidenceLower:   float64(p.ConfidenceLower),
			ConfidenceUpper:   float64(p.ConfidenceUpper),
			ModelUsed:         p.Model,
			MAE:               p.MAE,
			RMSE:              p.RMSE,
			AggregationLevel:  domain.AggregationDaily,
			PeriodKey:         p.Date.Format("2006-01-02"),
			CreatedAt:         now,
		})
	}

	// Weekly aggregates: sum the daily predictions under each week's Monday.
	weekTotals := make(map[time.Time]int)
	var weekOrder []time.Time
	for _, p := range points {
		wk := mondayOf(domain.Day(p.Date))
		if _, seen := weekTotals[wk]; !seen {
			weekOrder = append(weekOrder, wk)
		}
		weekTotals[wk] += p.Prediction
	}
	for _, wk := range weekOrder {
		isoYear, isoWeek := wk.ISOWeek()
		rows = append(rows, &domain.Forecast{
			ProductID:         productID,
			ForecastDate:      wk,
			PredictedQuantity: weekTotals[wk],
			ModelUsed:         aggregatedDailyModel,
			AggregationLevel:  domain.AggregationWeekly,
			PeriodKey:         fmt.Sprintf("%d-W%02d", isoYear, isoWeek),
			CreatedAt:         now,
		})
	}

	written, err := s.forecasts.ReplaceLive(ctx, productID, weekStart, rows)
	if err != nil {
		return 0, fmt.Errorf("replace live forecasts for product %d: %w", productID, err)
	}

	for _, p := range points {
		gapDays := int(p.Date.Sub(today).Hours() / 24)
		snap := &domain.ForecastSnapshot{
			ProductID:         productID,
			ForecastDate:      p.Date,
			PredictedQuantity: float64(p.Prediction),
			SnapshotCreatedAt: now,
			ModelUsed:         p.Model,
			ForecastHorizon:   domain.HorizonLabel(gapDays),
			ConfidenceLower:   float64(p.ConfidenceLower),
			ConfidenceUpper:   float64(p.ConfidenceUpper),
			MAE:               p.MAE,
			RMSE:              p.RMSE,
		}
		if err := s.recorder.Record(ctx, snap); err != nil {
			logger.Log.Warn().Err(err).
				Int64("product_id", productID).
				Str("forecast_date", p.Date.Format("2006-01-02")).
				Msg("live snapshot write failed")
		}
	}

	for _, wk := range weekOrder {
		snap := &domain.ForecastSnapshot{
			ProductID:         productID,
			ForecastDate:      wk,
			PredictedQuantity: float64(weekTotals[wk]),
			SnapshotCreatedAt: now,
			ModelUsed:         aggregatedDailyModel,
			ForecastHorizon:   domain.HorizonSevenDay,
		}
		if err := s.recorder.Record(ctx, snap); err != nil {
			logger.Log.Warn().Err(err).
				Int64("product_id", productID).
				Str("forecast_date", wk.Format("2006-01-02")).
				Msg("weekly snapshot write failed")
		}
	}

	logger.Log.Info().
		Int64("product_id", productID).
		Int("forecasts_written", written).
		Str("week_start", weekStart.Format("2006-01-02")).
		Msg("live multi-horizon forecasts generated")
	return written, nil
}

// mondayOf returns the Monday of the week containing day.
func mondayOf(day time.Time) time.Time {
	return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
}

// RollingRetrainAll walks every product with sales history. Per-product
// failures are logged and do not stop the rest of the fleet.
func (s *Scheduler) RollingRetrainAll(ctx context.Context, opts Options) ([]Result, error) {
	ids, err := s.sales.ProductIDsWithSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products with sales: %w", err)
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		res, err := s.RollingRetrain(ctx, id, opts)
		if err != nil {
			if ctx.Err() != nil {
				return results, err
			}
			logger.Log.Error().Err(err).Int64("product_id", id).Msg("rolling retrain failed for product")
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}
