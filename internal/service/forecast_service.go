// internal/service/forecast_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/restockcast/internal/alerting"
	"github.com/andresuchdata/restockcast/internal/cache"
	"github.com/andresuchdata/restockcast/internal/config"
	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/export"
	"github.com/andresuchdata/restockcast/internal/forecast"
	"github.com/andresuchdata/restockcast/internal/repository"
	"github.com/andresuchdata/restockcast/internal/retrain"
	"github.com/andresuchdata/restockcast/internal/snapshot"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

// ForecastService is the application facade over the forecasting core:
// ad hoc forecasts, the rolling retrain walk, snapshot reconciliation,
// accuracy reporting and alert evaluation.
type ForecastService struct {
	sales  repository.SalesRepository
	alerts repository.AlertRepository

	scheduler *retrain.Scheduler
	recorder  *snapshot.Recorder
	evaluator *snapshot.Evaluator
	engine    *alerting.Engine
	accCache  cache.AccuracyCache
	exporter  *export.Exporter

	retrainOpts retrain.Options
}

type Deps struct {
	Sales     repository.SalesRepository
	Forecasts repository.ForecastRepository
	Snapshots repository.SnapshotRepository
	Products  repository.ProductRepository
	Alerts    repository.AlertRepository
	Notifier  alerting.Notifier
	Cache     cache.AccuracyCache
	Exporter  *export.Exporter
	Forecast  config.ForecastConfig
}

func NewForecastService(d Deps) *ForecastService {
	recorder := snapshot.NewRecorder(d.Snapshots, d.Sales)
	accCache := d.Cache
	if accCache == nil {
		accCache = cache.NewNoopAccuracyCache()
	}

	return &ForecastService{
		sales:     d.Sales,
		alerts:    d.Alerts,
		scheduler: retrain.NewScheduler(d.Sales, d.Forecasts, recorder),
		recorder:  recorder,
		evaluator: snapshot.NewEvaluator(d.Snapshots),
		engine:    alerting.NewEngine(d.Products, d.Forecasts, d.Alerts, d.Notifier, d.Forecast.DefaultReorderPoint),
		accCache:  accCache,
		exporter:  d.Exporter,
		retrainOpts: retrain.Options{
			FoundationDaysLarge: d.Forecast.FoundationDaysLarge,
			FoundationDaysSmall: d.Forecast.FoundationDaysSmall,
			HorizonDays:         d.Forecast.HorizonDays,
			StepDays:            d.Forecast.StepDays,
		},
	}
}

// Forecast runs an ad hoc forecast without persisting anything. A non-nil
// cutoff caps the training data, and a zero start date begins the horizon
// on the day after the last observation.
func (s *ForecastService) Forecast(ctx context.Context, productID int64, horizonDays int, cutoff *time.Time, start time.Time) ([]forecast.Point, error) {
	if cutoff != nil && !start.IsZero() && !start.After(*cutoff) {
		return nil, &domain.InvalidDateRangeError{
			Start:  domain.Day(start),
			End:    domain.Day(*cutoff),
			Reason: "forecast start must fall after the training cutoff",
		}
	}

	series, err := s.sales.DailySeries(ctx, productID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load series for product %d: %w", productID, err)
	}
	points, err := forecast.Forecast(series, horizonDays, start)
	if err != nil {
		var ide *domain.InsufficientDataError
		if errors.As(err, &ide) {
			ide.ProductID = productID
		}
		return nil, err
	}
	return points, nil
}

// RetrainProduct walks one product forward from its last generation cutoff.
func (s *ForecastService) RetrainProduct(ctx context.Context, productID int64) (*retrain.Result, error) {
	return s.scheduler.RollingRetrain(ctx, productID, s.retrainOpts)
}

// RetrainAll walks every product with sales history.
func (s *ForecastService) RetrainAll(ctx context.Context) ([]retrain.Result, error) {
	return s.scheduler.RollingRetrainAll(ctx, s.retrainOpts)
}

// GenerateLiveForecasts replaces a product's forward-looking forecast set
// with fresh daily predictions and weekly aggregates.
func (s *ForecastService) GenerateLiveForecasts(ctx context.Context, productID int64) (int, error) {
	return s.scheduler.GenerateMultiHorizon(ctx, productID, s.retrainOpts.HorizonDays)
}

// Accuracy reports multi-horizon accuracy, cache-aside. Cache failures
// degrade to a direct computation.
func (s *ForecastService) Accuracy(ctx context.Context, daysBack int) (domain.HorizonAccuracy, error) {
	if acc, ok, err := s.accCache.GetMultiHorizon(ctx, daysBack); err != nil {
		logger.Log.Warn().Err(err).Msg("accuracy cache read failed")
	} else if ok {
		return acc, nil
	}

	acc, err := s.evaluator.MultiHorizonAccuracy(ctx, daysBack)
	if err != nil {
		return domain.HorizonAccuracy{}, err
	}

	if err := s.accCache.SetMultiHorizon(ctx, daysBack, acc); err != nil {
		logger.Log.Warn().Err(err).Msg("accuracy cache write failed")
	}
	return acc, nil
}

// ProductAccuracy reports one product's accuracy over the window.
func (s *ForecastService) ProductAccuracy(ctx context.Context, productID int64, daysBack int) (float64, error) {
	return s.evaluator.ProductAccuracy(ctx, productID, daysBack)
}

// ReconcileActual fills actuals into a product's snapshots for one day and
// invalidates the accuracy cache when anything changed.
func (s *ForecastService) ReconcileActual(ctx context.Context, productID int64, day time.Time) (int, error) {
	updated, err := s.recorder.ReconcileActual(ctx, productID, day)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		if err := s.accCache.InvalidateAll(ctx); err != nil {
			logger.Log.Warn().Err(err).Msg("accuracy cache invalidation failed")
		}
	}
	return updated, nil
}

// ComputeAlerts evaluates restock urgency across the catalog.
func (s *ForecastService) ComputeAlerts(ctx context.Context) ([]domain.AlertView, error) {
	return s.engine.ComputeAlerts(ctx)
}

// ActiveAlerts lists currently active alerts, newest first.
func (s *ForecastService) ActiveAlerts(ctx context.Context) ([]domain.Alert, error) {
	return s.alerts.Active(ctx)
}

// AcknowledgeAlert marks an alert as seen by a user.
func (s *ForecastService) AcknowledgeAlert(ctx context.Context, alertID, userID int64) error {
	return s.alerts.Acknowledge(ctx, alertID, userID)
}

// ResolveAlert deactivates an alert.
func (s *ForecastService) ResolveAlert(ctx context.Context, alertID int64) error {
	return s.alerts.Resolve(ctx, alertID)
}

// ExportAlerts archives the active alerts as CSV to object storage.
// Returns the object key.
func (s *ForecastService) ExportAlerts(ctx context.Context) (string, error) {
	if s.exporter == nil {
		return "", fmt.Errorf("object storage is not configured")
	}
	return s.exporter.ExportActiveAlerts(ctx)
}

// OnSalesImported is the hook run after a sales import lands: it extends
// the retrain walk over the new days, refreshes the live forecast set,
// reconciles snapshots for the imported dates and re-evaluates alerts.
func (s *ForecastService) OnSalesImported(ctx context.Context, productIDs []int64, importedDays []time.Time) error {
	for _, id := range productIDs {
		if _, err := s.scheduler.RollingRetrain(ctx, id, s.retrainOpts); err != nil {
			logger.Log.Error().Err(err).Int64("product_id", id).Msg("post-import retrain failed")
		}
		if _, err := s.GenerateLiveForecasts(ctx, id); err != nil && !domain.IsInsufficientData(err) {
			logger.Log.Error().Err(err).Int64("product_id", id).Msg("post-import live forecast generation failed")
		}
		for _, day := range importedDays {
			if _, err := s.ReconcileActual(ctx, id, day); err != nil {
				logger.Log.Error().Err(err).Int64("product_id", id).
					Str("date", day.Format("2006-01-02")).Msg("post-import reconciliation failed")
			}
		}
	}

	if _, err := s.engine.ComputeAlerts(ctx); err != nil {
		return fmt.Errorf("post-import alert evaluation: %w", err)
	}
	return nil
}
