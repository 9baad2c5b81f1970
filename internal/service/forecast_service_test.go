package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/restockcast/internal/config"
	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository/memory"
)

type testEnv struct {
	svc       *ForecastService
	sales     *memory.SalesRepository
	forecasts *memory.ForecastRepository
	snapshots *memory.SnapshotRepository
	products  *memory.ProductRepository
	alerts    *memory.AlertRepository
}

func newTestEnv() *testEnv {
	env := &testEnv{
		sales:     memory.NewSalesRepository(),
		forecasts: memory.NewForecastRepository(),
		snapshots: memory.NewSnapshotRepository(),
		products:  memory.NewProductRepository(),
		alerts:    memory.NewAlertRepository(),
	}
	env.svc = NewForecastService(Deps{
		Sales:     env.sales,
		Forecasts: env.forecasts,
		Snapshots: env.snapshots,
		Products:  env.products,
		Alerts:    env.alerts,
		Forecast: config.ForecastConfig{
			FoundationDaysLarge: 365,
			FoundationDaysSmall: 90,
			HorizonDays:         7,
			StepDays:            1,
			DefaultReorderPoint: 20,
		},
	})
	return env
}

func seedSales(env *testEnv, productID int64, start time.Time, days int) {
	points := make([]domain.SalesPoint, days)
	for i := range points {
		points[i] = domain.SalesPoint{Date: start.AddDate(0, 0, i), Quantity: 10 + float64(i%5)}
	}
	env.sales.SetSeries(productID, points)
}

func TestServiceForecastAttachesProductID(t *testing.T) {
	env := newTestEnv()
	env.sales.SetSeries(1, []domain.SalesPoint{
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Quantity: 3},
	})

	_, err := env.svc.Forecast(context.Background(), 1, 7, nil, time.Time{})
	require.Error(t, err)

	var ide *domain.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, int64(1), ide.ProductID)
}

func TestServiceForecastRejectsStartBeforeCutoff(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSales(env, 1, start, 60)

	cutoff := start.AddDate(0, 0, 40)
	_, err := env.svc.Forecast(context.Background(), 1, 5, &cutoff, start.AddDate(0, 0, 20))
	require.Error(t, err)

	var idr *domain.InvalidDateRangeError
	require.True(t, errors.As(err, &idr))
}

func TestServiceForecastHonorsCutoff(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSales(env, 1, start, 60)

	cutoff := start.AddDate(0, 0, 29)
	points, err := env.svc.Forecast(context.Background(), 1, 5, &cutoff, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 5)
	// Horizon starts the day after the cutoff, not after the full series.
	assert.Equal(t, domain.Day(cutoff.AddDate(0, 0, 1)), points[0].Date)
}

func TestServiceRetrainThenAccuracyAndAlerts(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSales(env, 1, start, 95)
	env.products.Put(domain.Product{ID: 1, Name: "Cold Brew", CurrentStock: 0})

	results, err := env.svc.RetrainAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].ForecastsWritten, 0)
	assert.Greater(t, results[0].SnapshotsWritten, 0)

	// Backtested forecast dates overlap the observed series; reconcile one.
	day := start.AddDate(0, 0, 91)
	updated, err := env.svc.ReconcileActual(context.Background(), 1, day)
	require.NoError(t, err)
	assert.Greater(t, updated, 0)

	acc, err := env.svc.ProductAccuracy(context.Background(), 1, 10000)
	require.NoError(t, err)
	assert.Greater(t, acc, 0.0)

	// The backtested forecasts target past dates, so evaluation falls back
	// to the reorder-point check; zero stock trips it hard.
	views, err := env.svc.ComputeAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].ThresholdBased)
	assert.Equal(t, domain.SeverityHigh, views[0].Severity)
}

func TestServiceOnSalesImported(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSales(env, 1, start, 92)
	env.products.Put(domain.Product{ID: 1, Name: "Cold Brew", CurrentStock: 500, ReorderPoint: 5})

	_, err := env.svc.RetrainAll(context.Background())
	require.NoError(t, err)
	before := env.forecasts.Count()

	// Two more days of sales arrive.
	seedSales(env, 1, start, 94)
	imported := []time.Time{start.AddDate(0, 0, 92), start.AddDate(0, 0, 93)}
	require.NoError(t, env.svc.OnSalesImported(context.Background(), []int64{1}, imported))

	assert.Greater(t, env.forecasts.Count(), before, "import should extend the walk")

	// The import hook also refreshes the live forecast set, daily rows
	// plus weekly aggregates.
	var daily, weekly int
	for _, f := range env.forecasts.All() {
		if f.GeneratedAt != nil {
			continue
		}
		switch f.AggregationLevel {
		case domain.AggregationDaily:
			daily++
		case domain.AggregationWeekly:
			weekly++
		}
	}
	assert.Greater(t, daily, 0)
	assert.Greater(t, weekly, 0)
}

func TestServiceGenerateLiveForecasts(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedSales(env, 1, start, 60)

	written, err := env.svc.GenerateLiveForecasts(context.Background(), 1)
	require.NoError(t, err)
	assert.Greater(t, written, 0)

	_, err = env.svc.GenerateLiveForecasts(context.Background(), 99)
	require.Error(t, err)
	assert.True(t, domain.IsInsufficientData(err))
}

func TestServiceExportWithoutStorage(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.ExportAlerts(context.Background())
	require.Error(t, err)
}
