// internal/repository/postgres/forecast_repository.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
)

type forecastRepository struct {
	db *DB
}

func NewForecastRepository(db *DB) repository.ForecastRepository {
	return &forecastRepository{db: db}
}

func (r *forecastRepository) Insert(ctx context.Context, f *domain.Forecast) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		INSERT INTO forecasts (
			product_id, forecast_date, predicted_quantity,
			confidence_lower, confidence_upper, model_used,
			mae, rmse, aggregation_level, period_key, generated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	err = r.db.QueryRowxContext(ctx, query,
		f.ProductID, domain.Day(f.ForecastDate), f.PredictedQuantity,
		f.ConfidenceLower, f.ConfidenceUpper, f.ModelUsed,
		f.MAE, f.RMSE, f.AggregationLevel, f.PeriodKey, f.GeneratedAt, f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.PersistenceConflictError{Entity: "forecast", Err: err}
		}
		return fmt.Errorf("failed to insert forecast: %w", err)
	}
	return nil
}

func (r *forecastRepository) InsertBatch(ctx context.Context, fs []*domain.Forecast) (int, error) {
	if len(fs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO forecasts (
			product_id, forecast_date, predicted_quantity,
			confidence_lower, confidence_upper, model_used,
			mae, rmse, aggregation_level, period_key, generated_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (product_id, forecast_date, generated_at, aggregation_level)
			WHERE generated_at IS NOT NULL DO NOTHING`

	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, f := range fs {
			res, err := tx.ExecContext(ctx, query,
				f.ProductID, domain.Day(f.ForecastDate), f.PredictedQuantity,
				f.ConfidenceLower, f.ConfidenceUpper, f.ModelUsed,
				f.MAE, f.RMSE, f.AggregationLevel, f.PeriodKey, f.GeneratedAt, f.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to insert forecast batch row: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read batch insert result: %w", err)
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *forecastRepository) ReplaceLive(ctx context.Context, productID int64, from time.Time, fs []*domain.Forecast) (int, error) {
	inserted := 0
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM forecasts
			WHERE product_id = $1 AND generated_at IS NULL AND forecast_date >= $2`,
			productID, domain.Day(from))
		if err != nil {
			return fmt.Errorf("failed to clear live forecasts for product %d: %w", productID, err)
		}

		query := `
			INSERT INTO forecasts (
				product_id, forecast_date, predicted_quantity,
				confidence_lower, confidence_upper, model_used,
				mae, rmse, aggregation_level, period_key, generated_at, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING id`
		for _, f := range fs {
			err := tx.QueryRowxContext(ctx, query,
				f.ProductID, domain.Day(f.ForecastDate), f.PredictedQuantity,
				f.ConfidenceLower, f.ConfidenceUpper, f.ModelUsed,
				f.MAE, f.RMSE, f.AggregationLevel, f.PeriodKey, f.GeneratedAt, f.CreatedAt,
			).Scan(&f.ID)
			if err != nil {
				return fmt.Errorf("failed to insert live forecast: %w", err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *forecastRepository) Exists(ctx context.Context, productID int64, forecastDate, generatedAt time.Time, aggregationLevel string) (bool, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM forecasts
			WHERE product_id = $1 AND forecast_date = $2
			  AND generated_at = $3 AND aggregation_level = $4
		)`
	if err := r.db.GetContext(ctx, &exists, query,
		productID, domain.Day(forecastDate), domain.Day(generatedAt), aggregationLevel); err != nil {
		return false, fmt.Errorf("failed to check forecast existence: %w", err)
	}
	return exists, nil
}

func (r *forecastRepository) LastGeneratedAt(ctx context.Context, productID int64) (*time.Time, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var last sql.NullTime
	query := `SELECT MAX(generated_at) FROM forecasts WHERE product_id = $1`
	if err := r.db.GetContext(ctx, &last, query, productID); err != nil {
		return nil, fmt.Errorf("failed to get last generation cutoff for product %d: %w", productID, err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (r *forecastRepository) LatestForTargetDate(ctx context.Context, productID int64, targetDate time.Time) (*domain.Forecast, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var f domain.Forecast
	query := `
		SELECT * FROM forecasts
		WHERE product_id = $1 AND forecast_date = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	if err := r.db.GetContext(ctx, &f, query, productID, domain.Day(targetDate)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest forecast for product %d: %w", productID, err)
	}
	return &f, nil
}

func (r *forecastRepository) DeleteFrom(ctx context.Context, productID int64, from time.Time) (int64, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	query := `DELETE FROM forecasts WHERE product_id = $1 AND generated_at >= $2`
	res, err := r.db.ExecContext(ctx, query, productID, domain.Day(from))
	if err != nil {
		return 0, fmt.Errorf("failed to delete forecasts for product %d: %w", productID, err)
	}
	return res.RowsAffected()
}
