// internal/repository/postgres/snapshot_repository.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
)

type snapshotRepository struct {
	db *DB
}

func NewSnapshotRepository(db *DB) repository.SnapshotRepository {
	return &snapshotRepository{db: db}
}

// Upsert replaces the predicted side of an existing snapshot on conflict;
// actual_quantity and the accuracy fields are deliberately absent from the
// update so reconciliation survives re-training.
func (r *snapshotRepository) Upsert(ctx context.Context, s *domain.ForecastSnapshot) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		INSERT INTO forecast_snapshots (
			product_id, forecast_date, predicted_quantity, snapshot_created_at,
			model_used, forecast_horizon, confidence_lower, confidence_upper, mae, rmse
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (product_id, forecast_date, forecast_horizon) DO UPDATE SET
			predicted_quantity  = EXCLUDED.predicted_quantity,
			snapshot_created_at = EXCLUDED.snapshot_created_at,
			model_used          = EXCLUDED.model_used,
			confidence_lower    = EXCLUDED.confidence_lower,
			confidence_upper    = EXCLUDED.confidence_upper,
			mae                 = EXCLUDED.mae,
			rmse                = EXCLUDED.rmse
		RETURNING id`
	err = r.db.QueryRowxContext(ctx, query,
		s.ProductID, domain.Day(s.ForecastDate), s.PredictedQuantity, s.SnapshotCreatedAt,
		s.ModelUsed, s.ForecastHorizon, s.ConfidenceLower, s.ConfidenceUpper, s.MAE, s.RMSE,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepository) Unreconciled(ctx context.Context, productID int64, forecastDate time.Time) ([]domain.ForecastSnapshot, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var snaps []domain.ForecastSnapshot
	query := `
		SELECT * FROM forecast_snapshots
		WHERE product_id = $1 AND forecast_date = $2 AND actual_quantity IS NULL
		ORDER BY id`
	if err := r.db.SelectContext(ctx, &snaps, query, productID, domain.Day(forecastDate)); err != nil {
		return nil, fmt.Errorf("failed to load unreconciled snapshots: %w", err)
	}
	return snaps, nil
}

func (r *snapshotRepository) SetActual(ctx context.Context, snapshotID int64, actual, accuracy, errorPct float64) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		UPDATE forecast_snapshots
		SET actual_quantity = $2, accuracy = $3, error_percentage = $4
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, snapshotID, actual, accuracy, errorPct)
	if err != nil {
		return fmt.Errorf("failed to set actual on snapshot %d: %w", snapshotID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *snapshotRepository) ReconciledInWindow(ctx context.Context, horizon string, from, to time.Time) ([]domain.ForecastSnapshot, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var snaps []domain.ForecastSnapshot
	query := `
		SELECT * FROM forecast_snapshots
		WHERE forecast_horizon = $1 AND actual_quantity IS NOT NULL
		  AND forecast_date BETWEEN $2 AND $3
		ORDER BY forecast_date`
	if err := r.db.SelectContext(ctx, &snaps, query, horizon, domain.Day(from), domain.Day(to)); err != nil {
		return nil, fmt.Errorf("failed to load reconciled snapshots for horizon %s: %w", horizon, err)
	}
	return snaps, nil
}

func (r *snapshotRepository) ReconciledForProduct(ctx context.Context, productID int64, from, to time.Time) ([]domain.ForecastSnapshot, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var snaps []domain.ForecastSnapshot
	query := `
		SELECT * FROM forecast_snapshots
		WHERE product_id = $1 AND actual_quantity IS NOT NULL
		  AND forecast_date BETWEEN $2 AND $3
		ORDER BY forecast_date`
	if err := r.db.SelectContext(ctx, &snaps, query, productID, domain.Day(from), domain.Day(to)); err != nil {
		return nil, fmt.Errorf("failed to load reconciled snapshots for product %d: %w", productID, err)
	}
	return snaps, nil
}
