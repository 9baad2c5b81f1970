// internal/repository/postgres/alert_repository.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
)

type alertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) repository.AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Create(ctx context.Context, a *domain.Alert) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		INSERT INTO alerts (
			product_id, alert_type, severity, message,
			recommended_order_qty, is_active, is_acknowledged, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	err = r.db.QueryRowxContext(ctx, query,
		a.ProductID, a.AlertType, a.Severity, a.Message,
		a.RecommendedOrderQty, a.IsActive, a.IsAcknowledged, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.PersistenceConflictError{Entity: "alert", Err: err}
		}
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *alertRepository) OpenUnacknowledged(ctx context.Context, productID int64, alertType string) (*domain.Alert, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var a domain.Alert
	query := `
		SELECT * FROM alerts
		WHERE product_id = $1 AND alert_type = $2 AND is_active AND NOT is_acknowledged
		LIMIT 1`
	if err := r.db.GetContext(ctx, &a, query, productID, alertType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load open alert for product %d: %w", productID, err)
	}
	return &a, nil
}

func (r *alertRepository) Escalate(ctx context.Context, alertID int64, severity domain.Severity, message string, recommendedQty int) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		UPDATE alerts
		SET severity = $2, message = $3, recommended_order_qty = $4
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, alertID, severity, message, recommendedQty)
	if err != nil {
		return fmt.Errorf("failed to escalate alert %d: %w", alertID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *alertRepository) Acknowledge(ctx context.Context, alertID, userID int64) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		UPDATE alerts
		SET is_acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = now()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, alertID, userID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %d: %w", alertID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *alertRepository) Resolve(ctx context.Context, alertID int64) error {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := `
		UPDATE alerts
		SET is_active = FALSE, resolved_at = now()
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, alertID)
	if err != nil {
		return fmt.Errorf("failed to resolve alert %d: %w", alertID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *alertRepository) Active(ctx context.Context) ([]domain.Alert, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var alerts []domain.Alert
	query := `SELECT * FROM alerts WHERE is_active ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	return alerts, nil
}
