// internal/repository/postgres/sales_repository.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
)

type salesRepository struct {
	db *DB
}

func NewSalesRepository(db *DB) repository.SalesRepository {
	return &salesRepository{db: db}
}

func (r *salesRepository) DailySeries(ctx context.Context, productID int64, cutoff *time.Time) ([]domain.SalesPoint, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	query := `
		SELECT sale_date AS date, SUM(quantity) AS quantity
		FROM sales
		WHERE product_id = $1`
	args := []any{productID}
	if cutoff != nil {
		query += ` AND sale_date <= $2`
		args = append(args, domain.Day(*cutoff))
	}
	query += `
		GROUP BY sale_date
		ORDER BY sale_date`

	var points []domain.SalesPoint
	if err := r.db.SelectContext(ctx, &points, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load daily series for product %d: %w", productID, err)
	}
	return points, nil
}

func (r *salesRepository) SaleDateRange(ctx context.Context, productID int64) (time.Time, time.Time, bool, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	defer release()

	var row struct {
		First sql.NullTime `db:"first"`
		Last  sql.NullTime `db:"last"`
	}
	query := `SELECT MIN(sale_date) AS first, MAX(sale_date) AS last FROM sales WHERE product_id = $1`
	if err := r.db.GetContext(ctx, &row, query, productID); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("failed to get sale date range for product %d: %w", productID, err)
	}
	if !row.First.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return row.First.Time, row.Last.Time, true, nil
}

func (r *salesRepository) SumQuantityOn(ctx context.Context, productID int64, day time.Time) (float64, bool, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return 0, false, err
	}
	defer release()

	var sum sql.NullFloat64
	query := `SELECT SUM(quantity) FROM sales WHERE product_id = $1 AND sale_date = $2`
	if err := r.db.GetContext(ctx, &sum, query, productID, domain.Day(day)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to sum sales for product %d: %w", productID, err)
	}
	if !sum.Valid {
		return 0, false, nil
	}
	return sum.Float64, true, nil
}

func (r *salesRepository) ProductIDsWithSales(ctx context.Context) ([]int64, error) {
	release, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var ids []int64
	query := `SELECT DISTINCT product_id FROM sales ORDER BY product_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list products with sales: %w", err)
	}
	return ids, nil
}
