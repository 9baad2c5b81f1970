// internal/repository/memory/memory.go

// Package memory provides map-backed repository implementations used by
// tests and local experimentation. They honor the same contracts as the
// postgres implementations, including the alert uniqueness constraint and
// the snapshot upsert key.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
)

// SalesRepository holds each product's daily series in memory.
type SalesRepository struct {
	mu     sync.RWMutex
	series map[int64][]domain.SalesPoint
}

func NewSalesRepository() *SalesRepository {
	return &SalesRepository{series: make(map[int64][]domain.SalesPoint)}
}

// SetSeries replaces a product's series. Points are normalized to midnight
// UTC and sorted by date.
func (r *SalesRepository) SetSeries(productID int64, points []domain.SalesPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]domain.SalesPoint, len(points))
	for i, p := range points {
		cp[i] = domain.SalesPoint{Date: domain.Day(p.Date), Quantity: p.Quantity}
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
	r.series[productID] = cp
}

func (r *SalesRepository) DailySeries(_ context.Context, productID int64, cutoff *time.Time) ([]domain.SalesPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SalesPoint
	for _, p := range r.series[productID] {
		if cutoff != nil && p.Date.After(domain.Day(*cutoff)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *SalesRepository) SaleDateRange(_ context.Context, productID int64) (time.Time, time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.series[productID]
	if len(s) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return s[0].Date, s[len(s)-1].Date, true, nil
}

func (r *SalesRepository) SumQuantityOn(_ context.Context, productID int64, day time.Time) (float64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	day = domain.Day(day)
	var sum float64
	found := false
	for _, p := range r.series[productID] {
		if p.Date.Equal(day) {
			sum += p.Quantity
			found = true
		}
	}
	return sum, found, nil
}

func (r *SalesRepository) ProductIDsWithSales(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.series))
	for id, s := range r.series {
		if len(s) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ForecastRepository stores forecasts in insertion order.
type ForecastRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   []domain.Forecast
}

func NewForecastRepository() *ForecastRepository {
	return &ForecastRepository{nextID: 1}
}

func (r *ForecastRepository) Insert(_ context.Context, f *domain.Forecast) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.ID = r.nextID
	r.nextID++
	f.ForecastDate = domain.Day(f.ForecastDate)
	if f.GeneratedAt != nil {
		g := domain.Day(*f.GeneratedAt)
		f.GeneratedAt = &g
	}
	r.rows = append(r.rows, *f)
	return nil
}

func (r *ForecastRepository) InsertBatch(_ context.Context, fs []*domain.Forecast) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, f := range fs {
		f.ForecastDate = domain.Day(f.ForecastDate)
		if f.GeneratedAt != nil {
			g := domain.Day(*f.GeneratedAt)
			f.GeneratedAt = &g
		}
		if f.GeneratedAt != nil && r.existsLocked(f.ProductID, f.ForecastDate, *f.GeneratedAt, f.AggregationLevel) {
			continue
		}
		f.ID = r.nextID
		r.nextID++
		r.rows = append(r.rows, *f)
		inserted++
	}
	return inserted, nil
}

func (r *ForecastRepository) ReplaceLive(_ context.Context, productID int64, from time.Time, fs []*domain.Forecast) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from = domain.Day(from)
	kept := r.rows[:0]
	for _, f := range r.rows {
		if f.ProductID == productID && f.GeneratedAt == nil && !f.ForecastDate.Before(from) {
			continue
		}
		kept = append(kept, f)
	}
	r.rows = kept
	for _, f := range fs {
		f.ForecastDate = domain.Day(f.ForecastDate)
		f.ID = r.nextID
		r.nextID++
		r.rows = append(r.rows, *f)
	}
	return len(fs), nil
}

func (r *ForecastRepository) existsLocked(productID int64, forecastDate, generatedAt time.Time, aggregationLevel string) bool {
	for _, f := range r.rows {
		if f.ProductID == productID &&
			f.ForecastDate.Equal(forecastDate) &&
			f.GeneratedAt != nil && f.GeneratedAt.Equal(generatedAt) &&
			f.AggregationLevel == aggregationLevel {
			return true
		}
	}
	return false
}

func (r *ForecastRepository) Exists(_ context.Context, productID int64, forecastDate, generatedAt time.Time, aggregationLevel string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	forecastDate = domain.Day(forecastDate)
	generatedAt = domain.Day(generatedAt)
	for _, f := range r.rows {
		if f.ProductID == productID &&
			f.ForecastDate.Equal(forecastDate) &&
			f.GeneratedAt != nil && f.GeneratedAt.Equal(generatedAt) &&
			f.AggregationLevel == aggregationLevel {
			return true, nil
		}
	}
	return false, nil
}

func (r *ForecastRepository) LastGeneratedAt(_ context.Context, productID int64) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *time.Time
	for _, f := range r.rows {
		if f.ProductID != productID || f.GeneratedAt == nil {
			continue
		}
		if latest == nil || f.GeneratedAt.After(*latest) {
			g := *f.GeneratedAt
			latest = &g
		}
	}
	return latest, nil
}

func (r *ForecastRepository) LatestForTargetDate(_ context.Context, productID int64, targetDate time.Time) (*domain.Forecast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	targetDate = domain.Day(targetDate)
	var best *domain.Forecast
	for i := range r.rows {
		f := &r.rows[i]
		if f.ProductID != productID || !f.ForecastDate.Equal(targetDate) {
			continue
		}
		if best == nil || f.CreatedAt.After(best.CreatedAt) || (f.CreatedAt.Equal(best.CreatedAt) && f.ID > best.ID) {
			best = f
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *ForecastRepository) DeleteFrom(_ context.Context, productID int64, from time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	from = domain.Day(from)
	kept := r.rows[:0]
	var deleted int64
	for _, f := range r.rows {
		if f.ProductID == productID && f.GeneratedAt != nil && !f.GeneratedAt.Before(from) {
			deleted++
			continue
		}
		kept = append(kept, f)
	}
	r.rows = kept
	return deleted, nil
}

// Count returns the number of stored forecasts, for test assertions.
func (r *ForecastRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// All returns every stored forecast, for test assertions.
func (r *ForecastRepository) All() []domain.Forecast {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Forecast, len(r.rows))
	copy(out, r.rows)
	return out
}

// SnapshotRepository enforces the (product, forecast date, horizon)
// uniqueness of the postgres table.
type SnapshotRepository struct {
	mu     sync.RWMutex
	nextID int64
	rows   []domain.ForecastSnapshot
}

func NewSnapshotRepository() *SnapshotRepository {
	return &SnapshotRepository{nextID: 1}
}

func (r *SnapshotRepository) Upsert(_ context.Context, s *domain.ForecastSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ForecastDate = domain.Day(s.ForecastDate)
	for i := range r.rows {
		row := &r.rows[i]
		if row.ProductID == s.ProductID &&
			row.ForecastDate.Equal(s.ForecastDate) &&
			row.ForecastHorizon == s.ForecastHorizon {
			// Replace predicted fields, keep actuals.
			row.PredictedQuantity = s.PredictedQuantity
			row.SnapshotCreatedAt = s.SnapshotCreatedAt
			row.ModelUsed = s.ModelUsed
			row.ConfidenceLower = s.ConfidenceLower
			row.ConfidenceUpper = s.ConfidenceUpper
			row.MAE = s.MAE
			row.RMSE = s.RMSE
			s.ID = row.ID
			return nil
		}
	}
	s.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, *s)
	return nil
}

func (r *SnapshotRepository) Unreconciled(_ context.Context, productID int64, forecastDate time.Time) ([]domain.ForecastSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	forecastDate = domain.Day(forecastDate)
	var out []domain.ForecastSnapshot
	for _, s := range r.rows {
		if s.ProductID == productID && s.ForecastDate.Equal(forecastDate) && s.ActualQuantity == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SnapshotRepository) SetActual(_ context.Context, snapshotID int64, actual, accuracy, errorPct float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == snapshotID {
			r.rows[i].ActualQuantity = &actual
			r.rows[i].Accuracy = &accuracy
			r.rows[i].ErrorPercentage = &errorPct
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *SnapshotRepository) ReconciledInWindow(_ context.Context, horizon string, from, to time.Time) ([]domain.ForecastSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	from, to = domain.Day(from), domain.Day(to)
	var out []domain.ForecastSnapshot
	for _, s := range r.rows {
		if s.ForecastHorizon == horizon && s.ActualQuantity != nil &&
			!s.ForecastDate.Before(from) && !s.ForecastDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *SnapshotRepository) ReconciledForProduct(_ context.Context, productID int64, from, to time.Time) ([]domain.ForecastSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	from, to = domain.Day(from), domain.Day(to)
	var out []domain.ForecastSnapshot
	for _, s := range r.rows {
		if s.ProductID == productID && s.ActualQuantity != nil &&
			!s.ForecastDate.Before(from) && !s.ForecastDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

// All returns every stored snapshot, for test assertions.
func (r *SnapshotRepository) All() []domain.ForecastSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ForecastSnapshot, len(r.rows))
	copy(out, r.rows)
	return out
}

// AlertRepository simulates the partial unique index on active
// unacknowledged alerts.
type AlertRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []domain.Alert
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{nextID: 1}
}

func (r *AlertRepository) Create(_ context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ProductID == a.ProductID && row.AlertType == a.AlertType &&
			row.IsActive && !row.IsAcknowledged {
			return &domain.PersistenceConflictError{
				Entity: "alert",
				Err:    errors.New("active unacknowledged alert already exists"),
			}
		}
	}
	a.ID = r.nextID
	r.nextID++
	r.rows = append(r.rows, *a)
	return nil
}

func (r *AlertRepository) OpenUnacknowledged(_ context.Context, productID int64, alertType string) (*domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		a := &r.rows[i]
		if a.ProductID == productID && a.AlertType == alertType && a.IsActive && !a.IsAcknowledged {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *AlertRepository) Escalate(_ context.Context, alertID int64, severity domain.Severity, message string, recommendedQty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == alertID {
			r.rows[i].Severity = severity
			r.rows[i].Message = message
			r.rows[i].RecommendedOrderQty = recommendedQty
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *AlertRepository) Acknowledge(_ context.Context, alertID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == alertID {
			now := time.Now().UTC()
			r.rows[i].IsAcknowledged = true
			r.rows[i].AcknowledgedBy = &userID
			r.rows[i].AcknowledgedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *AlertRepository) Resolve(_ context.Context, alertID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == alertID {
			now := time.Now().UTC()
			r.rows[i].IsActive = false
			r.rows[i].ResolvedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *AlertRepository) Active(_ context.Context) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Alert
	for _, a := range r.rows {
		if a.IsActive {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ProductRepository is a fixed product catalog.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[int64]domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[int64]domain.Product)}
}

func (r *ProductRepository) Put(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

func (r *ProductRepository) Get(_ context.Context, productID int64) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *ProductRepository) List(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
