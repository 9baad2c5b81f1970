// internal/alerting/engine.go
package alerting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

// Order quantity multipliers. Forecast-based recommendations order 20%
// above the covering horizon's demand; a CRITICAL product with no 7-day
// forecast orders 1.5x the immediate shortage instead.
const (
	orderBufferFactor    = 1.2
	shortageOrderFactor  = 1.5
	thresholdOrderFactor = 2
)

// Notifier pushes alert events to connected listeners. Broadcasting must
// never block or fail alert evaluation.
type Notifier interface {
	Broadcast(event string, payload any)
}

// Engine evaluates restock urgency for every product by comparing current
// stock with the latest forecasts per horizon, persisting at most one open
// alert per product and type. Severity only ever escalates; a previously
// raised alert is never downgraded by a calmer evaluation.
type Engine struct {
	products            repository.ProductRepository
	forecasts           repository.ForecastRepository
	alerts              repository.AlertRepository
	notifier            Notifier
	defaultReorderPoint int
	now                 func() time.Time
}

func NewEngine(
	products repository.ProductRepository,
	forecasts repository.ForecastRepository,
	alerts repository.AlertRepository,
	notifier Notifier,
	defaultReorderPoint int,
) *Engine {
	if defaultReorderPoint <= 0 {
		defaultReorderPoint = 20
	}
	return &Engine{
		products:            products,
		forecasts:           forecasts,
		alerts:              alerts,
		notifier:            notifier,
		defaultReorderPoint: defaultReorderPoint,
		now:                 time.Now,
	}
}

// ComputeAlerts evaluates every product and returns the triggered views,
// most severe first. Products with healthy stock are omitted.
func (e *Engine) ComputeAlerts(ctx context.Context) ([]domain.AlertView, error) {
	products, err := e.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	views := make([]domain.AlertView, 0)
	for _, p := range products {
		view, triggered, err := e.evaluateProduct(ctx, &p)
		if err != nil {
			logger.Log.Error().Err(err).Int64("product_id", p.ID).Msg("alert evaluation failed for product")
			continue
		}
		if triggered {
			views = append(views, *view)
		}
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].SeverityRank > views[j].SeverityRank
	})
	return views, nil
}

func (e *Engine) evaluateProduct(ctx context.Context, p *domain.Product) (*domain.AlertView, bool, error) {
	today := domain.Day(e.now().UTC())

	f1 := e.latestPrediction(ctx, p.ID, today.AddDate(0, 0, 1))
	f7 := e.latestPrediction(ctx, p.ID, today.AddDate(0, 0, 7))
	f30 := e.latestPrediction(ctx, p.ID, today.AddDate(0, 0, 30))

	if f1 == nil && f7 == nil && f30 == nil {
		return e.evaluateThreshold(ctx, p)
	}

	stock := p.CurrentStock
	view := &domain.AlertView{
		ProductID:    p.ID,
		ProductName:  p.Name,
		Category:     p.Category,
		CurrentStock: stock,
		Forecasts:    domain.HorizonForecasts{OneDay: f1, SevenDay: f7, ThirtyDay: f30},
	}

	if f1 != nil && stock < *f1 {
		view.HorizonsAffected = append(view.HorizonsAffected, domain.HorizonOneDay)
	}
	if f7 != nil && stock < *f7 {
		view.HorizonsAffected = append(view.HorizonsAffected, domain.HorizonSevenDay)
	}
	if f30 != nil && stock < *f30 {
		view.HorizonsAffected = append(view.HorizonsAffected, domain.HorizonThirtyDay)
	}

	switch {
	case f1 != nil && stock < *f1:
		view.Severity = domain.SeverityCritical
		view.Shortage = float64(*f1 - stock)
		if f7 != nil {
			view.RecommendedOrderQty = int(math.Round(float64(*f7) * orderBufferFactor))
		} else {
			view.RecommendedOrderQty = int(math.Round(view.Shortage * shortageOrderFactor))
		}
		view.Message = fmt.Sprintf(
			"CRITICAL: %s stock (%d) below 1-day demand (%d). Shortage: %d units. Recommend ordering %d units immediately.",
			p.Name, stock, *f1, int(view.Shortage), view.RecommendedOrderQty)

	case f7 != nil && stock < *f7:
		view.Severity = domain.SeverityHigh
		view.Shortage = float64(*f7 - stock)
		view.RecommendedOrderQty = int(math.Round(float64(*f7) * orderBufferFactor))
		view.Message = fmt.Sprintf(
			"HIGH: %s stock (%d) below 7-day demand (%d). Shortage: %d units. Recommend ordering %d units soon.",
			p.Name, stock, *f7, int(view.Shortage), view.RecommendedOrderQty)

	case f30 != nil && stock < *f30:
		view.Severity = domain.SeverityMedium
		view.Shortage = float64(*f30 - stock)
		view.RecommendedOrderQty = int(math.Round(float64(*f30) * orderBufferFactor))
		view.Message = fmt.Sprintf(
			"MEDIUM: %s stock (%d) below 30-day demand (%d). Shortage: %d units. Recommend ordering %d units.",
			p.Name, stock, *f30, int(view.Shortage), view.RecommendedOrderQty)

	default:
		return nil, false, nil
	}

	view.SeverityRank = view.Severity.Rank()

	if err := e.persist(ctx, p.ID, domain.AlertTypeForecastShortage, view); err != nil {
		return nil, false, err
	}
	return view, true, nil
}

// evaluateThreshold is the fallback for products with no forecasts at all:
// a plain reorder-point check, HIGH when stock has fallen to half the
// reorder point or less.
func (e *Engine) evaluateThreshold(ctx context.Context, p *domain.Product) (*domain.AlertView, bool, error) {
	reorderPoint := p.ReorderPoint
	if reorderPoint <= 0 {
		reorderPoint = e.defaultReorderPoint
	}
	stock := p.CurrentStock
	if stock > reorderPoint {
		return nil, false, nil
	}

	severity := domain.SeverityMedium
	if stock*2 <= reorderPoint {
		severity = domain.SeverityHigh
	}

	view := &domain.AlertView{
		ProductID:           p.ID,
		ProductName:         p.Name,
		Category:            p.Category,
		CurrentStock:        stock,
		Severity:            severity,
		SeverityRank:        severity.Rank(),
		Shortage:            float64(reorderPoint - stock),
		RecommendedOrderQty: reorderPoint * thresholdOrderFactor,
		ThresholdBased:      true,
		Message: fmt.Sprintf(
			"%s: %s stock (%d) at or below reorder point (%d). Recommend ordering %d units.",
			severity, p.Name, stock, reorderPoint, reorderPoint*thresholdOrderFactor),
	}

	if err := e.persist(ctx, p.ID, domain.AlertTypeLowStock, view); err != nil {
		return nil, false, err
	}
	return view, true, nil
}

// persist creates or escalates the open alert for (product, type). A lost
// creation race is retried once as an escalation against the winner's row.
func (e *Engine) persist(ctx context.Context, productID int64, alertType string, view *domain.AlertView) error {
	existing, err := e.alerts.OpenUnacknowledged(ctx, productID, alertType)
	switch {
	case err == nil:
		if view.Severity.Rank() > existing.Severity.Rank() {
			if err := e.alerts.Escalate(ctx, existing.ID, view.Severity, view.Message, view.RecommendedOrderQty); err != nil {
				return fmt.Errorf("escalate alert %d: %w", existing.ID, err)
			}
		}
		return nil

	case errors.Is(err, domain.ErrNotFound):
		alert := &domain.Alert{
			ProductID:           productID,
			AlertType:           alertType,
			Severity:            view.Severity,
			Message:             view.Message,
			RecommendedOrderQty: view.RecommendedOrderQty,
			IsActive:            true,
			CreatedAt:           e.now().UTC(),
		}
		if err := e.alerts.Create(ctx, alert); err != nil {
			if domain.IsConflict(err) {
				return e.retryAsEscalation(ctx, productID, alertType, view)
			}
			return fmt.Errorf("create alert: %w", err)
		}
		if e.notifier != nil {
			e.notifier.Broadcast("restock_alert", alert)
		}
		return nil

	default:
		return fmt.Errorf("load open alert: %w", err)
	}
}

func (e *Engine) retryAsEscalation(ctx context.Context, productID int64, alertType string, view *domain.AlertView) error {
	existing, err := e.alerts.OpenUnacknowledged(ctx, productID, alertType)
	if err != nil {
		return fmt.Errorf("reload open alert after conflict: %w", err)
	}
	if view.Severity.Rank() > existing.Severity.Rank() {
		if err := e.alerts.Escalate(ctx, existing.ID, view.Severity, view.Message, view.RecommendedOrderQty); err != nil {
			return fmt.Errorf("escalate alert %d after conflict: %w", existing.ID, err)
		}
	}
	return nil
}

// latestPrediction returns the newest point estimate targeting exactly
// targetDate, nil when none exists. Repository errors are logged and
// treated as missing so one bad read never blocks the whole evaluation.
func (e *Engine) latestPrediction(ctx context.Context, productID int64, targetDate time.Time) *int {
	f, err := e.forecasts.LatestForTargetDate(ctx, productID, domain.Day(targetDate))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Log.Warn().Err(err).
				Int64("product_id", productID).
				Str("target_date", targetDate.Format("2006-01-02")).
				Msg("forecast lookup failed")
		}
		return nil
	}
	return &f.PredictedQuantity
}
