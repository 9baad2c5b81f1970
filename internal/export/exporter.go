// internal/export/exporter.go

// Package export renders active alerts as CSV and archives them to object
// storage for downstream reporting.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository"
	"github.com/andresuchdata/restockcast/internal/storage"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

const alertExportPrefix = "alerts/"

type Exporter struct {
	alerts   repository.AlertRepository
	products repository.ProductRepository
	store    storage.ObjectStorage
	now      func() time.Time
}

func NewExporter(alerts repository.AlertRepository, products repository.ProductRepository, store storage.ObjectStorage) *Exporter {
	return &Exporter{
		alerts:   alerts,
		products: products,
		store:    store,
		now:      time.Now,
	}
}

// ExportActiveAlerts writes the current active alerts to a timestamped CSV
// object and returns its key.
func (e *Exporter) ExportActiveAlerts(ctx context.Context) (string, error) {
	alerts, err := e.alerts.Active(ctx)
	if err != nil {
		return "", fmt.Errorf("load active alerts: %w", err)
	}

	data, err := e.renderCSV(ctx, alerts)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%sactive-alerts-%s.csv", alertExportPrefix, e.now().UTC().Format("20060102-150405"))
	if err := e.store.UploadObject(ctx, key, "text/csv", data); err != nil {
		return "", fmt.Errorf("upload alert export: %w", err)
	}

	logger.Log.Info().Str("key", key).Int("alerts", len(alerts)).Msg("exported active alerts")
	return key, nil
}

func (e *Exporter) renderCSV(ctx context.Context, alerts []domain.Alert) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"alert_id", "product_id", "product_name", "category",
		"alert_type", "severity", "recommended_order_qty",
		"is_acknowledged", "created_at", "message",
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, a := range alerts {
		name, category := "", ""
		if p, err := e.products.Get(ctx, a.ProductID); err == nil {
			name, category = p.Name, p.Category
		}

		record := []string{
			strconv.FormatInt(a.ID, 10),
			strconv.FormatInt(a.ProductID, 10),
			name,
			category,
			a.AlertType,
			string(a.Severity),
			strconv.Itoa(a.RecommendedOrderQty),
			strconv.FormatBool(a.IsAcknowledged),
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.Message,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
