package export

import (
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/restockcast/internal/domain"
	"github.com/andresuchdata/restockcast/internal/repository/memory"
	"github.com/andresuchdata/restockcast/internal/storage"
)

type fakeStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeStorage) ListObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for k, v := range f.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeStorage) DownloadObject(_ context.Context, _ string, _ string) error {
	return nil
}

func (f *fakeStorage) UploadObject(_ context.Context, key, contentType string, data []byte) error {
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

func TestExportActiveAlerts(t *testing.T) {
	alerts := memory.NewAlertRepository()
	products := memory.NewProductRepository()
	store := newFakeStorage()

	products.Put(domain.Product{ID: 1, Name: "Cold Brew", Category: "beverages"})
	require.NoError(t, alerts.Create(context.Background(), &domain.Alert{
		ProductID:           1,
		AlertType:           domain.AlertTypeForecastShortage,
		Severity:            domain.SeverityCritical,
		Message:             "CRITICAL: Cold Brew stock (5) below 1-day demand (12).",
		RecommendedOrderQty: 72,
		IsActive:            true,
		CreatedAt:           time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}))

	exporter := NewExporter(alerts, products, store)
	exporter.now = func() time.Time { return time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC) }

	key, err := exporter.ExportActiveAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alerts/active-alerts-20240602-083000.csv", key)
	assert.Equal(t, "text/csv", store.types[key])

	records, err := csv.NewReader(strings.NewReader(string(store.objects[key]))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "product_name", records[0][2])
	assert.Equal(t, "Cold Brew", records[1][2])
	assert.Equal(t, "CRITICAL", records[1][5])
	assert.Equal(t, "72", records[1][6])
}

func TestExportWithNoAlertsStillUploadsHeader(t *testing.T) {
	alerts := memory.NewAlertRepository()
	products := memory.NewProductRepository()
	store := newFakeStorage()

	exporter := NewExporter(alerts, products, store)
	key, err := exporter.ExportActiveAlerts(context.Background())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(store.objects[key]))).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
