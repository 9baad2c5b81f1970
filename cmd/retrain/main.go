// cmd/retrain/main.go

// Command retrain drives the forecasting core from the shell: rolling
// retrain walks, accuracy reports, alert evaluation and CSV exports.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/restockcast/internal/cache"
	"github.com/andresuchdata/restockcast/internal/config"
	"github.com/andresuchdata/restockcast/internal/export"
	"github.com/andresuchdata/restockcast/internal/repository/postgres"
	"github.com/andresuchdata/restockcast/internal/service"
	"github.com/andresuchdata/restockcast/internal/storage"
	"github.com/andresuchdata/restockcast/pkg/logger"
)

func buildService(withStorage bool) (*service.ForecastService, *postgres.DB, error) {
	cfg := config.Load()
	logger.SetLevel(cfg.Server.Mode)

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	accCache, err := cache.NewAccuracyCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("accuracy cache unavailable, continuing without it")
		accCache = cache.NewNoopAccuracyCache()
	}

	alertRepo := postgres.NewAlertRepository(db)
	productRepo := postgres.NewProductRepository(db)

	var exporter *export.Exporter
	if withStorage && cfg.Storage.Enabled {
		store, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		exporter = export.NewExporter(alertRepo, productRepo, store)
	}

	svc := service.NewForecastService(service.Deps{
		Sales:     postgres.NewSalesRepository(db),
		Forecasts: postgres.NewForecastRepository(db),
		Snapshots: postgres.NewSnapshotRepository(db),
		Products:  productRepo,
		Alerts:    alertRepo,
		Notifier:  nil,
		Cache:     accCache,
		Exporter:  exporter,
		Forecast:  cfg.Forecast,
	})
	return svc, db, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "retrain",
		Usage: "Run forecasting maintenance tasks",
		Commands: []*cli.Command{
			{
				Name:  "walk",
				Usage: "Run the rolling retrain walk",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:  "product",
						Usage: "Restrict the walk to one product id",
					},
				},
				Action: func(c *cli.Context) error {
					svc, db, err := buildService(false)
					if err != nil {
						return err
					}
					defer db.Close()

					if id := c.Int64("product"); id > 0 {
						res, err := svc.RetrainProduct(c.Context, id)
						if err != nil {
							return err
						}
						return printJSON(res)
					}
					results, err := svc.RetrainAll(c.Context)
					if err != nil {
						return err
					}
					return printJSON(results)
				},
			},
			{
				Name:  "accuracy",
				Usage: "Report multi-horizon forecast accuracy",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "days-back",
						Usage: "Evaluation window in days",
						Value: 30,
					},
				},
				Action: func(c *cli.Context) error {
					svc, db, err := buildService(false)
					if err != nil {
						return err
					}
					defer db.Close()

					acc, err := svc.Accuracy(c.Context, c.Int("days-back"))
					if err != nil {
						return err
					}
					return printJSON(acc)
				},
			},
			{
				Name:  "alerts",
				Usage: "Evaluate restock alerts across the catalog",
				Action: func(c *cli.Context) error {
					svc, db, err := buildService(false)
					if err != nil {
						return err
					}
					defer db.Close()

					views, err := svc.ComputeAlerts(c.Context)
					if err != nil {
						return err
					}
					return printJSON(views)
				},
			},
			{
				Name:  "export",
				Usage: "Archive active alerts as CSV to object storage",
				Action: func(c *cli.Context) error {
					svc, db, err := buildService(true)
					if err != nil {
						return err
					}
					defer db.Close()

					key, err := svc.ExportAlerts(c.Context)
					if err != nil {
						return err
					}
					fmt.Println(key)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
