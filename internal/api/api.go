// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/andresuchdata/restockcast/internal/api/handlers"
	"github.com/andresuchdata/restockcast/internal/api/middleware"
	"github.com/andresuchdata/restockcast/internal/notify"
	"github.com/andresuchdata/restockcast/internal/service"
)

type Services struct {
	ForecastService *service.ForecastService
	Hub             *notify.Hub
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		if services.ForecastService != nil {
			forecastHandler := handlers.NewForecastHandler(services.ForecastService)
			forecastGroup := apiGroup.Group("/forecast")
			{
				forecastGroup.GET("/:productID", forecastHandler.GetForecast)
				forecastGroup.GET("/:productID/accuracy", forecastHandler.GetProductAccuracy)
				forecastGroup.GET("/accuracy/multi", forecastHandler.GetAccuracy)
				forecastGroup.POST("/retrain", forecastHandler.Retrain)
				forecastGroup.POST("/retrain/:productID", forecastHandler.RetrainProduct)
				forecastGroup.POST("/generate/:productID", forecastHandler.Generate)
				forecastGroup.POST("/snapshots/reconcile", forecastHandler.ReconcileSnapshots)
			}

			alertHandler := handlers.NewAlertHandler(services.ForecastService)
			alertGroup := apiGroup.Group("/alerts")
			{
				alertGroup.GET("", alertHandler.GetActive)
				alertGroup.POST("/check", alertHandler.Check)
				alertGroup.POST("/:alertID/acknowledge", alertHandler.Acknowledge)
				alertGroup.POST("/:alertID/resolve", alertHandler.Resolve)
				alertGroup.POST("/export", alertHandler.Export)
			}
		}

		if services.Hub != nil {
			router.GET("/ws/alerts", func(c *gin.Context) {
				services.Hub.ServeWS(c.Writer, c.Request)
			})
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
