package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/haochenhowardyang/club-reservation-service/internal/api"
	"github.com/haochenhowardyang/club-reservation-service/internal/app"
	"github.com/haochenhowardyang/club-reservation-service/internal/config"
)

func newServer(cfg *config.Config, engine *app.Engine) *http.Server {
	router := http.NewServeMux()
	router.HandleFunc("/health", api.HealthHandler(engine.DB))

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
	)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
