package handlers

import (
	"context"
	"net/http"
	"time"

	"nexusstore/internal/apperr"
	"nexusstore/internal/database"
)

const healthPingTimeout = 2 * time.Second

// Health always answers 200; the database field reports pool reachability.
func Health(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		dbState := "ok"
		if err := database.Ping(ctx, d.DB); err != nil {
			d.Log.Warnw("health: database ping failed", "error", err)
			dbState = "down"
		}
		d.Resp.OK(w, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(d.Started).Seconds(),
			"database":  dbState,
		})
	}
}

func APIInfo(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Resp.OK(w, map[string]interface{}{
			"name":    "NexusStore API",
			"version": "1.0.0",
			"endpoints": map[string]string{
				"auth":    "/api/auth",
				"apps":    "/api/apps",
				"upload":  "/api/upload",
				"payment": "/api/checkout",
			},
		})
	}
}

func NotFound(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Resp.Error(w, r, apperr.NotFound("route not found"))
	}
}

func MethodNotAllowed(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.Resp.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}
