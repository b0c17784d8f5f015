package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexusstore/internal/models"
)

const downloadLogLimit = 200

// AppDownloads returns the most recent download records of one app. Ownership
// is checked by the route.
func AppDownloads(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findApp(db, chi.URLParam(r, "id"))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		logs := []models.Download{}
		if err := db.Where("app_id = ?", app.ID).
			Order("created_at desc").Limit(downloadLogLimit).Find(&logs).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"downloads": logs})
	}
}
