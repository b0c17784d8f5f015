package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/models"
	"nexusstore/internal/util"
)

func ListUsers(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		q := db.Order("created_at desc")
		if role := r.URL.Query().Get("role"); role != "" {
			q = q.Where("role = ?", role)
		}
		users := []models.User{}
		if err := q.Find(&users).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"users": users})
	}
}

func userParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if !util.IsUUID(id) {
		return "", apperr.NotFound("user not found")
	}
	return id, nil
}

// UpdateUserRole changes a user's role. The change applies on the user's
// next request since identities are reloaded per request.
func UpdateUserRole(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		id, err := userParam(r)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		var req struct {
			Role string `json:"role"`
		}
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		role := models.Role(strings.TrimSpace(req.Role))
		if !role.Valid() {
			d.Resp.Error(w, r, apperr.Validation("invalid role"))
			return
		}
		if id == auth.UserID(r.Context()) && role != models.RoleAdmin {
			d.Resp.Error(w, r, apperr.Validation("admins cannot demote themselves"))
			return
		}
		res := db.Model(&models.User{}).Where("id = ?", id).Update("role", role)
		if res.Error != nil {
			d.Resp.Error(w, r, res.Error)
			return
		}
		if res.RowsAffected == 0 {
			d.Resp.Error(w, r, apperr.NotFound("user not found"))
			return
		}
		d.Log.Infow("user role changed", "user_id", id, "role", role, "admin_id", auth.UserID(r.Context()))
		d.Resp.OK(w, map[string]interface{}{"updated": true, "role": role})
	}
}

func DeleteUser(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		id, err := userParam(r)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if id == auth.UserID(r.Context()) {
			d.Resp.Error(w, r, apperr.Validation("admins cannot delete themselves"))
			return
		}
		res := db.Delete(&models.User{}, "id = ?", id)
		if res.Error != nil {
			d.Resp.Error(w, r, res.Error)
			return
		}
		if res.RowsAffected == 0 {
			d.Resp.Error(w, r, apperr.NotFound("user not found"))
			return
		}
		d.Log.Infow("user deleted", "user_id", id, "admin_id", auth.UserID(r.Context()))
		d.Resp.OK(w, map[string]interface{}{"deleted": true})
	}
}
