package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/models"
)

func ListReviews(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findApp(db, chi.URLParam(r, "id"))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		reviews := []models.ReviewListing{}
		if err := db.Table("reviews AS r").
			Select("r.*, u.name AS user_name").
			Joins("JOIN users u ON r.user_id = u.id").
			Where("r.app_id = ?", app.ID).
			Order("r.created_at DESC").Scan(&reviews).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"reviews": reviews})
	}
}

// Rating arrives as a number or a numeric string.
type reviewReq struct {
	Rating  json.Number `json:"rating"`
	Comment string      `json:"comment"`
}

// refreshRating recomputes the aggregate from the review set.
func refreshRating(tx *gorm.DB, appID string) error {
	return tx.Exec(`UPDATE apps SET
		rating = (SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE app_id = ?),
		rating_count = (SELECT COUNT(*) FROM reviews WHERE app_id = ?)
		WHERE id = ?`, appID, appID, appID).Error
}

// SubmitReview creates the caller's review of an approved app, or updates
// it when one exists, and refreshes the app rating in the same transaction.
func SubmitReview(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		u := auth.FromContext(r.Context())
		app, err := findApp(db, chi.URLParam(r, "id"))
		if err == nil && app.Status != models.AppApproved {
			err = apperr.NotFound("app not found")
		}
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		var req reviewReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		value, err := req.Rating.Float64()
		rating := int(value)
		if err != nil || float64(rating) != value || rating < 1 || rating > 5 {
			d.Resp.Error(w, r, apperr.Validation("rating must be between 1 and 5"))
			return
		}

		var review models.Review
		created := false
		err = db.Transaction(func(tx *gorm.DB) error {
			err := tx.Where("user_id = ? AND app_id = ?", u.ID, app.ID).First(&review).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				review = models.Review{UserID: u.ID, AppID: app.ID, Rating: rating, Comment: strings.TrimSpace(req.Comment)}
				if err := tx.Create(&review).Error; err != nil {
					return err
				}
				created = true
			case err != nil:
				return err
			default:
				review.Rating = rating
				review.Comment = strings.TrimSpace(req.Comment)
				if err := tx.Model(&review).Updates(map[string]interface{}{
					"rating":  review.Rating,
					"comment": review.Comment,
				}).Error; err != nil {
					return err
				}
			}
			return refreshRating(tx, app.ID)
		})
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}

		if created {
			d.Resp.JSON(w, http.StatusCreated, map[string]interface{}{"message": "review added", "review": &review})
			return
		}
		d.Resp.OK(w, map[string]interface{}{"message": "review updated", "review": &review})
	}
}
