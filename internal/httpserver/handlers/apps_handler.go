package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/models"
	"nexusstore/internal/util"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	featuredLimit   = 10
)

var sortOrders = map[string]string{
	"newest":     "a.created_at DESC",
	"popular":    "a.downloads DESC",
	"rating":     "a.rating DESC",
	"name":       "a.name ASC",
	"price_low":  "a.price ASC",
	"price_high": "a.price DESC",
}

type pagination struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	HasMore bool  `json:"hasMore"`
}

type appsPage struct {
	Apps       []models.AppListing `json:"apps"`
	Pagination pagination          `json:"pagination"`
}

func intParam(r *http.Request, key string, def, min, max int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	if v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// listingQuery selects apps joined with their developer.
func listingQuery(db *gorm.DB) *gorm.DB {
	return db.Table("apps AS a").Joins("JOIN users u ON a.developer_id = u.id")
}

const listingColumns = "a.*, u.name AS developer_name"

// ListApps filters approved apps by category, type, pricing and search
// term. The total is counted with the same filters as the page.
func ListApps(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		q := r.URL.Query()
		limit := intParam(r, "limit", defaultPageSize, 1, maxPageSize)
		offset := intParam(r, "offset", 0, 0, 0)

		base := listingQuery(db).Where("a.status = ?", models.AppApproved)
		if c := q.Get("category"); c != "" && c != "all" {
			base = base.Where("a.category = ?", c)
		}
		if t := q.Get("type"); t != "" && t != "all" {
			base = base.Where("a.type = ?", t)
		}
		switch q.Get("price") {
		case "free":
			base = base.Where("a.price = 0")
		case "paid":
			base = base.Where("a.price > 0")
		}
		if s := strings.TrimSpace(q.Get("search")); s != "" {
			op := likeOp(d.DB)
			pattern := "%" + s + "%"
			base = base.Where(fmt.Sprintf("(a.name %[1]s ? OR a.description %[1]s ? OR u.name %[1]s ?)", op), pattern, pattern, pattern)
		}

		var total int64
		if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}

		order, ok := sortOrders[q.Get("sort")]
		if !ok {
			order = sortOrders["newest"]
		}
		apps := []models.AppListing{}
		if err := base.Select(listingColumns).Order(order).Limit(limit).Offset(offset).Scan(&apps).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, appsPage{
			Apps: apps,
			Pagination: pagination{
				Total:   total,
				Limit:   limit,
				Offset:  offset,
				HasMore: int64(offset+len(apps)) < total,
			},
		})
	}
}

func FeaturedApps(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		apps := []models.AppListing{}
		err := listingQuery(db).Select(listingColumns).
			Where("a.status = ? AND (a.featured = ? OR a.is_hot = ?)", models.AppApproved, true, true).
			Order("a.downloads DESC").Limit(featuredLimit).Scan(&apps).Error
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"apps": apps})
	}
}

type categoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

func Categories(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		cats := []categoryCount{}
		err := db.Model(&models.App{}).
			Select("category, COUNT(*) AS count").
			Where("status = ?", models.AppApproved).
			Group("category").Order("count DESC").Scan(&cats).Error
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"categories": cats})
	}
}

// findListing loads an app by UUID or slug.
func findListing(db *gorm.DB, idOrSlug string) (*models.AppListing, error) {
	col := "a.slug"
	if util.IsUUID(idOrSlug) {
		col = "a.id"
	}
	var rows []models.AppListing
	err := listingQuery(db).Select(listingColumns).
		Where(col+" = ?", idOrSlug).Limit(1).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("app not found")
	}
	return &rows[0], nil
}

func findApp(db *gorm.DB, idOrSlug string) (*models.App, error) {
	col := "slug"
	if util.IsUUID(idOrSlug) {
		col = "id"
	}
	var app models.App
	if err := db.First(&app, col+" = ?", idOrSlug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("app not found")
		}
		return nil, err
	}
	return &app, nil
}

// AppOwner resolves the developer of the app in the {id} route parameter.
func AppOwner(d *Deps) auth.OwnerResolver {
	return func(r *http.Request) (string, error) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findApp(db, chi.URLParam(r, "id"))
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindNotFound {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return app.DeveloperID, nil
	}
}

// GetApp hides apps that are not approved from everyone but their owner
// and admins.
func GetApp(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findListing(db, chi.URLParam(r, "id"))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if !app.VisibleTo(auth.FromContext(r.Context())) {
			d.Resp.Error(w, r, apperr.NotFound("app not found"))
			return
		}
		d.Resp.OK(w, app)
	}
}

func hasCompletedPurchase(db *gorm.DB, userID, appID string) (bool, error) {
	var count int64
	err := db.Model(&models.Purchase{}).
		Where("user_id = ? AND app_id = ? AND status = ?", userID, appID, models.PurchaseCompleted).
		Count(&count).Error
	return count > 0, err
}

// DownloadApp serves the package of an approved app. Paid apps require a
// completed purchase; the gate answers before the file is looked up. The
// counter is incremented once the gate and the file check pass, even if
// streaming later fails.
func DownloadApp(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findApp(db, chi.URLParam(r, "id"))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if app.Status != models.AppApproved {
			d.Resp.Error(w, r, apperr.NotFound("app not available"))
			return
		}

		u := auth.FromContext(r.Context())
		if !app.IsFree() {
			if u == nil {
				d.Resp.Error(w, r, apperr.Unauthorized("authentication required for paid apps"))
				return
			}
			owns, err := hasCompletedPurchase(db, u.ID, app.ID)
			if err != nil {
				d.Resp.Error(w, r, err)
				return
			}
			if !owns {
				d.Resp.Error(w, r, apperr.PaymentRequired("purchase required to download this app"))
				return
			}
		}

		if app.FilePath == "" {
			d.Resp.Error(w, r, apperr.NotFound("file not available"))
			return
		}
		diskPath, err := d.Files.Resolve(app.FilePath)
		if err != nil {
			d.Resp.Error(w, r, apperr.Wrap(apperr.KindNotFound, "file not found", err))
			return
		}
		f, err := os.Open(diskPath)
		if err != nil {
			d.Resp.Error(w, r, apperr.Wrap(apperr.KindNotFound, "file not found", err))
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}

		if err := db.Model(&models.App{}).Where("id = ?", app.ID).
			UpdateColumn("downloads", gorm.Expr("downloads + 1")).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		entry := models.Download{AppID: app.ID, IPAddress: clientIP(r), UserAgent: r.UserAgent()}
		if u != nil {
			entry.UserID = &u.ID
		}
		if err := db.Create(&entry).Error; err != nil {
			d.Log.Warnw("download log failed", "app_id", app.ID, "error", err)
		}
		if d.Metrics != nil {
			d.Metrics.Download(app.IsFree())
		}

		name := fmt.Sprintf("%s-%s%s", app.Slug, app.Version, path.Ext(app.FilePath))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

type createAppReq struct {
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	ShortDescription string      `json:"short_description"`
	Category         string      `json:"category"`
	Price            json.Number `json:"price"`
	Type             string      `json:"type"`
	Version          string      `json:"version"`
}

// CreateApp inserts a pending app owned by the caller. A taken slug gets a
// timestamp suffix; the unique index settles concurrent inserts.
func CreateApp(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		u := auth.FromContext(r.Context())
		var req createAppReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		price, err := parsePrice(req.Price)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		typ := models.AppType(req.Type)
		if !typ.Valid() {
			d.Resp.Error(w, r, apperr.Validation("invalid app type"))
			return
		}

		slug := util.Slugify(req.Name)
		var taken int64
		if err := db.Model(&models.App{}).Where("slug = ?", slug).Count(&taken).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if taken > 0 {
			slug = util.UniqueSlug(slug, time.Now())
		}

		app := models.App{
			Slug:             slug,
			Name:             strings.TrimSpace(req.Name),
			Description:      req.Description,
			ShortDescription: req.ShortDescription,
			Category:         strings.TrimSpace(req.Category),
			Price:            price,
			Type:             typ,
			Version:          strings.TrimSpace(req.Version),
			Status:           models.AppPending,
			DeveloperID:      u.ID,
		}
		if err := db.Create(&app).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Log.Infow("app created", "app_id", app.ID, "slug", app.Slug, "developer_id", u.ID)
		d.Resp.JSON(w, http.StatusCreated, map[string]interface{}{"message": "app created", "app": &app})
	}
}

func parsePrice(n json.Number) (float64, error) {
	if n == "" {
		return 0, nil
	}
	p, err := n.Float64()
	if err != nil || p < 0 {
		return 0, apperr.Validation("price must be a non-negative number")
	}
	return p, nil
}

type updateAppReq struct {
	Name             *string      `json:"name"`
	Description      *string      `json:"description"`
	ShortDescription *string      `json:"short_description"`
	Category         *string      `json:"category"`
	Price            *json.Number `json:"price"`
	Version          *string      `json:"version"`
}

// UpdateApp changes only the fields present in the body. Ownership is
// checked by the route.
func UpdateApp(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findApp(db, chi.URLParam(r, "id"))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		var req updateAppReq
		if err := decodeJSON(r, &req); err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		updates := map[string]interface{}{}
		if v := trimmed(req.Name); v != nil {
			updates["name"] = *v
		}
		if req.Description != nil {
			updates["description"] = *req.Description
		}
		if req.ShortDescription != nil {
			updates["short_description"] = *req.ShortDescription
		}
		if v := trimmed(req.Category); v != nil {
			updates["category"] = *v
		}
		if req.Price != nil {
			price, err := parsePrice(*req.Price)
			if err != nil {
				d.Resp.Error(w, r, err)
				return
			}
			updates["price"] = price
		}
		if v := trimmed(req.Version); v != nil {
			updates["version"] = *v
		}

		if len(updates) > 0 {
			if err := db.Model(&models.App{}).Where("id = ?", app.ID).Updates(updates).Error; err != nil {
				d.Resp.Error(w, r, err)
				return
			}
		}
		if err := db.First(app, "id = ?", app.ID).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"message": "app updated", "app": app})
	}
}

// DeleteApp removes the row, then the file tree. File cleanup failures do
// not fail the request.
func DeleteApp(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		app, err := findApp(db, chi.URLParam(r, "id"))
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if err := db.Delete(&models.App{}, "id = ?", app.ID).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		if err := d.Files.DeleteAppDir(app.ID); err != nil {
			d.Log.Debugw("app directory cleanup failed", "app_id", app.ID, "error", err)
		}
		d.Log.Infow("app deleted", "app_id", app.ID)
		d.Resp.OK(w, message{"app deleted"})
	}
}

type developerStats struct {
	Apps      int64  `json:"apps"`
	Downloads int64  `json:"downloads"`
	Rating    string `json:"rating"`
	Revenue   string `json:"revenue"`
}

func DeveloperStats(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		u := auth.FromContext(r.Context())

		var agg struct {
			Apps      int64
			Downloads int64
			Rating    float64
		}
		if err := db.Model(&models.App{}).
			Select("COUNT(*) AS apps, COALESCE(SUM(downloads), 0) AS downloads, COALESCE(AVG(rating), 0) AS rating").
			Where("developer_id = ?", u.ID).Scan(&agg).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		var revenue float64
		if err := db.Table("purchases AS p").Joins("JOIN apps a ON p.app_id = a.id").
			Select("COALESCE(SUM(p.amount - p.commission), 0)").
			Where("a.developer_id = ? AND p.status = ?", u.ID, models.PurchaseCompleted).
			Scan(&revenue).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, developerStats{
			Apps:      agg.Apps,
			Downloads: agg.Downloads,
			Rating:    strconv.FormatFloat(agg.Rating, 'f', 1, 64),
			Revenue:   strconv.FormatFloat(revenue, 'f', 2, 64),
		})
	}
}

// DeveloperApps lists every app of the caller regardless of status.
func DeveloperApps(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, cancel := d.db(r)
		defer cancel()
		u := auth.FromContext(r.Context())
		apps := []models.App{}
		if err := db.Where("developer_id = ?", u.ID).
			Order("created_at DESC").Find(&apps).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.Resp.OK(w, map[string]interface{}{"apps": apps})
	}
}
