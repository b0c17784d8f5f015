package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"nexusstore/internal/apperr"
	"nexusstore/internal/auth"
	"nexusstore/internal/models"
	"nexusstore/internal/storage"
	"nexusstore/internal/upload"
	"nexusstore/internal/util"
)

// multipartOverhead is the slack allowed above the file budget for part
// headers and plain form fields.
const multipartOverhead = 1 << 20

type storedFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

func receive(w http.ResponseWriter, r *http.Request, spec upload.Spec) ([]upload.File, error) {
	r.Body = http.MaxBytesReader(w, r.Body, spec.MaxBytes*int64(spec.MaxFiles)+multipartOverhead)
	return upload.Receive(r, spec)
}

// ownApp loads the target app of staged files. Only the developer of the
// app may upload to it; anything else cleans up and answers 404.
func ownApp(d *Deps, db *gorm.DB, r *http.Request, files []upload.File) (*models.App, error) {
	appID := chi.URLParam(r, "appId")
	if !util.IsUUID(appID) {
		upload.Cleanup(files)
		return nil, apperr.NotFound("app not found or access denied")
	}
	u := auth.FromContext(r.Context())
	var app models.App
	if err := db.First(&app, "id = ? AND developer_id = ?", appID, u.ID).Error; err != nil {
		upload.Cleanup(files)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("app not found or access denied")
		}
		return nil, err
	}
	if _, err := d.Files.CreateAppDir(app.ID); err != nil {
		upload.Cleanup(files)
		return nil, err
	}
	return &app, nil
}

func (d *Deps) countUpload(kind string, n int) {
	if d.Metrics != nil {
		d.Metrics.Upload(kind, n)
	}
}

// UploadPackage stores the app binary as app.<ext> and records its size
// and, from the extension, its type.
func UploadPackage(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := upload.PackageSpec(d.Files.TempDir(), d.Cfg.MaxUploadBytes)
		files, err := receive(w, r, spec)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		db, cancel := d.db(r)
		defer cancel()
		app, err := ownApp(d, db, r, files)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		f := files[0]
		stored := storage.AppFile(app.ID, "app"+f.Ext)
		size, err := d.Files.Place(f.Path, stored)
		if err != nil {
			upload.Cleanup(files)
			d.Resp.Error(w, r, err)
			return
		}
		updates := map[string]interface{}{"file_path": stored, "size": size}
		metadata := map[string]string{}
		if typ, ok := models.AppTypeForExt(f.Ext); ok {
			updates["type"] = typ
			metadata["type"] = string(typ)
		}
		if err := db.Model(&models.App{}).Where("id = ?", app.ID).Updates(updates).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.countUpload(spec.Kind, 1)
		d.Resp.OK(w, map[string]interface{}{
			"message": "file uploaded",
			"file": map[string]interface{}{
				"name": "app" + f.Ext,
				"size": size,
				"path": stored,
			},
			"metadata": metadata,
		})
	}
}

func UploadIcon(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := upload.IconSpec(d.Files.IconsDir())
		files, err := receive(w, r, spec)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		db, cancel := d.db(r)
		defer cancel()
		app, err := ownApp(d, db, r, files)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		f := files[0]
		stored := storage.AppFile(app.ID, "icon"+f.Ext)
		if _, err := d.Files.Place(f.Path, stored); err != nil {
			upload.Cleanup(files)
			d.Resp.Error(w, r, err)
			return
		}
		if err := db.Model(&models.App{}).Where("id = ?", app.ID).
			Update("icon", stored).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.countUpload(spec.Kind, 1)
		d.Resp.OK(w, map[string]interface{}{
			"message": "icon uploaded",
			"icon":    storedFile{Path: stored, URL: "/" + stored},
		})
	}
}

// UploadScreenshots replaces the screenshot list with the uploaded files,
// numbered from 1 in upload order.
func UploadScreenshots(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := upload.ScreenshotSpec(d.Files.IconsDir())
		files, err := receive(w, r, spec)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		db, cancel := d.db(r)
		defer cancel()
		app, err := ownApp(d, db, r, files)
		if err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		paths := make(models.StringList, 0, len(files))
		out := make([]storedFile, 0, len(files))
		for i, f := range files {
			stored := storage.Screenshot(app.ID, i+1, f.Ext)
			if _, err := d.Files.Place(f.Path, stored); err != nil {
				upload.Cleanup(files[i:])
				d.Resp.Error(w, r, err)
				return
			}
			paths = append(paths, stored)
			out = append(out, storedFile{Path: stored, URL: "/" + stored})
		}
		if err := db.Model(&models.App{}).Where("id = ?", app.ID).
			Update("screenshots", paths).Error; err != nil {
			d.Resp.Error(w, r, err)
			return
		}
		d.countUpload(spec.Kind, len(files))
		d.Resp.OK(w, map[string]interface{}{"message": "screenshots uploaded", "screenshots": out})
	}
}
