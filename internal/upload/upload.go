// Package upload receives multipart file uploads straight to a staging
// directory, enforcing field name, file count, size and extension while
// streaming.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"nexusstore/internal/apperr"
)

var (
	PackageExts = []string{".apk", ".aab", ".zip"}
	ImageExts   = []string{".png", ".jpg", ".jpeg", ".webp"}
)

const (
	IconMaxBytes       = 2 << 20
	ScreenshotMaxBytes = 5 << 20
	MaxScreenshots     = 8
)

// Spec describes one upload kind.
type Spec struct {
	Kind     string
	Field    string
	Exts     []string
	MaxBytes int64
	MaxFiles int
	Dir      string
}

func PackageSpec(dir string, maxBytes int64) Spec {
	return Spec{Kind: "app", Field: "app", Exts: PackageExts, MaxBytes: maxBytes, MaxFiles: 1, Dir: dir}
}

func IconSpec(dir string) Spec {
	return Spec{Kind: "icon", Field: "icon", Exts: ImageExts, MaxBytes: IconMaxBytes, MaxFiles: 1, Dir: dir}
}

func ScreenshotSpec(dir string) Spec {
	return Spec{Kind: "screenshots", Field: "screenshots", Exts: ImageExts, MaxBytes: ScreenshotMaxBytes, MaxFiles: MaxScreenshots, Dir: dir}
}

// File is a staged upload.
type File struct {
	Path         string
	OriginalName string
	Ext          string
	Size         int64
}

// Receive stages every file part of r matching spec. Non-file form fields
// are skipped. On error nothing staged by this call is left behind.
func Receive(r *http.Request, spec Spec) ([]File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("request must be multipart/form-data")
	}

	var files []File
	fail := func(err error) ([]File, error) {
		Cleanup(files)
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(uploadError(err, spec))
		}
		if part.FileName() == "" {
			_, _ = io.Copy(io.Discard, part)
			part.Close()
			continue
		}
		if part.FormName() != spec.Field {
			part.Close()
			return fail(apperr.Validation(fmt.Sprintf("unexpected file field %q", part.FormName())))
		}
		if len(files) >= spec.MaxFiles {
			part.Close()
			return fail(apperr.Validation("too many files uploaded"))
		}
		f, err := stage(part, spec)
		part.Close()
		if err != nil {
			return fail(err)
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, apperr.Validation("no file provided")
	}
	return files, nil
}

func stage(part *multipart.Part, spec Spec) (File, error) {
	name := filepath.Base(part.FileName())
	ext := strings.ToLower(filepath.Ext(name))
	if !allowed(ext, spec.Exts) {
		return File{}, apperr.Validation(fmt.Sprintf("file type not allowed, use: %s", strings.Join(spec.Exts, ", ")))
	}

	dst := filepath.Join(spec.Dir, uuid.NewString()+ext)
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return File{}, fmt.Errorf("stage upload: %w", err)
	}
	n, err := io.Copy(out, io.LimitReader(part, spec.MaxBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		Remove(dst)
		return File{}, uploadError(err, spec)
	}
	if n > spec.MaxBytes {
		Remove(dst)
		return File{}, tooLarge(spec)
	}
	return File{Path: dst, OriginalName: name, Ext: ext, Size: n}, nil
}

func uploadError(err error, spec Spec) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return tooLarge(spec)
	}
	return apperr.Wrap(apperr.KindValidation, "upload error: "+err.Error(), err)
}

func tooLarge(spec Spec) error {
	return apperr.Validation("file too large, max size: " + FormatSize(spec.MaxBytes))
}

func allowed(ext string, exts []string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}

// Cleanup removes staged files. Failures are ignored.
func Cleanup(files []File) {
	for _, f := range files {
		Remove(f.Path)
	}
}

func Remove(p string) {
	if p != "" {
		_ = os.Remove(p)
	}
}

// FormatSize renders a byte count as B, KB, MB or GB with one decimal.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
